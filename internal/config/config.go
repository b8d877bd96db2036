package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config contains all runtime settings for the mascot service.
type Config struct {
	BindAddr                 string        `envconfig:"APP_BIND_ADDR" default:":8080"`
	ShutdownTimeout          time.Duration `envconfig:"APP_SHUTDOWN_TIMEOUT" default:"15s"`
	SessionInactivityTimeout time.Duration `envconfig:"APP_SESSION_INACTIVITY_TIMEOUT" default:"10m"`
	MetricsNamespace         string        `envconfig:"APP_METRICS_NAMESPACE" default:"mascot"`
	AllowAnyOrigin           bool          `envconfig:"APP_ALLOW_ANY_ORIGIN" default:"false"`
	Timezone                 string        `envconfig:"APP_TIMEZONE" default:"Local"`

	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty  bool   `envconfig:"LOG_PRETTY" default:"false"`
	LogFile    string `envconfig:"LOG_FILE"`
	TracesFile string `envconfig:"OTEL_TRACES_FILE"`

	LLMProvider    string        `envconfig:"LLM_PROVIDER" default:"openai"`
	LLMTemperature float32       `envconfig:"LLM_TEMPERATURE" default:"0.9"`
	LLMMaxTokens   int           `envconfig:"LLM_MAX_TOKENS" default:"220"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`

	ArkAPIKey  string `envconfig:"ARK_API_KEY"`
	ArkModel   string `envconfig:"ARK_MODEL"`
	ArkBaseURL string `envconfig:"ARK_BASE_URL" default:"https://ark.cn-beijing.volces.com/api/v3"`

	SentimentProvider string `envconfig:"SENTIMENT_PROVIDER" default:"keyword"`

	TTSProvider  string `envconfig:"TTS_PROVIDER" default:"elevenlabs"`
	TTSTransport string `envconfig:"TTS_TRANSPORT" default:"rest"`

	ElevenLabsAPIKey          string `envconfig:"ELEVENLABS_API_KEY"`
	ElevenLabsBaseURL         string `envconfig:"ELEVENLABS_BASE_URL" default:"https://api.elevenlabs.io"`
	ElevenLabsWSBaseURL       string `envconfig:"ELEVENLABS_WS_BASE_URL" default:"wss://api.elevenlabs.io"`
	ElevenLabsTTSModel        string `envconfig:"ELEVENLABS_TTS_MODEL_ID" default:"eleven_v3"`
	ElevenLabsFallbackModel   string `envconfig:"ELEVENLABS_FALLBACK_MODEL_ID" default:"eleven_turbo_v2_5"`
	ElevenLabsFallbackVoice   string `envconfig:"ELEVENLABS_FALLBACK_VOICE_ID"`
	ElevenLabsTTSOutputFormat string `envconfig:"ELEVENLABS_TTS_OUTPUT_FORMAT" default:"mp3_44100_128"`

	// One persona voice per lifecycle stage.
	VoiceBaby  string `envconfig:"VOICE_ID_BABY" default:"jBpfuIE2acCO8z3wKNLl"`
	VoiceAdult string `envconfig:"VOICE_ID_ADULT" default:"TX3LPaxmHKxFdv7VOQHJ"`
	VoiceOld   string `envconfig:"VOICE_ID_OLD" default:"N2lVS1w4EtoT3dr4eOWO"`

	HistoryMaxEntries int           `envconfig:"CHAT_HISTORY_MAX_ENTRIES" default:"20"`
	TurnTimeout       time.Duration `envconfig:"CHAT_TURN_TIMEOUT" default:"90s"`
	PhraseMinChars    int           `envconfig:"PHRASE_MIN_CHARS" default:"15"`
	PhraseMaxChars    int           `envconfig:"PHRASE_MAX_CHARS" default:"60"`

	// DatabaseURL selects the transcript mirror: postgres://, sqlite: or empty for in-memory.
	DatabaseURL string `envconfig:"DATABASE_URL"`
}

// Load reads a .env file when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv reads the process environment only.
func LoadFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	cfg.LLMProvider = strings.ToLower(strings.TrimSpace(cfg.LLMProvider))
	cfg.TTSProvider = strings.ToLower(strings.TrimSpace(cfg.TTSProvider))
	cfg.TTSTransport = strings.ToLower(strings.TrimSpace(cfg.TTSTransport))
	cfg.SentimentProvider = strings.ToLower(strings.TrimSpace(cfg.SentimentProvider))
	cfg.OpenAIAPIKey = strings.TrimSpace(cfg.OpenAIAPIKey)
	cfg.ArkAPIKey = strings.TrimSpace(cfg.ArkAPIKey)
	cfg.ElevenLabsAPIKey = strings.TrimSpace(cfg.ElevenLabsAPIKey)
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LLMProvider {
	case "openai", "ark", "mock":
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of openai, ark, mock (got %q)", c.LLMProvider)
	}
	switch c.TTSProvider {
	case "elevenlabs", "mock":
	default:
		return fmt.Errorf("TTS_PROVIDER must be one of elevenlabs, mock (got %q)", c.TTSProvider)
	}
	switch c.TTSTransport {
	case "rest", "ws":
	default:
		return fmt.Errorf("TTS_TRANSPORT must be rest or ws (got %q)", c.TTSTransport)
	}
	switch c.SentimentProvider {
	case "keyword", "llm":
	default:
		return fmt.Errorf("SENTIMENT_PROVIDER must be keyword or llm (got %q)", c.SentimentProvider)
	}
	if c.SessionInactivityTimeout < 5*time.Second {
		return errors.New("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if c.HistoryMaxEntries < 2 {
		return errors.New("CHAT_HISTORY_MAX_ENTRIES must be at least 2")
	}
	if c.PhraseMinChars <= 0 || c.PhraseMaxChars < c.PhraseMinChars {
		return fmt.Errorf("phrase bounds invalid: min=%d max=%d", c.PhraseMinChars, c.PhraseMaxChars)
	}
	if c.LLMMaxTokens <= 0 {
		return errors.New("LLM_MAX_TOKENS must be positive")
	}
	return nil
}

// Location resolves APP_TIMEZONE, defaulting to the host zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	return loc, nil
}

// LLMCredentialError reports the missing credential for the selected language model, if any.
func (c Config) LLMCredentialError() error {
	switch c.LLMProvider {
	case "openai":
		if c.OpenAIAPIKey == "" {
			return &CredentialError{Provider: "openai", Variable: "OPENAI_API_KEY"}
		}
	case "ark":
		if c.ArkAPIKey == "" {
			return &CredentialError{Provider: "ark", Variable: "ARK_API_KEY"}
		}
		if strings.TrimSpace(c.ArkModel) == "" {
			return &CredentialError{Provider: "ark", Variable: "ARK_MODEL"}
		}
	}
	return nil
}

// TTSCredentialError reports the missing credential for the selected synthesizer, if any.
func (c Config) TTSCredentialError() error {
	if c.TTSProvider == "elevenlabs" && c.ElevenLabsAPIKey == "" {
		return &CredentialError{Provider: "elevenlabs", Variable: "ELEVENLABS_API_KEY"}
	}
	return nil
}
