package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	unsetCoreEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ElevenLabsTTSModel != "eleven_v3" || cfg.ElevenLabsFallbackModel != "eleven_turbo_v2_5" {
		t.Fatalf("tts models = %q/%q", cfg.ElevenLabsTTSModel, cfg.ElevenLabsFallbackModel)
	}
	if cfg.HistoryMaxEntries != 20 {
		t.Fatalf("HistoryMaxEntries = %d, want 20", cfg.HistoryMaxEntries)
	}
	if cfg.ShutdownTimeout != 15*time.Second {
		t.Fatalf("ShutdownTimeout = %v, want 15s", cfg.ShutdownTimeout)
	}
	if cfg.PhraseMinChars != 15 || cfg.PhraseMaxChars != 60 {
		t.Fatalf("phrase bounds = %d/%d, want 15/60", cfg.PhraseMinChars, cfg.PhraseMaxChars)
	}
}

func TestLoadMissingOpenAIKeyIsCredentialError(t *testing.T) {
	unsetCoreEnv(t)

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	credErr := cfg.LLMCredentialError()
	if credErr == nil {
		t.Fatalf("LLMCredentialError() = nil, want error")
	}
	var ce *CredentialError
	if !errors.As(credErr, &ce) || ce.Variable != "OPENAI_API_KEY" {
		t.Fatalf("LLMCredentialError() = %v, want OPENAI_API_KEY credential error", credErr)
	}
	if !strings.Contains(credErr.Error(), "OPENAI_API_KEY is not set") {
		t.Fatalf("error text = %q", credErr.Error())
	}
	if !IsCredentialError(fmt.Errorf("wrapped: %w", credErr)) {
		t.Fatalf("IsCredentialError(wrapped) = false, want true")
	}
}

func TestLoadMockProvidersNeedNoCredentials(t *testing.T) {
	unsetCoreEnv(t)
	t.Setenv("LLM_PROVIDER", "MOCK")
	t.Setenv("TTS_PROVIDER", "mock")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	if err := cfg.LLMCredentialError(); err != nil {
		t.Fatalf("LLMCredentialError() = %v, want nil", err)
	}
	if err := cfg.TTSCredentialError(); err != nil {
		t.Fatalf("TTSCredentialError() = %v, want nil", err)
	}
}

func TestLoadArkNeedsModel(t *testing.T) {
	unsetCoreEnv(t)
	t.Setenv("LLM_PROVIDER", "ark")
	t.Setenv("ARK_API_KEY", "k")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}
	var ce *CredentialError
	if err := cfg.LLMCredentialError(); !errors.As(err, &ce) || ce.Variable != "ARK_MODEL" {
		t.Fatalf("LLMCredentialError() = %v, want ARK_MODEL", err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"LLM_PROVIDER":                   "claude-on-a-toaster",
		"TTS_TRANSPORT":                  "carrier-pigeon",
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"CHAT_HISTORY_MAX_ENTRIES":       "1",
		"PHRASE_MAX_CHARS":               "3",
		"APP_SHUTDOWN_TIMEOUT":           "soon",
	}
	for key, value := range cases {
		unsetCoreEnv(t)
		t.Setenv(key, value)
		if _, err := LoadFromEnv(); err == nil {
			t.Fatalf("LoadFromEnv() with %s=%q error = nil, want error", key, value)
		}
	}
}

func TestLocation(t *testing.T) {
	cfg := Config{Timezone: "UTC"}
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Fatalf("Location() = %v, %v, want UTC", loc, err)
	}
	if _, err := (Config{Timezone: "Mars/Olympus_Mons"}).Location(); err == nil {
		t.Fatalf("Location(invalid) error = nil, want error")
	}
}

// unsetCoreEnv clears every variable Load reads and restores them after the test.
// envconfig treats a set-but-empty variable as a value, so they must be unset.
func unsetCoreEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR", "APP_SHUTDOWN_TIMEOUT", "APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE", "APP_ALLOW_ANY_ORIGIN", "APP_TIMEZONE",
		"LOG_LEVEL", "LOG_PRETTY", "LOG_FILE", "OTEL_TRACES_FILE",
		"LLM_PROVIDER", "LLM_TEMPERATURE", "LLM_MAX_TOKENS", "LLM_TIMEOUT",
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL",
		"ARK_API_KEY", "ARK_MODEL", "ARK_BASE_URL",
		"SENTIMENT_PROVIDER", "TTS_PROVIDER", "TTS_TRANSPORT",
		"ELEVENLABS_API_KEY", "ELEVENLABS_BASE_URL", "ELEVENLABS_WS_BASE_URL",
		"ELEVENLABS_TTS_MODEL_ID", "ELEVENLABS_FALLBACK_MODEL_ID", "ELEVENLABS_FALLBACK_VOICE_ID",
		"ELEVENLABS_TTS_OUTPUT_FORMAT",
		"VOICE_ID_BABY", "VOICE_ID_ADULT", "VOICE_ID_OLD",
		"CHAT_HISTORY_MAX_ENTRIES", "CHAT_TURN_TIMEOUT", "PHRASE_MIN_CHARS", "PHRASE_MAX_CHARS",
		"DATABASE_URL",
	}
	for _, key := range keys {
		prev, had := os.LookupEnv(key)
		os.Unsetenv(key)
		t.Cleanup(func() {
			if had {
				os.Setenv(key, prev)
			} else {
				os.Unsetenv(key)
			}
		})
	}
}
