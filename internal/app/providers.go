package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/wenmoon/mascot/internal/config"
	"github.com/wenmoon/mascot/internal/llm"
	"github.com/wenmoon/mascot/internal/sentiment"
	"github.com/wenmoon/mascot/internal/voice"
)

type llmSetup struct {
	client llm.Client
	detail string
}

func resolveLLM(ctx context.Context, cfg config.Config, logger zerolog.Logger) (llmSetup, error) {
	if err := cfg.LLMCredentialError(); err != nil {
		logger.Warn().Err(err).Str("provider", cfg.LLMProvider).Msg("language model not configured")
		return llmSetup{client: &llm.Unconfigured{Err: err}, detail: cfg.LLMProvider + " (unconfigured)"}, nil
	}

	switch cfg.LLMProvider {
	case "mock":
		return llmSetup{client: llm.NewMockClient(), detail: "mock"}, nil
	case "ark":
		client, err := newArk(ctx, cfg)
		if err != nil {
			return llmSetup{}, err
		}
		return llmSetup{client: client, detail: "ark " + cfg.ArkModel}, nil
	default:
		openai := llm.NewOpenAIClient(llm.OpenAIConfig{
			BaseURL: cfg.OpenAIBaseURL,
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.LLMTimeout,
		}, logger)
		if cfg.ArkAPIKey == "" || strings.TrimSpace(cfg.ArkModel) == "" {
			return llmSetup{client: openai, detail: "openai " + cfg.OpenAIModel}, nil
		}
		// Ark serves the turn when OpenAI fails before its first token.
		ark, err := newArk(ctx, cfg)
		if err != nil {
			logger.Warn().Err(err).Msg("ark fallback unavailable")
			return llmSetup{client: openai, detail: "openai " + cfg.OpenAIModel}, nil
		}
		return llmSetup{
			client: llm.NewFallback(openai, ark),
			detail: fmt.Sprintf("openai %s (fallback ark %s)", cfg.OpenAIModel, cfg.ArkModel),
		}, nil
	}
}

func newArk(ctx context.Context, cfg config.Config) (*llm.EinoClient, error) {
	client, err := llm.NewArkClient(ctx, llm.ArkConfig{
		BaseURL:     cfg.ArkBaseURL,
		APIKey:      cfg.ArkAPIKey,
		Model:       cfg.ArkModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	})
	if err != nil {
		return nil, fmt.Errorf("ark init failed: %w", err)
	}
	return client, nil
}

type ttsSetup struct {
	synth  voice.Synthesizer
	detail string
}

func resolveTTS(cfg config.Config, logger zerolog.Logger) ttsSetup {
	if cfg.TTSProvider == "mock" {
		return ttsSetup{synth: voice.NewMock(), detail: "mock"}
	}
	if err := cfg.TTSCredentialError(); err != nil {
		logger.Warn().Err(err).Msg("tts not configured")
		return ttsSetup{synth: &voice.Unconfigured{Err: err}, detail: "elevenlabs (unconfigured)"}
	}

	elCfg := voice.ElevenLabsConfig{
		APIKey:       cfg.ElevenLabsAPIKey,
		BaseURL:      cfg.ElevenLabsBaseURL,
		WSBaseURL:    cfg.ElevenLabsWSBaseURL,
		OutputFormat: cfg.ElevenLabsTTSOutputFormat,
	}
	rest := voice.NewElevenLabsREST(elCfg)
	var primary voice.Synthesizer = rest
	detail := "elevenlabs rest"
	if cfg.TTSTransport == "ws" {
		primary = voice.NewElevenLabsStream(elCfg)
		detail = "elevenlabs stream-input"
	}
	// The fallback always goes over REST on the non-expressive model.
	return ttsSetup{
		synth:  voice.NewFallback(primary, rest, cfg.ElevenLabsFallbackVoice, cfg.ElevenLabsFallbackModel, logger),
		detail: fmt.Sprintf("%s %s (fallback %s)", detail, cfg.ElevenLabsTTSModel, cfg.ElevenLabsFallbackModel),
	}
}

func resolveSentiment(cfg config.Config, client llm.Client, logger zerolog.Logger) (sentiment.Classifier, string) {
	if cfg.SentimentProvider == "llm" && llm.CheckConfigured(client) == nil {
		return sentiment.NewLLMClassifier(client, logger), "llm"
	}
	return sentiment.KeywordClassifier{}, "keyword"
}
