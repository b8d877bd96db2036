package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wenmoon/mascot/internal/chat"
	"github.com/wenmoon/mascot/internal/config"
	"github.com/wenmoon/mascot/internal/httpapi"
	"github.com/wenmoon/mascot/internal/lifecycle"
	"github.com/wenmoon/mascot/internal/memory"
	"github.com/wenmoon/mascot/internal/observability"
	"github.com/wenmoon/mascot/internal/session"
)

type ProviderInfo struct {
	LLM       string
	TTS       string
	Sentiment string
}

type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Sessions    *session.Manager
	Chat        *chat.Orchestrator
	Clock       *lifecycle.Clock
	Transcripts memory.Store
	Metrics     *observability.Metrics
	Providers   ProviderInfo

	// Cleanup should be called on shutdown to release external resources (DB pools, files).
	Cleanup func() error
}

// Build wires the service from cfg. Missing provider credentials do not fail the
// build; turns that need the provider report a config error instead.
func Build(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := lifecycle.NewClock(loc)

	transcripts, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("transcript store init failed: %w", err)
	}

	llmSetup, err := resolveLLM(ctx, cfg, logger)
	if err != nil {
		_ = transcripts.Close()
		return nil, err
	}
	ttsSetup := resolveTTS(cfg, logger)
	classifier, sentimentDetail := resolveSentiment(cfg, llmSetup.client, logger)

	orch := chat.New(chat.Deps{
		LLM:         llmSetup.client,
		TTS:         ttsSetup.synth,
		Sentiment:   classifier,
		Transcripts: transcripts,
		Clock:       clock,
		Voices: lifecycle.Voices{
			Baby:  cfg.VoiceBaby,
			Adult: cfg.VoiceAdult,
			Old:   cfg.VoiceOld,
		},
		Metrics: metrics,
		Logger:  logger,
	}, chat.Options{
		Temperature:       cfg.LLMTemperature,
		MaxTokens:         cfg.LLMMaxTokens,
		HistoryMaxEntries: cfg.HistoryMaxEntries,
		TurnTimeout:       cfg.TurnTimeout,
		PhraseMinChars:    cfg.PhraseMinChars,
		PhraseMaxChars:    cfg.PhraseMaxChars,
		TTSModelID:        cfg.ElevenLabsTTSModel,
		OutputFormat:      cfg.ElevenLabsTTSOutputFormat,
	})

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(s *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
		forgetCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := orch.Forget(forgetCtx, s.ID); err != nil {
			logger.Warn().Err(err).Str("session_id", s.ID).Msg("forget expired session failed")
		}
	})

	api := httpapi.New(cfg, httpapi.Deps{
		Sessions:    sessions,
		Chat:        orch,
		Sentiment:   classifier,
		Clock:       clock,
		Transcripts: transcripts,
		Metrics:     metrics,
		Logger:      logger,
	})

	cleanup := func() error {
		var errs []string
		if err := transcripts.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Sessions:    sessions,
		Chat:        orch,
		Clock:       clock,
		Transcripts: transcripts,
		Metrics:     metrics,
		Providers: ProviderInfo{
			LLM:       llmSetup.detail,
			TTS:       ttsSetup.detail,
			Sentiment: sentimentDetail,
		},
		Cleanup: cleanup,
	}, nil
}
