package voice

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/wenmoon/mascot/internal/mood"
)

type stubSynth struct {
	mu    sync.Mutex
	calls []Request
	fn    func(Request) (Audio, error)
}

func (s *stubSynth) Synthesize(_ context.Context, req Request) (Audio, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	s.mu.Unlock()
	return s.fn(req)
}

func TestFallbackRetriesOnceWithFallbackModel(t *testing.T) {
	var (
		mu     sync.Mutex
		models []string
		texts  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body ttsPayload
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		models = append(models, body.ModelID)
		texts = append(texts, body.Text)
		mu.Unlock()
		if body.ModelID == "eleven_v3" {
			http.Error(w, "unsupported stability", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("turbo-audio"))
	}))
	defer srv.Close()

	rest := NewElevenLabsREST(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL})
	f := NewFallback(rest, rest, "fallback-voice", "eleven_turbo_v2_5", zerolog.Nop())

	text := mood.Augment("I love this, to the moon!", mood.Excited, mood.TrendUp)
	audio, err := f.Synthesize(context.Background(), Request{
		Text:     text,
		VoiceID:  "adult-voice",
		ModelID:  "eleven_v3",
		Settings: mood.Map(mood.Excited).Settings,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if audio.ModelID != "eleven_turbo_v2_5" || audio.VoiceID != "fallback-voice" {
		t.Fatalf("audio tagged %q/%q, want fallback model and voice", audio.ModelID, audio.VoiceID)
	}
	if string(audio.Data) != "turbo-audio" {
		t.Fatalf("audio.Data = %q", audio.Data)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(models) != 2 || models[0] != "eleven_v3" || models[1] != "eleven_turbo_v2_5" {
		t.Fatalf("models = %q, want primary then fallback", models)
	}
	if texts[1] != "I love this, to the moon!" {
		t.Fatalf("fallback text = %q, want tags stripped", texts[1])
	}
	if f.Fallbacks() != 1 {
		t.Fatalf("Fallbacks() = %d, want 1", f.Fallbacks())
	}
}

func TestFallbackReportsRepeatedFailure(t *testing.T) {
	fail := &stubSynth{fn: func(Request) (Audio, error) {
		return Audio{}, &StatusError{Provider: "elevenlabs", Code: 500}
	}}
	f := NewFallback(fail, fail, "", "eleven_turbo_v2_5", zerolog.Nop())

	_, err := f.Synthesize(context.Background(), Request{Text: "x", VoiceID: "v", ModelID: "eleven_v3"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Synthesize() error = %v, want wrapped StatusError", err)
	}
	if len(fail.calls) != 2 {
		t.Fatalf("calls = %d, want exactly one retry", len(fail.calls))
	}
}

func TestFallbackDoesNotRetryCanceled(t *testing.T) {
	primary := &stubSynth{fn: func(Request) (Audio, error) { return Audio{}, context.Canceled }}
	secondary := &stubSynth{fn: func(Request) (Audio, error) { return Audio{}, nil }}
	f := NewFallback(primary, secondary, "", "", zerolog.Nop())

	if _, err := f.Synthesize(context.Background(), Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Synthesize() error = %v, want canceled", err)
	}
	if len(secondary.calls) != 0 {
		t.Fatalf("fallback called after cancellation")
	}
}

func TestCheckConfigured(t *testing.T) {
	credErr := errors.New("ELEVENLABS_API_KEY is not set")
	f := NewFallback(&Unconfigured{Err: credErr}, NewMock(), "", "", zerolog.Nop())
	if err := CheckConfigured(f); !errors.Is(err, credErr) {
		t.Fatalf("CheckConfigured() = %v, want credential error", err)
	}
	if err := CheckConfigured(NewMock()); err != nil {
		t.Fatalf("CheckConfigured(mock) = %v", err)
	}
}
