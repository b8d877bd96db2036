package voice

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wenmoon/mascot/internal/mood"
)

func TestElevenLabsRESTSynthesize(t *testing.T) {
	var got ttsPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("output_format") != "mp3_44100_128" {
			t.Errorf("output_format = %q", r.URL.Query().Get("output_format"))
		}
		if r.Header.Get("xi-api-key") != "xi-test" {
			t.Errorf("xi-api-key = %q", r.Header.Get("xi-api-key"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	p := NewElevenLabsREST(ElevenLabsConfig{APIKey: "xi-test", BaseURL: srv.URL})
	audio, err := p.Synthesize(context.Background(), Request{
		Text:     "[excited] to the moon!",
		VoiceID:  "voice-1",
		ModelID:  "eleven_v3",
		Settings: mood.Map(mood.Excited).Settings,
	})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio.Data) != "mp3-bytes" || audio.Format != "audio/mpeg" || audio.ModelID != "eleven_v3" {
		t.Fatalf("audio = %+v", audio)
	}
	if got.ModelID != "eleven_v3" || got.Text != "[excited] to the moon!" {
		t.Fatalf("payload = %+v", got)
	}
	if got.VoiceSettings.Stability != 0 {
		t.Fatalf("stability = %v, want 0", got.VoiceSettings.Stability)
	}
}

func TestElevenLabsRESTStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid stability"}`, http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := NewElevenLabsREST(ElevenLabsConfig{APIKey: "k", BaseURL: srv.URL})
	_, err := p.Synthesize(context.Background(), Request{Text: "hi", VoiceID: "v", ModelID: "eleven_v3"})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Synthesize() error = %v, want 422 StatusError", err)
	}
	if !strings.Contains(se.Body, "invalid stability") {
		t.Fatalf("Body = %q", se.Body)
	}
}

func TestElevenLabsStreamCollectsAudio(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-2/stream-input" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.URL.Query().Get("model_id") != "eleven_turbo_v2_5" {
			t.Errorf("model_id = %q", r.URL.Query().Get("model_id"))
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var texts []string
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			text, _ := msg["text"].(string)
			texts = append(texts, text)
			if text == "" {
				break
			}
		}
		if len(texts) != 3 || texts[1] != "gm frens " {
			t.Errorf("texts = %q", texts)
		}
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("abc"))})
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("def"))})
		_ = conn.WriteJSON(map[string]any{"isFinal": true})
	}))
	defer srv.Close()

	p := NewElevenLabsStream(ElevenLabsConfig{APIKey: "k", WSBaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	audio, err := p.Synthesize(context.Background(), Request{Text: "gm frens", VoiceID: "voice-2", ModelID: "eleven_turbo_v2_5"})
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if string(audio.Data) != "abcdef" {
		t.Fatalf("audio.Data = %q, want %q", audio.Data, "abcdef")
	}
	if audio.ModelID != "eleven_turbo_v2_5" {
		t.Fatalf("audio.ModelID = %q", audio.ModelID)
	}
}

func TestElevenLabsStreamReportsVendorError(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var msg map[string]any
		_ = conn.ReadJSON(&msg)
		_ = conn.WriteJSON(map[string]any{"message_type": "rate_limited", "error": "slow down"})
	}))
	defer srv.Close()

	p := NewElevenLabsStream(ElevenLabsConfig{APIKey: "k", WSBaseURL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	_, err := p.Synthesize(context.Background(), Request{Text: "x", VoiceID: "v", ModelID: "m"})
	var se *StreamError
	if !errors.As(err, &se) || !se.Retryable {
		t.Fatalf("Synthesize() error = %v, want retryable StreamError", err)
	}
}

func TestElevenLabsStreamTimesOutOnStalledVendor(t *testing.T) {
	release := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for i := 0; i < 3; i++ {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
		}
		_ = conn.WriteJSON(map[string]any{"audio": base64.StdEncoding.EncodeToString([]byte("abc"))})
		<-release
	}))
	defer srv.Close()
	defer close(release)

	p := NewElevenLabsStream(ElevenLabsConfig{
		APIKey:    "k",
		WSBaseURL: "ws" + strings.TrimPrefix(srv.URL, "http"),
		Timeout:   150 * time.Millisecond,
	})
	started := time.Now()
	_, err := p.Synthesize(context.Background(), Request{Text: "gm", VoiceID: "v", ModelID: "m"})
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("Synthesize() error = %v, want read timeout", err)
	}
	if elapsed := time.Since(started); elapsed > 2*time.Second {
		t.Fatalf("Synthesize() took %v, want it bounded by the read timeout", elapsed)
	}
}
