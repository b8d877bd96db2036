package voice

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wenmoon/mascot/internal/reliability"
)

// ElevenLabsStream synthesizes a phrase over the stream-input websocket, which
// starts returning audio before the whole phrase is rendered.
type ElevenLabsStream struct {
	cfg    ElevenLabsConfig
	dialer *websocket.Dialer
}

func NewElevenLabsStream(cfg ElevenLabsConfig) *ElevenLabsStream {
	cfg = cfg.withDefaults()
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = cfg.Timeout
	return &ElevenLabsStream{cfg: cfg, dialer: &dialer}
}

func (p *ElevenLabsStream) Synthesize(ctx context.Context, req Request) (Audio, error) {
	if strings.TrimSpace(req.VoiceID) == "" {
		return Audio{}, fmt.Errorf("voice_id is required")
	}
	format := req.OutputFormat
	if format == "" {
		format = p.cfg.OutputFormat
	}

	u, err := url.Parse(p.cfg.WSBaseURL + "/v1/text-to-speech/" + url.PathEscape(req.VoiceID) + "/stream-input")
	if err != nil {
		return Audio{}, err
	}
	q := u.Query()
	q.Set("model_id", req.ModelID)
	q.Set("output_format", format)
	q.Set("auto_mode", "true")
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("xi-api-key", p.cfg.APIKey)

	conn, res, err := p.dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		if res != nil && res.StatusCode != http.StatusSwitchingProtocols {
			return Audio{}, &StatusError{Provider: "elevenlabs", Code: res.StatusCode, Body: err.Error()}
		}
		return Audio{}, fmt.Errorf("dial tts websocket: %w", err)
	}
	s := &phraseStream{conn: conn, readTimeout: p.cfg.Timeout}
	defer s.close()

	stop := context.AfterFunc(ctx, func() { s.close() })
	defer stop()

	// Prime the stream, send the phrase, then an empty text to end input.
	if err := s.writeJSON(map[string]any{
		"text":           " ",
		"voice_settings": settingsPayload(req.Settings),
	}); err != nil {
		return Audio{}, fmt.Errorf("prime tts stream: %w", err)
	}
	if err := s.writeJSON(map[string]any{"text": req.Text + " ", "try_trigger_generation": true}); err != nil {
		return Audio{}, fmt.Errorf("send tts text: %w", err)
	}
	if err := s.writeJSON(map[string]any{"text": ""}); err != nil {
		return Audio{}, fmt.Errorf("close tts input: %w", err)
	}

	data, err := s.collect()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Audio{}, ctxErr
	}
	if err != nil {
		return Audio{}, err
	}
	return Audio{
		Data:    data,
		Format:  ContentType(format),
		ModelID: req.ModelID,
		VoiceID: req.VoiceID,
	}, nil
}

type phraseStream struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	writeMu     sync.Mutex
	closeOnce   sync.Once
}

func (s *phraseStream) writeJSON(payload map[string]any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *phraseStream) close() {
	s.closeOnce.Do(func() { _ = s.conn.Close() })
}

// collect reads audio frames until isFinal or a normal close. Each frame must
// arrive within readTimeout of the previous one.
func (s *phraseStream) collect() ([]byte, error) {
	var buf bytes.Buffer
	for {
		if s.readTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		}
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && buf.Len() > 0 {
				return buf.Bytes(), nil
			}
			return nil, fmt.Errorf("read tts stream: %w", err)
		}
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			continue
		}
		if errMsg := asString(raw["error"]); errMsg != "" {
			code := asString(raw["message_type"])
			return nil, &StreamError{Code: code, Detail: errMsg, Retryable: reliability.IsRetryableRealtimeMessageType(code)}
		}
		if audio := asString(raw["audio"]); audio != "" {
			chunk, err := base64.StdEncoding.DecodeString(audio)
			if err != nil {
				return nil, fmt.Errorf("decode tts audio: %w", err)
			}
			buf.Write(chunk)
		}
		if asBool(raw["isFinal"]) || asBool(raw["is_final"]) {
			if buf.Len() == 0 {
				return nil, errors.New("tts stream finished without audio")
			}
			return buf.Bytes(), nil
		}
	}
}

func asString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return false
}
