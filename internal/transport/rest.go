package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/wenmoon/mascot/internal/protocol"
)

// StatusError is a non-2xx reply to a stream request.
type StatusError struct {
	Code    int
	ErrCode string
	Message string
}

func (e *StatusError) Error() string {
	if e.ErrCode != "" {
		return fmt.Sprintf("chat stream status %d (%s): %s", e.Code, e.ErrCode, e.Message)
	}
	return fmt.Sprintf("chat stream status %d: %s", e.Code, e.Message)
}

// REST posts each message to the streaming endpoint and reads the reply as
// server-sent events. A new Send drops the previous response stream, which the
// server treats as a cancel.
type REST struct {
	client    *http.Client
	endpoint  string
	sessionID string

	events chan protocol.Event
	base   context.Context
	stop   context.CancelFunc

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewREST(baseURL, sessionID string, client *http.Client) *REST {
	if client == nil {
		client = &http.Client{}
	}
	base, stop := context.WithCancel(context.Background())
	return &REST{
		client:    client,
		endpoint:  strings.TrimRight(baseURL, "/") + streamPath,
		sessionID: sessionID,
		events:    make(chan protocol.Event, eventBuffer),
		base:      base,
		stop:      stop,
	}
}

func (r *REST) Name() string { return string(ModeREST) }

func (r *REST) Send(ctx context.Context, msg protocol.UserMessage) error {
	payload, err := json.Marshal(userMessage(r.sessionID, msg))
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	r.mu.Lock()
	if r.base.Err() != nil {
		r.mu.Unlock()
		return ErrClosed
	}
	if r.cancel != nil {
		r.cancel()
	}
	streamCtx, cancel := context.WithCancel(r.base)
	r.cancel = cancel
	r.mu.Unlock()

	// ctx bounds the request until headers arrive; the body outlives Send.
	unbind := context.AfterFunc(ctx, cancel)
	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		unbind()
		cancel()
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	res, err := r.client.Do(req)
	unbind()
	if err != nil {
		cancel()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("send message: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer res.Body.Close()
		cancel()
		return readStatusError(res)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer res.Body.Close()
		r.consume(streamCtx, res.Body)
	}()
	return nil
}

// Cancel drops the running response stream.
func (r *REST) Cancel(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.base.Err() != nil {
		return ErrClosed
	}
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	return nil
}

func (r *REST) Receive(ctx context.Context) (protocol.Event, error) {
	select {
	case ev := <-r.events:
		return ev, nil
	case <-r.base.Done():
		return protocol.Event{}, ErrClosed
	case <-ctx.Done():
		return protocol.Event{}, ctx.Err()
	}
}

func (r *REST) Close() error {
	r.mu.Lock()
	r.stop()
	r.mu.Unlock()
	r.wg.Wait()
	return nil
}

// consume forwards `data:` payloads until the body ends or the stream is dropped.
func (r *REST) consume(ctx context.Context, body io.Reader) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		ev, err := protocol.ParseEvent([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))))
		if err != nil {
			continue
		}
		select {
		case r.events <- ev:
		case <-ctx.Done():
			return
		}
		if ev.Terminal() {
			return
		}
	}
}

func readStatusError(res *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &StatusError{Code: res.StatusCode, ErrCode: payload.Code, Message: payload.Error}
	}
	return &StatusError{Code: res.StatusCode, Message: strings.TrimSpace(string(body))}
}
