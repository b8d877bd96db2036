package transport

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wenmoon/mascot/internal/protocol"
)

// WebSocket keeps one full-duplex connection for the whole session.
type WebSocket struct {
	conn      *websocket.Conn
	sessionID string

	writeMu   sync.Mutex
	events    chan protocol.Event
	done      chan struct{}
	closeOnce sync.Once

	errMu   sync.Mutex
	readErr error
}

func DialWebSocket(ctx context.Context, baseURL, sessionID string) (*WebSocket, error) {
	u, err := url.Parse(baseURL + wsPath)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	u.RawQuery = q.Encode()

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = dialTimeout
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial chat websocket: %w", err)
	}
	conn.SetReadLimit(8 << 20)

	ws := &WebSocket{
		conn:      conn,
		sessionID: sessionID,
		events:    make(chan protocol.Event, eventBuffer),
		done:      make(chan struct{}),
	}
	go ws.readLoop()
	return ws, nil
}

func (w *WebSocket) Name() string { return string(ModeWS) }

func (w *WebSocket) Send(ctx context.Context, msg protocol.UserMessage) error {
	return w.write(ctx, userMessage(w.sessionID, msg))
}

func (w *WebSocket) Cancel(ctx context.Context) error {
	return w.write(ctx, protocol.ClientControl{
		Type:      protocol.TypeClientControl,
		SessionID: w.sessionID,
		Action:    protocol.ActionCancel,
	})
}

func (w *WebSocket) write(ctx context.Context, payload any) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	deadline := time.Now().Add(writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	_ = w.conn.SetWriteDeadline(deadline)
	if err := w.conn.WriteJSON(payload); err != nil {
		return fmt.Errorf("write chat websocket: %w", err)
	}
	return nil
}

func (w *WebSocket) Receive(ctx context.Context) (protocol.Event, error) {
	select {
	case ev, ok := <-w.events:
		if !ok {
			return protocol.Event{}, w.err()
		}
		return ev, nil
	case <-ctx.Done():
		return protocol.Event{}, ctx.Err()
	}
}

func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.writeMu.Lock()
		_ = w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		w.writeMu.Unlock()
		err = w.conn.Close()
	})
	return err
}

func (w *WebSocket) readLoop() {
	defer close(w.events)
	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			w.setErr(err)
			return
		}
		ev, err := protocol.ParseEvent(data)
		if err != nil {
			continue
		}
		select {
		case w.events <- ev:
		case <-w.done:
			w.setErr(ErrClosed)
			return
		}
	}
}

func (w *WebSocket) setErr(err error) {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	select {
	case <-w.done:
		err = ErrClosed
	default:
	}
	if w.readErr == nil {
		w.readErr = err
	}
}

func (w *WebSocket) err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.readErr == nil {
		return ErrClosed
	}
	return w.readErr
}
