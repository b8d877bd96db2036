package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wenmoon/mascot/internal/chat"
	"github.com/wenmoon/mascot/internal/protocol"
	"github.com/wenmoon/mascot/internal/session"
)

const (
	wsReadTimeout   = 120 * time.Second
	wsPingInterval  = 30 * time.Second
	wsWriteTimeout  = 10 * time.Second
	criticalTimeout = 600 * time.Millisecond
)

var errOutboundTimeout = errors.New("outbound queue full")

// handleChatWS serves one session over a websocket. Every user_message starts a
// turn; the orchestrator supersedes whichever turn is still running.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		respondError(w, http.StatusServiceUnavailable, "unavailable", "chat is not configured")
		return
	}
	sessionID, err := s.ensureSession(r.URL.Query().Get("session_id"), session.TransportWebSocket)
	if err != nil {
		respondTurnError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	s.observeSession("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan protocol.Event, 256)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writeLoop(ctx, cancel, conn, outbound)
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	var turns sync.WaitGroup
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_ = s.sessions.Touch(sessionID)

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			s.send(ctx, outbound, protocol.Event{
				Type:      protocol.TypeError,
				SessionID: sessionID,
				Code:      "invalid_client_message",
				Message:   err.Error(),
			})
			continue
		}

		switch msg := parsed.(type) {
		case protocol.UserMessage:
			s.observeWS("inbound", msg.Type)
			msg.SessionID = sessionID
			turns.Add(1)
			go func() {
				defer turns.Done()
				s.runWSTurn(ctx, outbound, msg)
			}()
		case protocol.ClientControl:
			s.observeWS("inbound", msg.Type)
			if msg.Action == protocol.ActionCancel {
				s.chat.Cancel(sessionID)
			}
		}
	}

	cancel()
	turns.Wait()
	<-writerDone
	s.observeSession("ws_disconnected")
}

func (s *Server) runWSTurn(ctx context.Context, outbound chan<- protocol.Event, msg protocol.UserMessage) {
	sink := chat.SinkFunc(func(ev protocol.Event) error {
		return s.send(ctx, outbound, ev)
	})
	res, err := s.runTurn(ctx, msg, sink)
	if err == nil || res.TurnID != "" {
		return
	}
	// The turn never started, so nothing has told the client why.
	_, code := turnErrorStatus(err)
	_ = s.send(ctx, outbound, protocol.Event{
		Type:      protocol.TypeError,
		SessionID: msg.SessionID,
		Code:      code,
		Message:   err.Error(),
	})
}

// writeLoop owns the connection's writes.
func (s *Server) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, outbound <-chan protocol.Event) {
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				cancel()
				return
			}
		case ev := <-outbound:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.observeSession("ws_write_error")
				cancel()
				return
			}
			s.observeWS("outbound", ev.Type)
		}
	}
}

// send queues ev for the writer. Deltas are dropped when the queue is full since
// done carries the whole text; anything else waits briefly and then fails the turn.
func (s *Server) send(ctx context.Context, outbound chan<- protocol.Event, ev protocol.Event) error {
	if ev.Type == protocol.TypeDelta {
		select {
		case outbound <- ev:
		default:
			s.observeSession("outbound_drop")
		}
		return nil
	}

	timer := time.NewTimer(criticalTimeout)
	defer timer.Stop()
	select {
	case outbound <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		s.observeSession("outbound_timeout_critical")
		return errOutboundTimeout
	}
}

func (s *Server) observeWS(direction string, t protocol.MessageType) {
	if s.metrics == nil {
		return
	}
	s.metrics.WSMessages.WithLabelValues(direction, strings.ToLower(string(t))).Inc()
}
