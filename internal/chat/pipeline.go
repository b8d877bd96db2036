package chat

import (
	"context"
	"encoding/base64"
	"strconv"
	"sync"
	"time"

	"github.com/wenmoon/mascot/internal/conversation"
	"github.com/wenmoon/mascot/internal/lifecycle"
	"github.com/wenmoon/mascot/internal/memory"
	"github.com/wenmoon/mascot/internal/mood"
	"github.com/wenmoon/mascot/internal/observability"
	"github.com/wenmoon/mascot/internal/playback"
	"github.com/wenmoon/mascot/internal/protocol"
	"github.com/wenmoon/mascot/internal/voice"
)

// emitter serializes events from the stream, the TTS worker and the playback hooks.
type emitter struct {
	mu        sync.Mutex
	sink      Sink
	sessionID string
	turnID    string
	metrics   *observability.Metrics
	onClose   func()
	closed    bool

	mood  mood.Mood
	trend mood.Trend
	stage lifecycle.Stage
}

func newEmitter(sink Sink, sessionID, turnID string, metrics *observability.Metrics, onClose func()) *emitter {
	return &emitter{
		sink:      sink,
		sessionID: sessionID,
		turnID:    turnID,
		metrics:   metrics,
		onClose:   onClose,
	}
}

func (e *emitter) setMood(m mood.Mood, t mood.Trend, s lifecycle.Stage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mood, e.trend, e.stage = m, t, s
}

func (e *emitter) emit(ev protocol.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return errSinkClosed
	}
	ev.SessionID = e.sessionID
	ev.TurnID = e.turnID
	if err := e.sink.Emit(ev); err != nil {
		e.closed = true
		if e.onClose != nil {
			e.onClose()
		}
		return err
	}
	return nil
}

func (e *emitter) state(s State) {
	e.metrics.ObserveTurnState(string(s))
	e.mu.Lock()
	ev := protocol.Event{
		Type:  protocol.TypeState,
		State: string(s),
		Mood:  string(e.mood),
		Trend: string(e.trend),
		Stage: string(e.stage),
	}
	e.mu.Unlock()
	_ = e.emit(ev)
}

func deltaEvent(text string) protocol.Event {
	return protocol.Event{Type: protocol.TypeDelta, Text: text}
}

func doneEvent(text string) protocol.Event {
	return protocol.Event{Type: protocol.TypeDone, Text: text}
}

func errorEvent(code, message, fallback string) protocol.Event {
	return protocol.Event{Type: protocol.TypeError, Code: code, Message: message, FallbackText: fallback}
}

func speakingEvent(started bool) protocol.Event {
	if started {
		return protocol.Event{Type: protocol.TypeSpeakingStarted}
	}
	return protocol.Event{Type: protocol.TypeSpeakingEnded}
}

// deliver is the server-side player: a segment is done once it is handed to the client.
func (o *Orchestrator) deliver(em *emitter) playback.Player {
	return playback.PlayerFunc(func(ctx context.Context, seg playback.Segment) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return em.emit(protocol.Event{
			Type:        protocol.TypeAudio,
			Seq:         seg.Seq,
			Format:      seg.Format,
			ModelID:     seg.ModelID,
			Text:        seg.Text,
			AudioBase64: base64.StdEncoding.EncodeToString(seg.Data),
		})
	})
}

// speaker is the per-turn TTS worker: phrases are synthesized one at a time in the
// order they were split, and each result goes to the playback queue.
type speaker struct {
	o       *Orchestrator
	ctx     context.Context
	t       *turn
	base    voice.Request
	mood    mood.Mood
	trend   mood.Trend
	fail    context.CancelCauseFunc
	phrases chan string
	done    chan struct{}
	once    sync.Once

	mu    sync.Mutex
	err   error
	count int
	first bool
}

func newSpeaker(ctx context.Context, o *Orchestrator, t *turn, base voice.Request, m mood.Mood, trend mood.Trend, fail context.CancelCauseFunc) *speaker {
	return &speaker{
		o:       o,
		ctx:     ctx,
		t:       t,
		base:    base,
		mood:    m,
		trend:   trend,
		fail:    fail,
		phrases: make(chan string, 64),
		done:    make(chan struct{}),
		first:   true,
	}
}

func (s *speaker) push(p string) error {
	select {
	case s.phrases <- p:
		return nil
	case <-s.ctx.Done():
		return context.Cause(s.ctx)
	}
}

// stop closes the phrase FIFO and waits for the worker to finish what it holds.
func (s *speaker) stop() error {
	s.once.Do(func() { close(s.phrases) })
	<-s.done
	return s.Err()
}

func (s *speaker) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *speaker) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *speaker) run() {
	defer close(s.done)
	for p := range s.phrases {
		if s.ctx.Err() != nil {
			continue
		}
		text := voice.SanitizeSpeechText(p)
		if text == "" {
			continue
		}

		req := s.base
		req.Text = mood.Augment(text, s.mood, s.trend)
		started := time.Now()
		audio, err := s.o.deps.TTS.Synthesize(s.ctx, req)
		if err != nil {
			if s.ctx.Err() != nil {
				continue
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			s.fail(err)
			continue
		}
		s.o.observeAudio(audio, time.Since(started))

		s.mu.Lock()
		s.count++
		seq := s.count
		first := s.first
		s.first = false
		s.mu.Unlock()
		if first {
			s.o.deps.Metrics.ObserveTurnStage("request_to_first_phrase", time.Since(s.t.startedAt))
		}

		s.t.queue.Enqueue(playback.Segment{
			Seq:     seq,
			Data:    audio.Data,
			Format:  audio.Format,
			ModelID: audio.ModelID,
			Text:    text,
		})
	}
}

func memoryRecord(t *turn, res Result, role conversation.Role, content string, redacted bool) memory.TurnRecord {
	return memory.TurnRecord{
		SessionID:   t.sessionID,
		TurnID:      t.id,
		Role:        string(role),
		Content:     content,
		Mood:        string(res.Mood),
		Stage:       string(res.Stage),
		PIIRedacted: redacted,
	}
}

func statusCode(code int) string {
	return strconv.Itoa(code)
}
