package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wenmoon/mascot/internal/conversation"
	"github.com/wenmoon/mascot/internal/lifecycle"
	"github.com/wenmoon/mascot/internal/llm"
	"github.com/wenmoon/mascot/internal/mood"
	"github.com/wenmoon/mascot/internal/observability"
	"github.com/wenmoon/mascot/internal/persona"
	"github.com/wenmoon/mascot/internal/phrase"
	"github.com/wenmoon/mascot/internal/playback"
	"github.com/wenmoon/mascot/internal/policy"
	"github.com/wenmoon/mascot/internal/sentiment"
	"github.com/wenmoon/mascot/internal/voice"
)

var (
	ErrMissingSession = errors.New("session id is required")
	ErrTurnTimeout    = errors.New("turn timed out")
)

// Orchestrator runs chat turns: language model stream, phrase splitting, sequential
// synthesis and ordered playback. A new message for a session supersedes the turn
// still running for it; different sessions never wait on each other.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger zerolog.Logger
	tracer trace.Tracer

	turnMu sync.Mutex
	turns  map[string]*turn
}

// turn is the per-message state owned by one Stream call. Its splitter and queue are
// touched by the next turn only after done is closed.
type turn struct {
	id        string
	sessionID string
	startedAt time.Time
	cancel    context.CancelCauseFunc
	done      chan struct{}
	splitter  *phrase.Splitter
	queue     *playback.Queue
}

func New(deps Deps, opts Options) *Orchestrator {
	if deps.History == nil {
		deps.History = conversation.NewInMemoryStore()
	}
	if deps.Sentiment == nil {
		deps.Sentiment = sentiment.KeywordClassifier{}
	}
	if deps.Clock == nil {
		deps.Clock = lifecycle.NewClock(nil)
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts.withDefaults(),
		logger: deps.Logger.With().Str("component", "chat").Logger(),
		tracer: observability.Tracer(),
		turns:  make(map[string]*turn),
	}
}

// CheckReady reports the configuration error that would abort a turn, if any.
func (o *Orchestrator) CheckReady(speak bool) error {
	if err := llm.CheckConfigured(o.deps.LLM); err != nil {
		return err
	}
	if speak {
		return voice.CheckConfigured(o.deps.TTS)
	}
	return nil
}

// Stream runs one turn and reports its progress to sink. Configuration and input
// errors are returned before any state changes.
func (o *Orchestrator) Stream(ctx context.Context, req Request, sink Sink) (Result, error) {
	req, err := o.prepare(req)
	if err != nil {
		return Result{}, err
	}
	if sink == nil {
		sink = Discard
	}

	t, prev, turnCtx := o.beginTurn(ctx, req.SessionID)
	defer o.finishTurn(t, prev)

	turnCtx, span := o.tracer.Start(turnCtx, "chat.turn", trace.WithAttributes(
		attribute.String("session.id", req.SessionID),
		attribute.String("chat.turn_id", t.id),
		attribute.Bool("chat.speak", req.Speak),
	))
	defer span.End()

	res := Result{SessionID: req.SessionID, TurnID: t.id}
	em := newEmitter(sink, req.SessionID, t.id, o.deps.Metrics, func() { t.cancel(errSinkClosed) })
	em.state(StateStreamRequested)

	if prev != nil {
		select {
		case <-prev.done:
			prev.splitter.Reset()
			if prev.queue != nil {
				prev.queue.Clear()
			}
		case <-turnCtx.Done():
		}
	}
	if turnCtx.Err() != nil {
		return o.canceled(turnCtx, em, span, res)
	}

	res.Trend = req.Trend
	if res.Trend == "" {
		res.Trend = mood.TrendNeutral
	}
	res.Mood = req.Mood
	if res.Mood == "" {
		res.Mood = o.deriveMood(turnCtx, req.Text, res.Trend)
	}
	res.Stage = req.Stage
	if res.Stage == "" {
		res.Stage = o.deps.Clock.Stage()
	}
	span.SetAttributes(
		attribute.String("chat.mood", string(res.Mood)),
		attribute.String("chat.trend", string(res.Trend)),
		attribute.String("chat.stage", string(res.Stage)),
	)
	em.setMood(res.Mood, res.Trend, res.Stage)

	system := persona.BuildSystemPrompt(persona.Context{
		Mood:     res.Mood,
		Trend:    res.Trend,
		Stage:    res.Stage,
		HasImage: req.ImageURL != "",
	})
	userMsg := conversation.Message{Role: conversation.RoleUser, Content: req.Text, ImageURL: req.ImageURL}
	history, err := o.loadHistory(turnCtx, req.SessionID, system)
	if err != nil {
		return o.fail(turnCtx, t, em, span, res, "history", err, "", nil)
	}

	pipeCtx, pipeCancel := context.WithCancelCause(turnCtx)
	defer pipeCancel(nil)

	var sp *speaker
	if req.Speak {
		t.queue = playback.New(o.deliver(em), playback.Hooks{
			OnStarted: func() {
				o.deps.Metrics.ObserveFirstAudioLatency(time.Since(t.startedAt))
				o.deps.Metrics.ObserveTurnStage("request_to_first_audio", time.Since(t.startedAt))
				_ = em.emit(speakingEvent(true))
			},
			OnEnded: func() {
				_ = em.emit(speakingEvent(false))
			},
			OnError: func(seg playback.Segment, err error) {
				o.logger.Debug().Err(err).Str("turn_id", t.id).Int("seq", seg.Seq).Msg("audio segment not delivered")
			},
		})
		sp = newSpeaker(pipeCtx, o, t, o.voiceRequest(res.Stage, res.Mood), res.Mood, res.Trend, pipeCancel)
		go sp.run()
	}
	abort := func(cause error) {
		pipeCancel(cause)
		if sp != nil {
			sp.stop()
		}
		if t.queue != nil {
			t.queue.Clear()
		}
	}

	em.state(StateStreaming)
	var text strings.Builder
	firstDelta := true
	resp, streamErr := o.deps.LLM.Stream(pipeCtx, o.llmRequest(history, userMsg), func(delta string) error {
		if delta == "" {
			return nil
		}
		if pipeCtx.Err() != nil {
			return context.Cause(pipeCtx)
		}
		if firstDelta {
			firstDelta = false
			o.deps.Metrics.ObserveTurnStage("request_to_first_delta", time.Since(t.startedAt))
		}
		text.WriteString(delta)
		if err := em.emit(deltaEvent(delta)); err != nil {
			return err
		}
		if sp == nil {
			return nil
		}
		for _, p := range t.splitter.AddChunk(delta) {
			if err := sp.push(p); err != nil {
				return err
			}
		}
		return nil
	})
	full := text.String()
	if streamErr == nil && full == "" {
		full = resp.Text
	}
	if resp.Skipped > 0 {
		o.logger.Debug().Int("skipped", resp.Skipped).Str("turn_id", t.id).Msg("skipped malformed stream lines")
	}

	if stopped(turnCtx) {
		abort(context.Cause(turnCtx))
		return o.canceled(turnCtx, em, span, res)
	}
	if sp != nil {
		if ttsErr := sp.Err(); ttsErr != nil {
			abort(ttsErr)
			return o.fail(turnCtx, t, em, span, res, "tts", ttsErr, full, nil)
		}
	}
	if streamErr == nil && strings.TrimSpace(full) == "" {
		streamErr = errors.New("language model returned an empty reply")
	}
	if streamErr != nil {
		if turnCtx.Err() != nil {
			streamErr = context.Cause(turnCtx)
		}
		abort(streamErr)
		// Keep what was said so the next turn has context. A reply that never
		// started leaves history as it was, so a retry does not repeat the user entry.
		var partial []conversation.Message
		if strings.TrimSpace(full) != "" {
			partial = []conversation.Message{
				userMsg,
				{Role: conversation.RoleAssistant, Content: full},
			}
		}
		return o.fail(turnCtx, t, em, span, res, "llm", streamErr, full, partial)
	}

	em.state(StateDraining)
	if sp != nil {
		if rest := t.splitter.Flush(); rest != "" {
			_ = sp.push(rest)
		}
		ttsErr := sp.stop()
		if stopped(turnCtx) {
			abort(context.Cause(turnCtx))
			return o.canceled(turnCtx, em, span, res)
		}
		if ttsErr != nil {
			abort(ttsErr)
			return o.fail(turnCtx, t, em, span, res, "tts", ttsErr, full, nil)
		}
		t.queue.MarkStreamComplete()
		if err := t.queue.WaitIdle(turnCtx); err != nil {
			abort(context.Cause(turnCtx))
			if stopped(turnCtx) {
				return o.canceled(turnCtx, em, span, res)
			}
			return o.fail(turnCtx, t, em, span, res, "playback", context.Cause(turnCtx), full, nil)
		}
		res.Phrases = sp.Count()
	}
	if stopped(turnCtx) {
		return o.canceled(turnCtx, em, span, res)
	}

	res.Text = full
	res.State = StateComplete
	assistantMsg := conversation.Message{Role: conversation.RoleAssistant, Content: full}
	if err := o.commit(turnCtx, t, res, userMsg, assistantMsg); err != nil {
		return o.fail(turnCtx, t, em, span, res, "history", err, full, nil)
	}

	o.deps.Metrics.ObserveTurnStage("turn_total", time.Since(t.startedAt))
	span.SetAttributes(attribute.Int("chat.phrases", res.Phrases))
	em.state(StateComplete)
	_ = em.emit(doneEvent(full))
	o.logger.Info().
		Str("session_id", req.SessionID).
		Str("turn_id", t.id).
		Str("mood", string(res.Mood)).
		Str("stage", string(res.Stage)).
		Int("phrases", res.Phrases).
		Dur("elapsed", time.Since(t.startedAt)).
		Msg("turn complete")
	return res, nil
}

// Reply runs a turn without audio and returns the full text.
func (o *Orchestrator) Reply(ctx context.Context, req Request) (Result, error) {
	req.Speak = false
	return o.Stream(ctx, req, Discard)
}

// Speak synthesizes a single line with the mood and lifecycle voice applied.
func (o *Orchestrator) Speak(ctx context.Context, req SpeakRequest) (voice.Audio, error) {
	if err := voice.CheckConfigured(o.deps.TTS); err != nil {
		return voice.Audio{}, err
	}
	text := voice.SanitizeSpeechText(req.Text)
	if text == "" {
		return voice.Audio{}, ErrEmptyMessage
	}
	trend := req.Trend
	if trend == "" {
		trend = mood.TrendNeutral
	}
	m := req.Mood
	if m == "" {
		m = o.deriveMood(ctx, text, trend)
	}
	stage := req.Stage
	if stage == "" {
		stage = o.deps.Clock.Stage()
	}

	vr := o.voiceRequest(stage, m)
	vr.Text = mood.Augment(text, m, trend)
	started := time.Now()
	audio, err := o.deps.TTS.Synthesize(ctx, vr)
	if err != nil {
		o.deps.Metrics.ObserveProviderError("tts", errorCode(err))
		return voice.Audio{}, err
	}
	o.observeAudio(audio, time.Since(started))
	return audio, nil
}

// Cancel stops the session's running turn. It reports whether one was running.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.turnMu.Lock()
	t := o.turns[sessionID]
	o.turnMu.Unlock()
	if t == nil {
		return false
	}
	t.cancel(ErrTurnCanceled)
	return true
}

// Forget cancels the session's turn and drops its history.
func (o *Orchestrator) Forget(ctx context.Context, sessionID string) error {
	o.turnMu.Lock()
	t := o.turns[sessionID]
	o.turnMu.Unlock()
	if t != nil {
		t.cancel(ErrTurnCanceled)
		select {
		case <-t.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := o.deps.History.Delete(ctx, sessionID); err != nil && !errors.Is(err, conversation.ErrNotFound) {
		return err
	}
	return nil
}

// ActiveTurns reports how many sessions have a turn in flight.
func (o *Orchestrator) ActiveTurns() int {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()
	return len(o.turns)
}

func (o *Orchestrator) prepare(req Request) (Request, error) {
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		return req, ErrMissingSession
	}
	req.Text = strings.TrimSpace(req.Text)
	req.ImageURL = strings.TrimSpace(req.ImageURL)
	if req.Text == "" && req.ImageURL == "" {
		return req, ErrEmptyMessage
	}
	if err := o.CheckReady(req.Speak); err != nil {
		return req, err
	}
	return req, nil
}

func (o *Orchestrator) beginTurn(parent context.Context, sessionID string) (*turn, *turn, context.Context) {
	ctx, cancel := context.WithCancelCause(parent)
	if o.opts.TurnTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, o.opts.TurnTimeout, ErrTurnTimeout)
		inner := cancel
		cancel = func(cause error) {
			inner(cause)
			stop()
		}
	}

	t := &turn{
		id:        uuid.NewString(),
		sessionID: sessionID,
		startedAt: time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
		splitter:  phrase.NewWithLimits(o.opts.PhraseMinChars, o.opts.PhraseMaxChars),
	}

	o.turnMu.Lock()
	prev := o.turns[sessionID]
	o.turns[sessionID] = t
	o.turnMu.Unlock()

	if prev != nil {
		prev.cancel(ErrTurnSuperseded)
		o.deps.Metrics.ObserveTurnIndicator("superseded")
	}
	return t, prev, ctx
}

// finishTurn releases the turn. done closes only after the superseded turn has
// finished too, so a chain of quick messages unwinds in order.
func (o *Orchestrator) finishTurn(t, prev *turn) {
	if t.queue != nil {
		t.queue.Clear()
	}
	t.cancel(nil)
	if prev != nil {
		<-prev.done
	}

	o.turnMu.Lock()
	if o.turns[t.sessionID] == t {
		delete(o.turns, t.sessionID)
	}
	o.turnMu.Unlock()
	close(t.done)
}

func (o *Orchestrator) canceled(ctx context.Context, em *emitter, span trace.Span, res Result) (Result, error) {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	span.SetAttributes(attribute.String("chat.cancel_cause", cause.Error()))
	em.state(StateCanceled)
	res.State = StateCanceled
	o.logger.Debug().Err(cause).Str("session_id", res.SessionID).Str("turn_id", res.TurnID).Msg("turn canceled")
	return res, cause
}

// fail ends the turn with an error event. keep, when set, is appended to history
// as a best effort.
func (o *Orchestrator) fail(ctx context.Context, t *turn, em *emitter, span trace.Span, res Result, source string, err error, partial string, keep []conversation.Message) (Result, error) {
	fallback := persona.FallbackReply(res.Mood)
	if len(keep) > 0 {
		if cerr := o.commit(ctx, t, res, keep...); cerr != nil {
			o.logger.Warn().Err(cerr).Str("session_id", res.SessionID).Msg("store partial turn failed")
		}
	}

	o.deps.Metrics.ObserveProviderError(source, errorCode(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, source+" failed")
	o.logger.Warn().
		Err(err).
		Str("session_id", res.SessionID).
		Str("turn_id", res.TurnID).
		Str("source", source).
		Int("partial_chars", len(partial)).
		Msg("turn failed")

	em.state(StateFailed)
	_ = em.emit(errorEvent(source, err.Error(), fallback))

	res.State = StateFailed
	res.Text = partial
	res.FallbackText = fallback
	return res, &TurnError{Source: source, Err: err, Partial: partial, FallbackText: fallback}
}

func (o *Orchestrator) loadHistory(ctx context.Context, sessionID, system string) ([]conversation.Message, error) {
	if _, err := o.deps.History.GetOrCreate(ctx, sessionID, system); err != nil {
		return nil, err
	}
	if err := o.deps.History.UpdateSystemEntry(ctx, sessionID, system); err != nil {
		return nil, err
	}
	return o.deps.History.History(ctx, sessionID)
}

// commit appends messages, prunes the history and mirrors the redacted messages
// to the transcript store.
func (o *Orchestrator) commit(ctx context.Context, t *turn, res Result, msgs ...conversation.Message) error {
	ctx = context.WithoutCancel(ctx)
	if err := o.deps.History.Append(ctx, t.sessionID, msgs...); err != nil {
		return err
	}
	if err := o.deps.History.Prune(ctx, t.sessionID, o.opts.HistoryMaxEntries); err != nil {
		return err
	}
	o.mirror(ctx, t, res, msgs)
	return nil
}

func (o *Orchestrator) llmRequest(history []conversation.Message, user conversation.Message) llm.Request {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		// Only the current message carries its image.
		msgs = append(msgs, llm.Message{Role: llm.Role(m.Role), Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: user.Content, ImageURL: user.ImageURL})
	return llm.Request{
		Messages:    msgs,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	}
}

func (o *Orchestrator) deriveMood(ctx context.Context, text string, trend mood.Trend) mood.Mood {
	label, err := o.deps.Sentiment.Classify(ctx, text)
	if err != nil {
		label = sentiment.ClassifyKeywords(text)
	}
	return mood.Derive(string(label), trend, text)
}

func (o *Orchestrator) voiceRequest(stage lifecycle.Stage, m mood.Mood) voice.Request {
	return voice.Request{
		VoiceID:      o.deps.Voices.For(stage),
		ModelID:      o.opts.TTSModelID,
		Settings:     mood.Map(m).Settings,
		OutputFormat: o.opts.OutputFormat,
	}
}

func (o *Orchestrator) observeAudio(audio voice.Audio, elapsed time.Duration) {
	m := o.deps.Metrics
	if m == nil {
		return
	}
	m.PhrasesSpoken.WithLabelValues(audio.ModelID).Inc()
	m.ObserveTurnStage("phrase_to_audio", elapsed)
	if audio.ModelID != o.opts.TTSModelID {
		m.TTSFallbacks.Inc()
		m.ObserveTurnIndicator("tts_fallback")
	}
}

func (o *Orchestrator) mirror(ctx context.Context, t *turn, res Result, msgs []conversation.Message) {
	if o.deps.Transcripts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	for _, msg := range msgs {
		content, redacted := policy.RedactPII(msg.Content)
		err := o.deps.Transcripts.SaveTurn(ctx, memoryRecord(t, res, msg.Role, content, redacted))
		if err != nil {
			o.logger.Warn().Err(err).Str("session_id", t.sessionID).Msg("transcript mirror failed")
			return
		}
	}
}

// stopped reports whether the turn ended for a reason other than its own timeout.
func stopped(ctx context.Context) bool {
	if ctx.Err() == nil {
		return false
	}
	return !errors.Is(context.Cause(ctx), ErrTurnTimeout)
}

func errorCode(err error) string {
	var llmStatus *llm.StatusError
	var ttsStatus *voice.StatusError
	var ttsStream *voice.StreamError
	switch {
	case errors.As(err, &llmStatus):
		return statusCode(llmStatus.Code)
	case errors.As(err, &ttsStatus):
		return statusCode(ttsStatus.Code)
	case errors.As(err, &ttsStream):
		if ttsStream.Code != "" {
			return ttsStream.Code
		}
		return "stream_error"
	case errors.Is(err, ErrTurnTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}
