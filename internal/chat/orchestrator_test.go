package chat

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/wenmoon/mascot/internal/config"
	"github.com/wenmoon/mascot/internal/conversation"
	"github.com/wenmoon/mascot/internal/lifecycle"
	"github.com/wenmoon/mascot/internal/llm"
	"github.com/wenmoon/mascot/internal/memory"
	"github.com/wenmoon/mascot/internal/mood"
	"github.com/wenmoon/mascot/internal/observability"
	"github.com/wenmoon/mascot/internal/protocol"
	"github.com/wenmoon/mascot/internal/voice"
)

type stubLLM struct {
	stream func(ctx context.Context, call int, req llm.Request, onDelta llm.DeltaHandler) (llm.Response, error)

	mu    sync.Mutex
	calls int
	reqs  []llm.Request
}

func (s *stubLLM) Stream(ctx context.Context, req llm.Request, onDelta llm.DeltaHandler) (llm.Response, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.reqs = append(s.reqs, req)
	s.mu.Unlock()
	return s.stream(ctx, call, req, onDelta)
}

func (s *stubLLM) Complete(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Text: "neutral"}, nil
}

func (s *stubLLM) lastRequest() llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reqs[len(s.reqs)-1]
}

// streamDeltas emits deltas in order and then returns err.
func streamDeltas(ctx context.Context, onDelta llm.DeltaHandler, deltas []string, err error) (llm.Response, error) {
	var b strings.Builder
	for _, d := range deltas {
		if cerr := ctx.Err(); cerr != nil {
			return llm.Response{Text: b.String()}, cerr
		}
		if herr := onDelta(d); herr != nil {
			return llm.Response{Text: b.String()}, herr
		}
		b.WriteString(d)
	}
	return llm.Response{Text: b.String()}, err
}

func scripted(deltas []string, err error) *stubLLM {
	return &stubLLM{stream: func(ctx context.Context, _ int, _ llm.Request, onDelta llm.DeltaHandler) (llm.Response, error) {
		return streamDeltas(ctx, onDelta, deltas, err)
	}}
}

type recorder struct {
	mu     sync.Mutex
	events []protocol.Event
}

func (r *recorder) Emit(ev protocol.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) snapshot() []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) types() []protocol.MessageType {
	var out []protocol.MessageType
	for _, ev := range r.snapshot() {
		out = append(out, ev.Type)
	}
	return out
}

func indexOf(types []protocol.MessageType, want protocol.MessageType) int {
	for i, t := range types {
		if t == want {
			return i
		}
	}
	return -1
}

func lastIndexOf(types []protocol.MessageType, want protocol.MessageType) int {
	for i := len(types) - 1; i >= 0; i-- {
		if types[i] == want {
			return i
		}
	}
	return -1
}

type failingTTS struct{}

func (failingTTS) Synthesize(context.Context, voice.Request) (voice.Audio, error) {
	return voice.Audio{}, errors.New("tts primary failed: 400; tts fallback failed: 500")
}

var metricsSeq struct {
	mu sync.Mutex
	n  int
}

func testMetrics() *observability.Metrics {
	metricsSeq.mu.Lock()
	defer metricsSeq.mu.Unlock()
	metricsSeq.n++
	return observability.NewMetrics(fmt.Sprintf("test_chat_%d", metricsSeq.n))
}

func newTestOrchestrator(client llm.Client, tts voice.Synthesizer, history conversation.Store) *Orchestrator {
	if history == nil {
		history = conversation.NewInMemoryStore()
	}
	return New(Deps{
		LLM:     client,
		TTS:     tts,
		History: history,
		Voices:  lifecycle.Voices{Baby: "baby-voice", Adult: "adult-voice", Old: "old-voice"},
		Metrics: testMetrics(),
		Logger:  zerolog.Nop(),
	}, Options{TTSModelID: "eleven_v3"})
}

func TestStreamSpeaksPhrasesInOrder(t *testing.T) {
	client := scripted([]string{"gm fren! ", "wen moon? ", "soon, very soon ser."}, nil)
	history := conversation.NewInMemoryStore()
	o := newTestOrchestrator(client, voice.NewMock(), history)

	rec := &recorder{}
	res, err := o.Stream(context.Background(), Request{
		SessionID: "s1",
		Text:      "to the moon?",
		Mood:      mood.Excited,
		Trend:     mood.TrendUp,
		Stage:     lifecycle.Adult,
		Speak:     true,
	}, rec)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if res.State != StateComplete || res.Text != "gm fren! wen moon? soon, very soon ser." {
		t.Fatalf("Result = %+v", res)
	}
	if res.Phrases < 1 {
		t.Fatalf("Phrases = %d, want at least 1", res.Phrases)
	}

	types := rec.types()
	started := indexOf(types, protocol.TypeSpeakingStarted)
	firstAudio := indexOf(types, protocol.TypeAudio)
	lastAudio := lastIndexOf(types, protocol.TypeAudio)
	ended := indexOf(types, protocol.TypeSpeakingEnded)
	done := indexOf(types, protocol.TypeDone)
	if started < 0 || firstAudio < started || ended < lastAudio || done < ended {
		t.Fatalf("event order = %v", types)
	}
	if lastIndexOf(types, protocol.TypeSpeakingStarted) != started || lastIndexOf(types, protocol.TypeSpeakingEnded) != ended {
		t.Fatalf("want exactly one speaking_started and speaking_ended: %v", types)
	}
	if done != len(types)-1 {
		t.Fatalf("done is not the last event: %v", types)
	}

	seq := 0
	for _, ev := range rec.snapshot() {
		if ev.Type != protocol.TypeAudio {
			continue
		}
		seq++
		if ev.Seq != seq {
			t.Fatalf("audio seq = %d, want %d", ev.Seq, seq)
		}
		if ev.ModelID != "eleven_v3" || ev.TurnID != res.TurnID || ev.SessionID != "s1" {
			t.Fatalf("audio event = %+v", ev)
		}
		data, _ := base64.StdEncoding.DecodeString(ev.AudioBase64)
		if !strings.Contains(string(data), "[excited] ") {
			t.Fatalf("audio text %q lacks mood tag", data)
		}
	}

	msgs, err := history.History(context.Background(), "s1")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(msgs) != 3 || msgs[1].Content != "to the moon?" || msgs[2].Role != conversation.RoleAssistant {
		t.Fatalf("history = %+v", msgs)
	}
	if !strings.Contains(msgs[0].Content, "green") {
		t.Fatalf("system entry lacks the up-trend directive: %q", msgs[0].Content)
	}
}

func TestStreamDerivesMoodFromSentimentAndTrend(t *testing.T) {
	o := newTestOrchestrator(scripted([]string{"lfg!"}, nil), voice.NewMock(), nil)
	rec := &recorder{}
	res, err := o.Stream(context.Background(), Request{
		SessionID: "s1",
		Text:      "love this pump",
		Trend:     mood.TrendUp,
		Stage:     lifecycle.Old,
	}, rec)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if res.Mood != mood.Excited {
		t.Fatalf("Mood = %q, want %q", res.Mood, mood.Excited)
	}
	for _, ev := range rec.snapshot() {
		if ev.Type == protocol.TypeState && ev.State == string(StateStreaming) && ev.Mood != "excited" {
			t.Fatalf("streaming state mood = %q", ev.Mood)
		}
	}
	if indexOf(rec.types(), protocol.TypeAudio) >= 0 {
		t.Fatalf("audio emitted with speak disabled")
	}
}

func TestStreamLastMessageWins(t *testing.T) {
	firstStarted := make(chan struct{})
	client := &stubLLM{stream: func(ctx context.Context, call int, _ llm.Request, onDelta llm.DeltaHandler) (llm.Response, error) {
		if call == 1 {
			_ = onDelta("hmm let me think about")
			close(firstStarted)
			<-ctx.Done()
			return llm.Response{Text: "hmm let me think about"}, ctx.Err()
		}
		return streamDeltas(ctx, onDelta, []string{"second answer."}, nil)
	}}
	history := conversation.NewInMemoryStore()
	o := newTestOrchestrator(client, voice.NewMock(), history)

	rec1 := &recorder{}
	var err1 error
	done1 := make(chan struct{})
	go func() {
		defer close(done1)
		_, err1 = o.Stream(context.Background(), Request{SessionID: "s1", Text: "first", Stage: lifecycle.Adult, Speak: true}, rec1)
	}()
	<-firstStarted

	res2, err2 := o.Stream(context.Background(), Request{SessionID: "s1", Text: "second", Stage: lifecycle.Adult, Speak: true}, &recorder{})
	<-done1

	if !errors.Is(err1, ErrTurnSuperseded) {
		t.Fatalf("first turn error = %v, want ErrTurnSuperseded", err1)
	}
	if err2 != nil || res2.Text != "second answer." {
		t.Fatalf("second turn = %+v, %v", res2, err2)
	}
	evs := rec1.snapshot()
	if last := evs[len(evs)-1]; last.Type != protocol.TypeState || last.State != string(StateCanceled) {
		t.Fatalf("first turn last event = %+v, want canceled state", last)
	}
	if indexOf(rec1.types(), protocol.TypeDone) >= 0 {
		t.Fatalf("superseded turn emitted done")
	}

	msgs, _ := history.History(context.Background(), "s1")
	if len(msgs) != 3 || msgs[1].Content != "second" {
		t.Fatalf("history = %+v, want only the second turn", msgs)
	}
	if o.ActiveTurns() != 0 {
		t.Fatalf("ActiveTurns() = %d, want 0", o.ActiveTurns())
	}
}

func TestStreamSessionsDoNotBlockEachOther(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	client := &stubLLM{stream: func(ctx context.Context, call int, req llm.Request, onDelta llm.DeltaHandler) (llm.Response, error) {
		if req.Messages[len(req.Messages)-1].Content == "slow" {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return llm.Response{}, ctx.Err()
			}
		}
		return streamDeltas(ctx, onDelta, []string{"ok."}, nil)
	}}
	o := newTestOrchestrator(client, voice.NewMock(), nil)

	slowDone := make(chan error, 1)
	go func() {
		_, err := o.Stream(context.Background(), Request{SessionID: "slow-session", Text: "slow"}, Discard)
		slowDone <- err
	}()
	<-started

	if _, err := o.Stream(context.Background(), Request{SessionID: "fast-session", Text: "fast"}, Discard); err != nil {
		t.Fatalf("fast session error = %v", err)
	}
	close(release)
	if err := <-slowDone; err != nil {
		t.Fatalf("slow session error = %v", err)
	}
}

func TestStreamLLMFailureKeepsPartialText(t *testing.T) {
	client := scripted([]string{"gm fren, ", "the chart"}, &llm.StatusError{Provider: "openai", Code: 500, Body: "boom"})
	history := conversation.NewInMemoryStore()
	o := newTestOrchestrator(client, voice.NewMock(), history)

	rec := &recorder{}
	res, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "status?", Mood: mood.Sad, Stage: lifecycle.Adult}, rec)
	var te *TurnError
	if !errors.As(err, &te) || te.Source != "llm" {
		t.Fatalf("Stream() error = %v, want llm TurnError", err)
	}
	if te.Partial != "gm fren, the chart" || res.State != StateFailed {
		t.Fatalf("partial = %q, state = %q", te.Partial, res.State)
	}

	evs := rec.snapshot()
	last := evs[len(evs)-1]
	if last.Type != protocol.TypeError || last.FallbackText == "" || !strings.Contains(last.Message, "500") {
		t.Fatalf("last event = %+v, want error with fallback text", last)
	}
	if prev := evs[len(evs)-2]; prev.State != string(StateFailed) {
		t.Fatalf("event before error = %+v, want failed state", prev)
	}

	msgs, _ := history.History(context.Background(), "s1")
	if len(msgs) != 3 || msgs[2].Content != "gm fren, the chart" {
		t.Fatalf("history = %+v, want user and partial assistant", msgs)
	}
}

func TestStreamLLMFailureBeforeFirstDeltaLeavesHistory(t *testing.T) {
	client := scripted(nil, &llm.StatusError{Provider: "openai", Code: 503, Body: "overloaded"})
	history := conversation.NewInMemoryStore()
	o := newTestOrchestrator(client, voice.NewMock(), history)

	for i := 0; i < 2; i++ {
		_, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "wen moon?", Stage: lifecycle.Adult}, &recorder{})
		var te *TurnError
		if !errors.As(err, &te) || te.Source != "llm" || te.Partial != "" {
			t.Fatalf("attempt %d: Stream() error = %v, want llm TurnError without partial", i, err)
		}
	}

	msgs, _ := history.History(context.Background(), "s1")
	if len(msgs) != 1 || msgs[0].Role != conversation.RoleSystem {
		t.Fatalf("history = %+v, want only the system entry", msgs)
	}
}

func TestStreamDropsDeltasAfterSupersede(t *testing.T) {
	firstStarted := make(chan struct{})
	lateErr := make(chan error, 1)
	client := &stubLLM{stream: func(ctx context.Context, call int, _ llm.Request, onDelta llm.DeltaHandler) (llm.Response, error) {
		if call == 1 {
			_ = onDelta("old take ")
			close(firstStarted)
			<-ctx.Done()
			// Lines already buffered by the provider still arrive after cancel.
			lateErr <- onDelta("stale line")
			return llm.Response{Text: "old take stale line"}, ctx.Err()
		}
		return streamDeltas(ctx, onDelta, []string{"fresh take."}, nil)
	}}
	o := newTestOrchestrator(client, voice.NewMock(), nil)

	rec1 := &recorder{}
	done1 := make(chan struct{})
	go func() {
		defer close(done1)
		_, _ = o.Stream(context.Background(), Request{SessionID: "s1", Text: "first", Stage: lifecycle.Adult}, rec1)
	}()
	<-firstStarted

	if _, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "second", Stage: lifecycle.Adult}, &recorder{}); err != nil {
		t.Fatalf("second Stream() error = %v", err)
	}
	<-done1

	if err := <-lateErr; err == nil {
		t.Fatalf("late delta handler error = nil, want the turn's cancel cause")
	}
	for _, ev := range rec1.snapshot() {
		if ev.Type == protocol.TypeDelta && ev.Text == "stale line" {
			t.Fatalf("superseded turn emitted a late delta: %+v", ev)
		}
	}
}

func TestStreamUsesFallbackVoiceModel(t *testing.T) {
	client := scripted([]string{"gm fren, ", "number go up."}, nil)
	history := conversation.NewInMemoryStore()
	tts := voice.NewFallback(failingTTS{}, voice.NewMock(), "fallback-voice", "eleven_turbo_v2_5", zerolog.Nop())
	o := newTestOrchestrator(client, tts, history)

	rec := &recorder{}
	res, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "gm", Mood: mood.Excited, Stage: lifecycle.Adult, Speak: true}, rec)
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	audio := 0
	for _, ev := range rec.snapshot() {
		if ev.Type != protocol.TypeAudio {
			continue
		}
		audio++
		if ev.ModelID != "eleven_turbo_v2_5" {
			t.Fatalf("audio model_id = %q, want the fallback model", ev.ModelID)
		}
	}
	if audio == 0 || res.State != StateComplete {
		t.Fatalf("audio events = %d, state = %q, want audio and complete", audio, res.State)
	}

	msgs, _ := history.History(context.Background(), "s1")
	if len(msgs) != 3 || msgs[2].Content != "gm fren, number go up." {
		t.Fatalf("history = %+v, want the committed turn", msgs)
	}
}

func TestStreamTTSFailureLeavesHistoryUntouched(t *testing.T) {
	client := scripted([]string{"wow this is wild! ", "more words here."}, nil)
	history := conversation.NewInMemoryStore()
	o := newTestOrchestrator(client, failingTTS{}, history)

	rec := &recorder{}
	_, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "hi", Stage: lifecycle.Adult, Speak: true}, rec)
	var te *TurnError
	if !errors.As(err, &te) || te.Source != "tts" {
		t.Fatalf("Stream() error = %v, want tts TurnError", err)
	}
	evs := rec.snapshot()
	if last := evs[len(evs)-1]; last.Type != protocol.TypeError || last.Code != "tts" {
		t.Fatalf("last event = %+v", last)
	}

	msgs, _ := history.History(context.Background(), "s1")
	if len(msgs) != 1 || msgs[0].Role != conversation.RoleSystem {
		t.Fatalf("history = %+v, want only the system entry", msgs)
	}
}

func TestStreamConfigErrorBeforeMutation(t *testing.T) {
	credErr := &config.CredentialError{Provider: "openai", Variable: "OPENAI_API_KEY"}
	history := conversation.NewInMemoryStore()
	o := newTestOrchestrator(&llm.Unconfigured{Err: credErr}, voice.NewMock(), history)

	rec := &recorder{}
	_, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "gm"}, rec)
	if !config.IsCredentialError(err) {
		t.Fatalf("Stream() error = %v, want credential error", err)
	}
	if !strings.Contains(err.Error(), "OPENAI_API_KEY is not set") {
		t.Fatalf("error = %q", err)
	}
	if history.Len() != 0 || len(rec.snapshot()) != 0 {
		t.Fatalf("state mutated: %d histories, %d events", history.Len(), len(rec.snapshot()))
	}

	ttsErr := &config.CredentialError{Provider: "elevenlabs", Variable: "ELEVENLABS_API_KEY"}
	o = newTestOrchestrator(scripted([]string{"ok."}, nil), &voice.Unconfigured{Err: ttsErr}, history)
	if _, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "gm", Speak: true}, rec); !config.IsCredentialError(err) {
		t.Fatalf("Stream(speak) error = %v, want credential error", err)
	}
	if _, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "gm", Stage: lifecycle.Adult}, rec); err != nil {
		t.Fatalf("Stream(no speak) error = %v", err)
	}
}

func TestStreamRejectsEmptyInput(t *testing.T) {
	o := newTestOrchestrator(scripted(nil, nil), voice.NewMock(), nil)
	if _, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "  "}, nil); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("error = %v, want ErrEmptyMessage", err)
	}
	if _, err := o.Stream(context.Background(), Request{Text: "gm"}, nil); !errors.Is(err, ErrMissingSession) {
		t.Fatalf("error = %v, want ErrMissingSession", err)
	}
}

func TestStreamPrunesHistory(t *testing.T) {
	history := conversation.NewInMemoryStore()
	o := New(Deps{
		LLM:     scripted([]string{"ok."}, nil),
		History: history,
		Logger:  zerolog.Nop(),
	}, Options{HistoryMaxEntries: 5})

	for i := 0; i < 6; i++ {
		if _, err := o.Reply(context.Background(), Request{SessionID: "s1", Text: "msg", Stage: lifecycle.Adult}); err != nil {
			t.Fatalf("Reply() error = %v", err)
		}
	}
	msgs, _ := history.History(context.Background(), "s1")
	if len(msgs) != 5 || msgs[0].Role != conversation.RoleSystem {
		t.Fatalf("history len = %d, first = %q; want 5 with system first", len(msgs), msgs[0].Role)
	}
}

func TestStreamSendsImageOnlyWithCurrentMessage(t *testing.T) {
	client := scripted([]string{"nice hat."}, nil)
	o := newTestOrchestrator(client, voice.NewMock(), nil)

	for _, img := range []string{"data:image/jpeg;base64,AAAA", ""} {
		if _, err := o.Reply(context.Background(), Request{SessionID: "s1", Text: "look", ImageURL: img, Stage: lifecycle.Adult}); err != nil {
			t.Fatalf("Reply() error = %v", err)
		}
	}
	req := client.lastRequest()
	for _, m := range req.Messages {
		if m.ImageURL != "" {
			t.Fatalf("stale image resent: %+v", m)
		}
	}
}

func TestCancelStopsRunningTurn(t *testing.T) {
	started := make(chan struct{})
	client := &stubLLM{stream: func(ctx context.Context, _ int, _ llm.Request, onDelta llm.DeltaHandler) (llm.Response, error) {
		close(started)
		<-ctx.Done()
		return llm.Response{}, ctx.Err()
	}}
	history := conversation.NewInMemoryStore()
	o := newTestOrchestrator(client, voice.NewMock(), history)

	errc := make(chan error, 1)
	go func() {
		_, err := o.Stream(context.Background(), Request{SessionID: "s1", Text: "gm", Stage: lifecycle.Adult}, Discard)
		errc <- err
	}()
	<-started
	if !o.Cancel("s1") {
		t.Fatalf("Cancel() = false, want true")
	}
	select {
	case err := <-errc:
		if !errors.Is(err, ErrTurnCanceled) {
			t.Fatalf("error = %v, want ErrTurnCanceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("turn did not stop after Cancel")
	}
	msgs, _ := history.History(context.Background(), "s1")
	if len(msgs) != 1 {
		t.Fatalf("canceled turn appended history: %+v", msgs)
	}
	if o.Cancel("s1") {
		t.Fatalf("Cancel() on idle session = true")
	}
}

func TestStreamMirrorsRedactedTranscript(t *testing.T) {
	transcripts := memory.NewInMemoryStore()
	o := New(Deps{
		LLM:         scripted([]string{"never share that, ser."}, nil),
		Transcripts: transcripts,
		Logger:      zerolog.Nop(),
	}, Options{})

	if _, err := o.Reply(context.Background(), Request{SessionID: "s1", Text: "mail me at ser@example.com", Stage: lifecycle.Baby}); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}
	records, err := transcripts.Transcript(context.Background(), "s1", 0)
	if err != nil {
		t.Fatalf("Transcript() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if !records[0].PIIRedacted || strings.Contains(records[0].Content, "ser@example.com") {
		t.Fatalf("user record not redacted: %+v", records[0])
	}
	if records[1].Role != "assistant" || records[1].Stage != "baby" || records[0].TurnID != records[1].TurnID {
		t.Fatalf("assistant record = %+v", records[1])
	}
}

func TestSpeakAppliesMoodAndStageVoice(t *testing.T) {
	o := newTestOrchestrator(scripted(nil, nil), voice.NewMock(), nil)
	audio, err := o.Speak(context.Background(), SpeakRequest{
		Text:  "I love this, to the moon!",
		Mood:  mood.Excited,
		Trend: mood.TrendUp,
		Stage: lifecycle.Baby,
	})
	if err != nil {
		t.Fatalf("Speak() error = %v", err)
	}
	if audio.VoiceID != "baby-voice" || audio.ModelID != "eleven_v3" {
		t.Fatalf("audio voice/model = %q/%q", audio.VoiceID, audio.ModelID)
	}
	if !strings.HasSuffix(string(audio.Data), "[excited] I love this, to the moon! [giggles]") {
		t.Fatalf("audio text = %q", audio.Data)
	}

	if _, err := o.Speak(context.Background(), SpeakRequest{Text: "🚀"}); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("Speak(emoji only) error = %v, want ErrEmptyMessage", err)
	}
}

func TestStreamRecordsTurnSpan(t *testing.T) {
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	defer otel.SetTracerProvider(prev)

	o := newTestOrchestrator(scripted([]string{"gm."}, nil), voice.NewMock(), nil)
	if _, err := o.Reply(context.Background(), Request{SessionID: "s1", Text: "gm", Mood: mood.Playful, Stage: lifecycle.Old}); err != nil {
		t.Fatalf("Reply() error = %v", err)
	}

	ended := spans.Ended()
	if len(ended) != 1 || ended[0].Name() != "chat.turn" {
		t.Fatalf("spans = %d, want one chat.turn", len(ended))
	}
	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	if attrs["session.id"] != "s1" || attrs["chat.mood"] != "playful" || attrs["chat.stage"] != "old" {
		t.Fatalf("span attributes = %v", attrs)
	}
}
