package playback

import (
	"context"
	"sync"
)

// Segment is one synthesized phrase. The queue owns it until Play returns.
type Segment struct {
	Seq     int
	Data    []byte
	Format  string
	ModelID string
	Text    string
}

// Player renders a single segment and returns when it has finished or ctx is canceled.
type Player interface {
	Play(ctx context.Context, seg Segment) error
}

type PlayerFunc func(ctx context.Context, seg Segment) error

func (f PlayerFunc) Play(ctx context.Context, seg Segment) error {
	return f(ctx, seg)
}

// Hooks observe speaking episodes. They run synchronously and must not call back into the queue.
type Hooks struct {
	OnStarted func()
	OnEnded   func()
	OnError   func(seg Segment, err error)
}

type State string

const (
	StateIdle            State = "idle"
	StatePlaying         State = "playing"
	StateIdlePendingMore State = "idle_pending_more"
)

type idleSignal struct {
	ch   chan struct{}
	once sync.Once
}

func newIdleSignal() *idleSignal {
	return &idleSignal{ch: make(chan struct{})}
}

func (s *idleSignal) fire() {
	s.once.Do(func() { close(s.ch) })
}

// Queue plays segments strictly one after another in enqueue order.
//
// Lock order is notifyMu before mu. notifyMu is held while a hook runs, which keeps
// hooks ordered across episodes and lets Clear guarantee that nothing from the
// aborted generation fires after it returns.
type Queue struct {
	player Player
	hooks  Hooks

	notifyMu sync.Mutex
	mu       sync.Mutex

	gen        uint64
	pending    []Segment
	playing    bool
	started    bool
	complete   bool
	playCancel context.CancelFunc
	idle       *idleSignal
	lastDone   chan struct{}
}

func New(player Player, hooks Hooks) *Queue {
	idle := newIdleSignal()
	idle.fire()
	return &Queue{
		player: player,
		hooks:  hooks,
		idle:   idle,
	}
}

// Enqueue appends a segment and starts playback if nothing is playing.
func (q *Queue) Enqueue(seg Segment) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, seg)
	if q.playing {
		return
	}
	q.playing = true
	q.idle = newIdleSignal()
	done := make(chan struct{})
	prev := q.lastDone
	q.lastDone = done
	go q.run(q.gen, q.idle, prev, done)
}

// MarkStreamComplete declares that the current episode will get no more segments.
// Ended fires once the queue drains, or right away when it already has.
func (q *Queue) MarkStreamComplete() {
	q.notifyMu.Lock()
	defer q.notifyMu.Unlock()

	q.mu.Lock()
	q.complete = true
	fire := false
	if !q.playing && len(q.pending) == 0 {
		fire = q.started
		q.started = false
		q.complete = false
	}
	q.mu.Unlock()

	if fire && q.hooks.OnEnded != nil {
		q.hooks.OnEnded()
	}
}

// Clear stops the current segment, drops everything pending and returns to idle
// without firing ended. It returns once the interrupted Play call has returned.
func (q *Queue) Clear() {
	q.notifyMu.Lock()
	q.mu.Lock()
	q.gen++
	q.pending = nil
	q.started = false
	q.complete = false
	q.playing = false
	if q.playCancel != nil {
		q.playCancel()
		q.playCancel = nil
	}
	q.idle.fire()
	done := q.lastDone
	q.mu.Unlock()
	q.notifyMu.Unlock()

	if done != nil {
		<-done
	}
}

// WaitIdle blocks until nothing is pending or playing.
func (q *Queue) WaitIdle(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch {
	case q.playing:
		return StatePlaying
	case q.started && !q.complete:
		return StateIdlePendingMore
	default:
		return StateIdle
	}
}

// Pending reports how many segments wait behind the one playing.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

func (q *Queue) run(gen uint64, idle *idleSignal, prev, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	for {
		q.notifyMu.Lock()
		q.mu.Lock()
		if q.gen != gen {
			q.mu.Unlock()
			q.notifyMu.Unlock()
			return
		}

		if len(q.pending) == 0 {
			q.playing = false
			q.playCancel = nil
			fireEnded := q.started && q.complete
			if fireEnded {
				q.started = false
				q.complete = false
			}
			q.mu.Unlock()
			if fireEnded && q.hooks.OnEnded != nil {
				q.hooks.OnEnded()
			}
			idle.fire()
			q.notifyMu.Unlock()
			return
		}

		seg := q.pending[0]
		q.pending[0] = Segment{}
		q.pending = q.pending[1:]
		first := !q.started
		q.started = true
		ctx, cancel := context.WithCancel(context.Background())
		q.playCancel = cancel
		q.mu.Unlock()

		if first && q.hooks.OnStarted != nil {
			q.hooks.OnStarted()
		}
		q.notifyMu.Unlock()

		err := q.player.Play(ctx, seg)
		cancel()

		// A failed segment counts as finished so the queue keeps moving.
		if err != nil && q.hooks.OnError != nil {
			q.notifyMu.Lock()
			q.mu.Lock()
			stale := q.gen != gen
			q.mu.Unlock()
			if !stale {
				q.hooks.OnError(seg, err)
			}
			q.notifyMu.Unlock()
		}
	}
}
