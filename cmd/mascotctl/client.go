package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"github.com/wenmoon/mascot/internal/playback"
	"github.com/wenmoon/mascot/internal/protocol"
)

// client renders server events: text to the terminal, audio to a local playback
// queue. Only the newest turn is rendered.
type client struct {
	out     io.Writer
	verbose bool
	queue   *playback.Queue

	mu     sync.Mutex
	turnID string
	done   chan struct{}
}

func newClient(out io.Writer, player playback.Player, verbose bool) *client {
	c := &client{out: out, verbose: verbose, done: make(chan struct{})}
	close(c.done)
	c.queue = playback.New(player, playback.Hooks{
		OnStarted: func() {
			if verbose {
				fmt.Fprintln(out, "[speaking]")
			}
		},
		OnEnded: func() {
			if verbose {
				fmt.Fprintln(out, "[quiet]")
			}
		},
		OnError: func(seg playback.Segment, err error) {
			fmt.Fprintf(out, "! segment %d: %v\n", seg.Seq, err)
		},
	})
	return c
}

func (c *client) handle(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Type == protocol.TypeState && ev.State == "stream_requested" {
		if c.turnID != ev.TurnID {
			c.queue.Clear()
			c.turnID = ev.TurnID
			c.done = make(chan struct{})
		}
		return
	}
	if ev.TurnID != "" && ev.TurnID != c.turnID {
		return
	}

	switch ev.Type {
	case protocol.TypeState:
		if c.verbose && ev.State == "streaming" {
			fmt.Fprintf(c.out, "[%s | %s | %s]\n", ev.Mood, ev.Trend, ev.Stage)
		}
		if ev.State == "canceled" {
			c.queue.Clear()
			c.finish()
		}
	case protocol.TypeDelta:
		fmt.Fprint(c.out, ev.Text)
	case protocol.TypeAudio:
		data, err := base64.StdEncoding.DecodeString(ev.AudioBase64)
		if err != nil {
			fmt.Fprintf(c.out, "! bad audio segment %d: %v\n", ev.Seq, err)
			return
		}
		c.queue.Enqueue(playback.Segment{
			Seq:     ev.Seq,
			Data:    data,
			Format:  ev.Format,
			ModelID: ev.ModelID,
			Text:    ev.Text,
		})
	case protocol.TypeDone:
		fmt.Fprintln(c.out)
		c.queue.MarkStreamComplete()
		c.finish()
	case protocol.TypeError:
		fmt.Fprintf(c.out, "\n! %s: %s\n", ev.Code, ev.Message)
		if ev.FallbackText != "" {
			fmt.Fprintln(c.out, ev.FallbackText)
		}
		c.queue.Clear()
		c.finish()
	}
}

func (c *client) finish() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// waitTurn blocks until the newest turn has ended and its audio has played.
func (c *client) waitTurn(ctx context.Context) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.queue.WaitIdle(ctx)
}
