package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/wenmoon/mascot/internal/protocol"
	"github.com/wenmoon/mascot/internal/transport"
)

type options struct {
	baseURL   string
	sessionID string
	mode      transport.Mode
	mood      string
	trend     string
	stage     string
	speak     bool
	outDir    string
	player    string
	verbose   bool
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "mascotctl: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "mascotctl: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var modeRaw string

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "mascot server base URL")
	flag.StringVar(&cfg.sessionID, "session", "", "session id (random when empty)")
	flag.StringVar(&modeRaw, "transport", "auto", "auto|ws|rest")
	flag.StringVar(&cfg.mood, "mood", "", "fixed mood (derived by the server when empty)")
	flag.StringVar(&cfg.trend, "trend", "neutral", "market trend: up|down|neutral")
	flag.StringVar(&cfg.stage, "stage", "", "lifecycle stage override: baby|adult|old")
	flag.BoolVar(&cfg.speak, "speak", true, "request audio")
	flag.StringVar(&cfg.outDir, "out", "", "write audio segments to this directory")
	flag.StringVar(&cfg.player, "player", "", "pipe each audio segment to this command, e.g. \"mpg123 -q -\"")
	flag.BoolVar(&cfg.verbose, "verbose", false, "print turn states")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return options{}, errors.New("base-url is required")
	}
	mode, err := transport.ParseMode(modeRaw)
	if err != nil {
		return options{}, err
	}
	cfg.mode = mode
	if strings.TrimSpace(cfg.sessionID) == "" {
		cfg.sessionID = "cli-" + uuid.NewString()
	}
	return cfg, nil
}

func run(cfg options, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	tr, err := transport.Dial(dialCtx, cfg.baseURL, cfg.sessionID, cfg.mode)
	cancel()
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer tr.Close()
	defer endSession(cfg.baseURL, cfg.sessionID)

	player, err := newPlayer(cfg.outDir, cfg.player)
	if err != nil {
		return err
	}
	c := newClient(out, player, cfg.verbose)
	fmt.Fprintf(out, "mascotctl: session=%s transport=%s (type /help)\n", cfg.sessionID, tr.Name())

	recvErr := make(chan error, 1)
	go func() {
		for {
			ev, err := tr.Receive(ctx)
			if err != nil {
				recvErr <- err
				return
			}
			c.handle(ev)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.queue.Clear()
			return nil
		case err := <-recvErr:
			if errors.Is(err, transport.ErrClosed) || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		case line, ok := <-lines:
			if !ok {
				// Let the last reply finish speaking before exiting.
				waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				_ = c.waitTurn(waitCtx)
				cancel()
				return nil
			}
			quit, err := handleLine(ctx, &cfg, tr, out, line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if quit {
				return nil
			}
		}
	}
}

// handleLine sends text as a new message or applies a slash command.
func handleLine(ctx context.Context, cfg *options, tr transport.Transport, out io.Writer, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	if !strings.HasPrefix(line, "/") {
		speak := cfg.speak
		return false, tr.Send(ctx, protocol.UserMessage{
			Text:  line,
			Mood:  cfg.mood,
			Trend: cfg.trend,
			Stage: cfg.stage,
			Speak: &speak,
		})
	}

	cmd, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "quit", "exit":
		return true, nil
	case "cancel":
		return false, tr.Cancel(ctx)
	case "mood":
		cfg.mood = arg
	case "trend":
		cfg.trend = arg
	case "stage":
		cfg.stage = arg
	case "mute":
		cfg.speak = false
	case "unmute":
		cfg.speak = true
	case "help":
		fmt.Fprintln(out, "commands: /mood <m> /trend <up|down|neutral> /stage <baby|adult|old> /mute /unmute /cancel /quit")
	default:
		return false, fmt.Errorf("unknown command /%s", cmd)
	}
	return false, nil
}

func endSession(baseURL, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, baseURL+"/v1/sessions/"+sessionID, nil)
	if err != nil {
		return
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		return
	}
	res.Body.Close()
}

