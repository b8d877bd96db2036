package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wenmoon/mascot/internal/audio"
	"github.com/wenmoon/mascot/internal/playback"
)

// newPlayer picks where audio goes: a decoder command, a directory, or nowhere.
func newPlayer(outDir, command string) (playback.Player, error) {
	switch {
	case strings.TrimSpace(command) != "":
		argv := strings.Fields(command)
		if _, err := exec.LookPath(argv[0]); err != nil {
			return nil, fmt.Errorf("player %q: %w", argv[0], err)
		}
		return &commandPlayer{argv: argv}, nil
	case strings.TrimSpace(outDir) != "":
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
		return &filePlayer{dir: outDir}, nil
	default:
		return playback.PlayerFunc(func(ctx context.Context, _ playback.Segment) error {
			return ctx.Err()
		}), nil
	}
}

// commandPlayer feeds each segment to a fresh decoder process and waits for it.
type commandPlayer struct {
	argv []string
}

func (p *commandPlayer) Play(ctx context.Context, seg playback.Segment) error {
	cmd := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	data, _ := audio.Playable(seg.Data, seg.Format)
	cmd.Stdin = bytes.NewReader(data)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", p.argv[0], err)
	}
	return nil
}

type filePlayer struct {
	dir   string
	count int
}

func (p *filePlayer) Play(ctx context.Context, seg playback.Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.count++
	data, format := audio.Playable(seg.Data, seg.Format)
	name := fmt.Sprintf("%04d-seg%03d%s", p.count, seg.Seq, extensionFor(format))
	return os.WriteFile(filepath.Join(p.dir, name), data, 0o644)
}

func extensionFor(format string) string {
	base, _, _ := strings.Cut(strings.ToLower(format), ";")
	switch base {
	case "audio/wav":
		return ".wav"
	case "audio/mpeg":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/pcm":
		return ".pcm"
	case "audio/basic":
		return ".ulaw"
	default:
		return ".bin"
	}
}
