package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/loqalabs/signbridge/internal/config"
	"github.com/mattn/go-shellwords"
)

// Player blocks until the clip has been played.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate, channels int) error
}

type execPlayer struct {
	args []string
	log  *slog.Logger
	mu   sync.Mutex
}

// NewExecPlayer plays clips by handing a temporary WAV file to command, for
// example "aplay -q".
func NewExecPlayer(command string, logger *slog.Logger) (Player, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse playback command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("playback command is empty")
	}
	return &execPlayer{args: args, log: logger.With(slog.String("component", "audio-playback"))}, nil
}

func (p *execPlayer) Play(ctx context.Context, pcm []byte, sampleRate, channels int) error {
	if len(pcm) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	path, err := WriteTempWAV(pcm, sampleRate, channels, "signbridge_play_*.wav")
	if err != nil {
		return err
	}
	defer os.Remove(path)

	args := append(append([]string{}, p.args[1:]...), path)
	cmd := exec.CommandContext(ctx, p.args[0], args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("playback failed: %w: %s", err, stderr.String())
	}
	return nil
}

// MockPlayer records clips instead of playing them.
type MockPlayer struct {
	mu    sync.Mutex
	clips [][]byte
	// OnPlay runs inside Play when set.
	OnPlay func()
}

func (m *MockPlayer) Play(ctx context.Context, pcm []byte, _ int, _ int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.OnPlay != nil {
		m.OnPlay()
	}
	m.mu.Lock()
	m.clips = append(m.clips, append([]byte(nil), pcm...))
	m.mu.Unlock()
	return nil
}

func (m *MockPlayer) Clips() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clips)
}

func NewPlayer(cfg config.AudioConfig, logger *slog.Logger) (Player, error) {
	switch cfg.Mode {
	case "mock":
		return &MockPlayer{}, nil
	case "exec":
		return NewExecPlayer(cfg.PlaybackCommand, logger)
	default:
		return nil, fmt.Errorf("unsupported audio mode: %s", cfg.Mode)
	}
}
