// Package audio owns the microphone stream and the playback sink.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/loqalabs/signbridge/internal/config"
	"github.com/mattn/go-shellwords"
)

// ErrPaused is returned by ReadFrame while capture is paused for playback.
var ErrPaused = errors.New("audio capture paused")

// Source is a pausable 16-bit PCM capture stream.
type Source interface {
	ReadFrame(ctx context.Context, size int) ([]byte, error)
	// Flush discards audio captured but not yet read.
	Flush() error
	Pause() error
	Resume() error
	Close() error
}

// ExecSource captures raw PCM from a recorder process such as arecord. Pausing
// stops the process so the microphone is closed while the device speaks.
type ExecSource struct {
	args []string
	log  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	data    chan []byte
	pending []byte
	paused  bool
	closed  bool
}

func NewExecSource(command string, logger *slog.Logger) (*ExecSource, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("capture command is empty")
	}
	return &ExecSource{args: args, log: logger.With(slog.String("component", "audio-capture"))}, nil
}

// Start launches the recorder. It is the resource acquisition step for the
// microphone.
func (s *ExecSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("capture closed")
	}
	return s.startLocked()
}

func (s *ExecSource) startLocked() error {
	if s.cmd != nil {
		return nil
	}
	cmd := exec.Command(s.args[0], s.args[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("capture stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	data := make(chan []byte, 64)
	go pump(stdout, data)
	s.cmd = cmd
	s.data = data
	s.pending = nil
	return nil
}

func pump(r io.Reader, out chan<- []byte) {
	defer close(out)
	for {
		buf := make([]byte, 4096)
		n, err := r.Read(buf)
		if n > 0 {
			out <- buf[:n]
		}
		if err != nil {
			return
		}
	}
}

func (s *ExecSource) stopLocked() {
	if s.cmd == nil {
		return
	}
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	cmd, data := s.cmd, s.data
	s.cmd = nil
	s.data = nil
	s.pending = nil
	go func() {
		for range data {
		}
		_ = cmd.Wait()
	}()
}

// ReadFrame returns exactly size bytes of PCM.
func (s *ExecSource) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, fmt.Errorf("capture closed")
		}
		if s.paused {
			s.mu.Unlock()
			return nil, ErrPaused
		}
		if s.cmd == nil {
			if err := s.startLocked(); err != nil {
				s.mu.Unlock()
				return nil, err
			}
		}
		if len(s.pending) >= size {
			frame := append([]byte(nil), s.pending[:size]...)
			s.pending = s.pending[size:]
			s.mu.Unlock()
			return frame, nil
		}
		data := s.data
		s.mu.Unlock()

		select {
		case chunk, ok := <-data:
			s.mu.Lock()
			if !ok {
				if s.data == data {
					s.cmd = nil
					s.data = nil
				}
				s.mu.Unlock()
				return nil, fmt.Errorf("capture process exited")
			}
			if s.data == data {
				s.pending = append(s.pending, chunk...)
			}
			s.mu.Unlock()
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Flush stops the recorder, dropping everything it buffered in the pipe and in
// pending. The next ReadFrame starts a fresh recorder, so the microphone stays
// closed while nobody is reading.
func (s *ExecSource) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("capture closed")
	}
	s.stopLocked()
	return nil
}

func (s *ExecSource) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.stopLocked()
	return nil
}

func (s *ExecSource) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("capture closed")
	}
	s.paused = false
	return s.startLocked()
}

func (s *ExecSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopLocked()
	return nil
}

// MockSource replays queued frames and then produces silence in real time.
type MockSource struct {
	frameDur time.Duration

	mu      sync.Mutex
	frames  [][]byte
	paused  bool
	closed  bool
	pauses  int
	resumes int
	flushes int
}

func NewMockSource(frameDur time.Duration) *MockSource {
	return &MockSource{frameDur: frameDur}
}

// Queue appends frames to be returned before silence.
func (m *MockSource) Queue(frames ...[]byte) {
	m.mu.Lock()
	m.frames = append(m.frames, frames...)
	m.mu.Unlock()
}

func (m *MockSource) ReadFrame(ctx context.Context, size int) ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("capture closed")
	}
	if m.paused {
		m.mu.Unlock()
		return nil, ErrPaused
	}
	if len(m.frames) > 0 {
		f := m.frames[0]
		m.frames = m.frames[1:]
		m.mu.Unlock()
		return f, nil
	}
	m.mu.Unlock()
	if m.frameDur > 0 {
		t := time.NewTimer(m.frameDur)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else if err := ctx.Err(); err != nil {
		return nil, err
	}
	return make([]byte, size), nil
}

// Flush only counts; queued frames stand for live audio and are kept.
func (m *MockSource) Flush() error {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
	return nil
}

func (m *MockSource) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

func (m *MockSource) Pause() error {
	m.mu.Lock()
	m.paused = true
	m.pauses++
	m.mu.Unlock()
	return nil
}

func (m *MockSource) Resume() error {
	m.mu.Lock()
	m.paused = false
	m.resumes++
	m.mu.Unlock()
	return nil
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Toggles reports how often capture was paused and resumed.
func (m *MockSource) Toggles() (pauses, resumes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauses, m.resumes
}

func (m *MockSource) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// NewSource builds the capture backend named by cfg.Mode.
func NewSource(cfg config.AudioConfig, logger *slog.Logger) (Source, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSource(time.Duration(cfg.FrameDurationMS) * time.Millisecond), nil
	case "exec":
		src, err := NewExecSource(cfg.CaptureCommand, logger)
		if err != nil {
			return nil, err
		}
		if err := src.Start(); err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported audio mode: %s", cfg.Mode)
	}
}
