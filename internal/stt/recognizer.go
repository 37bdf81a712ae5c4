package stt

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/signbridge/internal/config"
)

// Request is one utterance with its language hints.
type Request struct {
	PCM          []byte
	SampleRate   int
	Channels     int
	Language     string
	Alternatives []string
}

// Result captures recognizer output. An empty Text means nothing was heard.
type Result struct {
	Text       string
	Confidence float64
	Language   string
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, req Request) (Result, error)
}

// New selects the backend named by cfg.Mode.
func New(ctx context.Context, cfg config.STTConfig, google config.GoogleConfig, logger *slog.Logger) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "google":
		return NewGoogleRecognizer(ctx, google, logger)
	default:
		return nil, fmt.Errorf("unsupported stt mode: %s", cfg.Mode)
	}
}
