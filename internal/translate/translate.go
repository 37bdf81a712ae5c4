// Package translate wraps language detection and text translation backends.
package translate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/signbridge/internal/config"
)

type Detector interface {
	Detect(ctx context.Context, text string) (string, error)
}

type Translator interface {
	Translate(ctx context.Context, text, target string) (string, error)
}

// Service detects and translates with one backend.
type Service interface {
	Detector
	Translator
}

type mockService struct {
	language string
}

// NewMock detects every text as language and tags translations with the
// target code.
func NewMock(language string) Service {
	return &mockService{language: language}
}

func (m *mockService) Detect(ctx context.Context, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.language, nil
}

func (m *mockService) Translate(ctx context.Context, text, target string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return fmt.Sprintf("[%s] %s", target, text), nil
}

// New selects the backend named by cfg.Mode. mockLanguage is what the mock
// backend reports as detected.
func New(ctx context.Context, cfg config.TranslateConfig, google config.GoogleConfig, mockLanguage string, logger *slog.Logger) (Service, error) {
	switch cfg.Mode {
	case "mock":
		return NewMock(mockLanguage), nil
	case "google":
		return NewGoogle(ctx, google, logger)
	default:
		return nil, fmt.Errorf("unsupported translate mode: %s", cfg.Mode)
	}
}
