// Package camera provides the frame source used in gesture mode.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/signbridge/internal/config"
)

// ErrUnavailable marks a camera that could not be opened.
var ErrUnavailable = errors.New("camera unavailable")

// Frame is one captured image, JPEG encoded at the configured size.
type Frame struct {
	JPEG       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Camera is an open capture device. Read blocks for at most one frame period.
type Camera interface {
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Opener acquires a camera handle.
type Opener interface {
	Open(ctx context.Context) (Camera, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context) (Camera, error)

func (f OpenerFunc) Open(ctx context.Context) (Camera, error) { return f(ctx) }

// NewOpener selects the backend named by cfg.Backend.
func NewOpener(cfg config.CameraConfig, logger *slog.Logger) (Opener, error) {
	logger = logger.With(slog.String("component", "camera"))
	switch cfg.Backend {
	case "mock":
		return OpenerFunc(func(context.Context) (Camera, error) {
			return NewMock(cfg.Width, cfg.Height), nil
		}), nil
	case "gocv":
		return OpenerFunc(func(ctx context.Context) (Camera, error) {
			cam, err := openVideoCapture(cfg, logger)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
			}
			return cam, nil
		}), nil
	default:
		return nil, fmt.Errorf("unsupported camera backend: %s", cfg.Backend)
	}
}
