package pose

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/signbridge/internal/camera"
	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/sidecar"
)

// Detector finds body and hand landmarks in a frame.
type Detector interface {
	Detect(ctx context.Context, frame camera.Frame) (Observation, error)
}

type mockDetector struct{}

// NewMockDetector returns a detector that never finds anybody, which yields
// all-zero keypoint vectors.
func NewMockDetector() Detector { return mockDetector{} }

func (mockDetector) Detect(ctx context.Context, _ camera.Frame) (Observation, error) {
	return Observation{}, ctx.Err()
}

type execDetector struct {
	proc    *sidecar.Process
	timeout time.Duration
}

type detectRequest struct {
	Image  string `json:"image_jpeg_base64"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type detectResponse struct {
	Observation
	Error string `json:"error,omitempty"`
}

// NewExecDetector talks to a landmark sidecar (for example a holistic pose
// model) over JSON lines.
func NewExecDetector(cfg config.PoseConfig, logger *slog.Logger) (Detector, error) {
	proc, err := sidecar.New(cfg.Command, logger.With(slog.String("component", "pose-sidecar")))
	if err != nil {
		return nil, err
	}
	return &execDetector{proc: proc, timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}, nil
}

func (d *execDetector) Detect(ctx context.Context, frame camera.Frame) (Observation, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	req := detectRequest{
		Image:  base64.StdEncoding.EncodeToString(frame.JPEG),
		Width:  frame.Width,
		Height: frame.Height,
	}
	var resp detectResponse
	if err := d.proc.Call(ctx, req, &resp); err != nil {
		return Observation{}, err
	}
	if resp.Error != "" {
		return Observation{}, fmt.Errorf("pose sidecar: %s", resp.Error)
	}
	return resp.Observation, nil
}

func (d *execDetector) Close() error {
	return d.proc.Close()
}

// NewDetector selects the backend named by cfg.Mode.
func NewDetector(cfg config.PoseConfig, logger *slog.Logger) (Detector, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockDetector(), nil
	case "exec":
		return NewExecDetector(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported pose mode: %s", cfg.Mode)
	}
}
