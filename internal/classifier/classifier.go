package classifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/pose"
	"github.com/loqalabs/signbridge/internal/sidecar"
)

// Classifier scores a window of keypoint vectors, one score per label.
type Classifier interface {
	Classify(ctx context.Context, window []pose.Keypoints) ([]float32, error)
}

// ErrNoScores is returned by Argmax for an empty score vector.
var ErrNoScores = errors.New("classifier returned no scores")

// Argmax returns the index and value of the highest score.
func Argmax(scores []float32) (int, float32, error) {
	if len(scores) == 0 {
		return 0, 0, ErrNoScores
	}
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return best, scores[best], nil
}

type mockClassifier struct {
	labels int
	index  int
}

// NewMockClassifier always answers with full confidence for label index.
func NewMockClassifier(labels, index int) Classifier {
	return &mockClassifier{labels: labels, index: index}
}

func (m *mockClassifier) Classify(ctx context.Context, window []pose.Keypoints) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	scores := make([]float32, m.labels)
	if m.index >= 0 && m.index < m.labels {
		scores[m.index] = 1
	}
	return scores, nil
}

type execClassifier struct {
	proc    *sidecar.Process
	timeout time.Duration
}

type classifyRequest struct {
	Sequence []pose.Keypoints `json:"sequence"`
}

type classifyResponse struct {
	Scores []float32 `json:"scores"`
	Error  string    `json:"error,omitempty"`
}

// NewExecClassifier runs the model in a sidecar process that reads
// {"sequence": [[...258 floats], ...]} lines and answers {"scores": [...]}.
func NewExecClassifier(cfg config.ClassifierConfig, logger *slog.Logger) (Classifier, error) {
	proc, err := sidecar.New(cfg.Command, logger.With(slog.String("component", "classifier-sidecar")))
	if err != nil {
		return nil, err
	}
	return &execClassifier{proc: proc, timeout: time.Duration(cfg.TimeoutMS) * time.Millisecond}, nil
}

func (c *execClassifier) Classify(ctx context.Context, window []pose.Keypoints) ([]float32, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var resp classifyResponse
	if err := c.proc.Call(ctx, classifyRequest{Sequence: window}, &resp); err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("classifier sidecar: %s", resp.Error)
	}
	return resp.Scores, nil
}

func (c *execClassifier) Close() error {
	return c.proc.Close()
}

// New selects the backend named by cfg.Mode. The mock backend answers with the
// nothing label so an unequipped device never commits words.
func New(cfg config.ClassifierConfig, nothingLabel string, logger *slog.Logger) (Classifier, error) {
	switch cfg.Mode {
	case "mock":
		index := 0
		for i, label := range cfg.Labels {
			if label == nothingLabel {
				index = i
			}
		}
		return NewMockClassifier(len(cfg.Labels), index), nil
	case "exec":
		return NewExecClassifier(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported classifier mode: %s", cfg.Mode)
	}
}
