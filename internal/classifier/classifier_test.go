package classifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/pose"
)

func TestArgmax(t *testing.T) {
	idx, score, err := Argmax([]float32{0.1, 0.7, 0.2})
	if err != nil {
		t.Fatalf("argmax: %v", err)
	}
	if idx != 1 || score != 0.7 {
		t.Fatalf("expected (1, 0.7), got (%d, %v)", idx, score)
	}
	idx, _, _ = Argmax([]float32{0.5, 0.5})
	if idx != 0 {
		t.Fatalf("ties must resolve to the first index, got %d", idx)
	}
	if _, _, err := Argmax(nil); !errors.Is(err, ErrNoScores) {
		t.Fatalf("expected ErrNoScores, got %v", err)
	}
}

func TestMockFromConfigPicksNothing(t *testing.T) {
	cfg := config.Default().Classifier
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c, err := New(cfg, "nothing", logger)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	scores, err := c.Classify(context.Background(), make([]pose.Keypoints, 30))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	idx, score, _ := Argmax(scores)
	if cfg.Labels[idx] != "nothing" || score != 1 {
		t.Fatalf("expected nothing at 1.0, got %s at %v", cfg.Labels[idx], score)
	}
}

func TestUnsupportedMode(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := New(config.ClassifierConfig{Mode: "tflite"}, "nothing", logger); err == nil {
		t.Fatal("expected error for unsupported mode")
	}
}
