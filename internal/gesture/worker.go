package gesture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/signbridge/internal/classifier"
	"github.com/loqalabs/signbridge/internal/pose"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Prediction is one classifier verdict for a window.
type Prediction struct {
	Label      string    `json:"label"`
	Confidence float32   `json:"confidence"`
	At         time.Time `json:"at"`
}

// Worker scores windows from the submission queue and hands predictions to the
// result queue. It is the only producer of the result queue.
type Worker struct {
	classifier classifier.Classifier
	labels     []string
	in         *Queue[[]pose.Keypoints]
	out        *Queue[Prediction]
	poll       time.Duration
	now        func() time.Time
	log        *slog.Logger
	metrics    *metrics
}

func NewWorker(c classifier.Classifier, labels []string, in *Queue[[]pose.Keypoints], out *Queue[Prediction], poll time.Duration, logger *slog.Logger) *Worker {
	if poll <= 0 {
		poll = time.Second
	}
	log := logger.With(slog.String("component", "classifier-worker"))
	return &Worker{
		classifier: c,
		labels:     append([]string(nil), labels...),
		in:         in,
		out:        out,
		poll:       poll,
		now:        time.Now,
		log:        log,
		metrics:    newMetrics(log),
	}
}

// Run blocks until ctx is done. Each wait on the submission queue is bounded
// by the poll interval.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		window, ok := w.in.Pop(ctx, w.poll)
		if !ok {
			continue
		}
		pred, err := w.classify(ctx, window)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				w.metrics.failures.Add(ctx, 1)
				w.log.Warn("classification failed", slogError(err))
			}
			continue
		}
		w.metrics.predictions.Add(ctx, 1, metric.WithAttributes(attribute.String("label", pred.Label)))
		if !w.out.TryPush(pred) {
			w.log.Debug("result queue full; prediction dropped", slog.String("label", pred.Label))
		}
	}
}

func (w *Worker) classify(ctx context.Context, window []pose.Keypoints) (Prediction, error) {
	scores, err := w.classifier.Classify(ctx, window)
	if err != nil {
		return Prediction{}, err
	}
	if len(scores) != len(w.labels) {
		return Prediction{}, fmt.Errorf("classifier returned %d scores for %d labels", len(scores), len(w.labels))
	}
	idx, score, err := classifier.Argmax(scores)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Label: w.labels[idx], Confidence: score, At: w.now()}, nil
}
