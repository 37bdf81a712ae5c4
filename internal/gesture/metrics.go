package gesture

import (
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	submitted   metric.Int64Counter
	dropped     metric.Int64Counter
	predictions metric.Int64Counter
	failures    metric.Int64Counter
	committed   metric.Int64Counter
	finalized   metric.Int64Counter
}

func newMetrics(log *slog.Logger) *metrics {
	meter := otel.Meter("github.com/loqalabs/signbridge/gesture")
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			log.Warn("failed to create counter", slog.String("name", name), slogError(err))
			return noop.Int64Counter{}
		}
		return c
	}
	return &metrics{
		submitted:   counter("signbridge.gesture.submissions", "Windows handed to the classifier"),
		dropped:     counter("signbridge.gesture.submissions_dropped", "Windows dropped because the submission queue was full"),
		predictions: counter("signbridge.gesture.predictions", "Classifier predictions produced"),
		failures:    counter("signbridge.gesture.classifier_failures", "Classifier invocations that failed"),
		committed:   counter("signbridge.gesture.words_committed", "Words appended to the sentence"),
		finalized:   counter("signbridge.gesture.sentences_finalized", "Sentences handed off for announcement"),
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
