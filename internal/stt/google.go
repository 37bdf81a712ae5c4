package stt

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/gcloud"
	"google.golang.org/api/option"
	speech "google.golang.org/api/speech/v1"
)

type googleRecognizer struct {
	svc *speech.Service
	log *slog.Logger
}

// NewGoogleRecognizer uses the Cloud Speech-to-Text REST API with synchronous
// recognition.
func NewGoogleRecognizer(ctx context.Context, cfg config.GoogleConfig, logger *slog.Logger, extra ...option.ClientOption) (Recognizer, error) {
	opts := append(gcloud.ClientOptions(cfg), extra...)
	svc, err := speech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &googleRecognizer{svc: svc, log: logger.With(slog.String("component", "stt-google"))}, nil
}

func (g *googleRecognizer) Transcribe(ctx context.Context, req Request) (Result, error) {
	rc := &speech.RecognitionConfig{
		Encoding:                 "LINEAR16",
		SampleRateHertz:          int64(req.SampleRate),
		AudioChannelCount:        int64(req.Channels),
		LanguageCode:             req.Language,
		AlternativeLanguageCodes: req.Alternatives,
	}
	resp, err := g.svc.Speech.Recognize(&speech.RecognizeRequest{
		Audio:  &speech.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(req.PCM)},
		Config: rc,
	}).Context(ctx).Do()
	if err != nil {
		return Result{}, fmt.Errorf("recognize: %w", err)
	}

	var parts []string
	var result Result
	for _, r := range resp.Results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		parts = append(parts, alt.Transcript)
		if result.Language == "" {
			result.Language = r.LanguageCode
			result.Confidence = alt.Confidence
		}
	}
	result.Text = strings.TrimSpace(strings.Join(parts, " "))
	return result, nil
}
