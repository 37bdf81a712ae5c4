package translate

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"

	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/gcloud"
	"google.golang.org/api/option"
	translate "google.golang.org/api/translate/v2"
)

var errEmptyResponse = errors.New("translation service returned no results")

type googleService struct {
	svc *translate.Service
	log *slog.Logger
}

// NewGoogle uses the Cloud Translation v2 REST API.
func NewGoogle(ctx context.Context, cfg config.GoogleConfig, logger *slog.Logger, extra ...option.ClientOption) (Service, error) {
	opts := append(gcloud.ClientOptions(cfg), extra...)
	svc, err := translate.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create translate client: %w", err)
	}
	return &googleService{svc: svc, log: logger.With(slog.String("component", "translate-google"))}, nil
}

func (g *googleService) Detect(ctx context.Context, text string) (string, error) {
	resp, err := g.svc.Detections.List([]string{text}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("detect language: %w", err)
	}
	if len(resp.Detections) == 0 || len(resp.Detections[0]) == 0 {
		return "", errEmptyResponse
	}
	return resp.Detections[0][0].Language, nil
}

// Translate returns plain text; the API escapes HTML entities in its output.
func (g *googleService) Translate(ctx context.Context, text, target string) (string, error) {
	resp, err := g.svc.Translations.List([]string{text}, target).Format("text").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("translate: %w", err)
	}
	if len(resp.Translations) == 0 {
		return "", errEmptyResponse
	}
	return html.UnescapeString(resp.Translations[0].TranslatedText), nil
}
