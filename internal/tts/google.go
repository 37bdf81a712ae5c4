package tts

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/loqalabs/signbridge/internal/audio"
	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/gcloud"
	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

type googleSynth struct {
	svc        *texttospeech.Service
	sampleRate int
	log        *slog.Logger
}

// NewGoogleSynth uses the Cloud Text-to-Speech REST API with LINEAR16 output.
func NewGoogleSynth(ctx context.Context, cfg config.GoogleConfig, sampleRate int, logger *slog.Logger, extra ...option.ClientOption) (Synthesizer, error) {
	opts := append(gcloud.ClientOptions(cfg), extra...)
	svc, err := texttospeech.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create texttospeech client: %w", err)
	}
	return &googleSynth{svc: svc, sampleRate: sampleRate, log: logger.With(slog.String("component", "tts-google"))}, nil
}

func (g *googleSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		resp, err := g.svc.Text.Synthesize(&texttospeech.SynthesizeSpeechRequest{
			Input: &texttospeech.SynthesisInput{Text: req.Text},
			Voice: &texttospeech.VoiceSelectionParams{
				LanguageCode: req.LanguageCode,
				Name:         req.Voice,
				SsmlGender:   req.Gender,
			},
			AudioConfig: &texttospeech.AudioConfig{
				AudioEncoding:   "LINEAR16",
				SampleRateHertz: int64(g.sampleRate),
			},
		}).Context(ctx).Do()
		if err != nil {
			errs <- fmt.Errorf("synthesize: %w", err)
			return
		}
		data, err := base64.StdEncoding.DecodeString(resp.AudioContent)
		if err != nil {
			errs <- fmt.Errorf("decode audio content: %w", err)
			return
		}
		// LINEAR16 responses carry a WAV header.
		pcm, rate, channels, err := audio.DecodeWAV(data)
		if err != nil {
			errs <- err
			return
		}
		chunks <- SynthChunk{SampleRate: rate, Channels: channels, PCM: pcm, Final: true}
	}()
	return chunks, errs
}
