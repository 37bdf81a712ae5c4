package tts

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loqalabs/signbridge/internal/config"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	Text         string
	LanguageCode string
	Voice        string
	Gender       string
}

// SynthChunk contains PCM data.
type SynthChunk struct {
	Sequence   int
	SampleRate int
	Channels   int
	PCM        []byte
	Final      bool
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}

// Clip is a fully synthesized utterance.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// Collect drains a synthesis stream into one clip.
func Collect(ctx context.Context, synth Synthesizer, req SynthRequest) (Clip, error) {
	chunks, errs := synth.Synthesize(ctx, req)
	var clip Clip
	for chunk := range chunks {
		if clip.SampleRate == 0 {
			clip.SampleRate = chunk.SampleRate
			clip.Channels = chunk.Channels
		}
		clip.PCM = append(clip.PCM, chunk.PCM...)
	}
	if err, ok := <-errs; ok && err != nil {
		return Clip{}, err
	}
	return clip, nil
}

// New selects the backend named by cfg.Mode.
func New(ctx context.Context, cfg config.TTSConfig, google config.GoogleConfig, logger *slog.Logger) (Synthesizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockSynth(cfg.SampleRate, cfg.Channels), nil
	case "exec":
		return NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
	case "google":
		return NewGoogleSynth(ctx, google, cfg.SampleRate, logger)
	default:
		return nil, fmt.Errorf("unsupported tts mode: %s", cfg.Mode)
	}
}
