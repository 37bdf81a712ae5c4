package vad

import (
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"math"
	"time"
)

// FrameClassifier decides whether one PCM frame contains speech.
type FrameClassifier interface {
	IsSpeech(frame []byte) bool
}

// FrameSource yields fixed-size PCM frames.
type FrameSource interface {
	ReadFrame(ctx context.Context, size int) ([]byte, error)
}

// Energy classifies 16-bit little-endian frames by normalised RMS level.
type Energy struct {
	Threshold float64
}

func (e Energy) IsSpeech(frame []byte) bool {
	return RMS(frame) >= e.Threshold
}

// RMS returns the root mean square of 16-bit little-endian samples in [0, 1].
func RMS(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(frame[i*2:]))) / 32768.0
		sum += s * s
	}
	return math.Sqrt(sum / float64(n))
}

type Collector struct {
	classifier FrameClassifier
	frameBytes int
	frameDur   time.Duration
	paddingMS  int
	frameMS    int
	log        *slog.Logger
}

// NewCollector reads frames of frameMS at sampleRate from an interleaved 16-bit
// source with the given channel count. Zero channels means mono.
func NewCollector(classifier FrameClassifier, sampleRate, channels, frameMS, paddingMS int, logger *slog.Logger) *Collector {
	if channels <= 0 {
		channels = 1
	}
	return &Collector{
		classifier: classifier,
		frameBytes: sampleRate * frameMS / 1000 * 2 * channels,
		frameDur:   time.Duration(frameMS) * time.Millisecond,
		paddingMS:  paddingMS,
		frameMS:    frameMS,
		log:        logger.With(slog.String("component", "vad")),
	}
}

func (c *Collector) FrameBytes() int { return c.frameBytes }

// Run reads frames until ctx is done, active reports false, or handle returns
// false. active is checked before every frame. Each call starts with empty
// endpointing state, so a run that was stopped resumes cleanly.
func (c *Collector) Run(ctx context.Context, src FrameSource, active func() bool, handle func(segment []byte) bool) error {
	ep := NewEndpointer(c.paddingMS, c.frameMS)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if active != nil && !active() {
			return nil
		}
		frame, err := src.ReadFrame(ctx, c.frameBytes)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Debug("audio frame read failed", slog.String("error", err.Error()))
			if !errors.Is(err, context.DeadlineExceeded) {
				if err := sleep(ctx, c.frameDur); err != nil {
					return err
				}
			}
			continue
		}
		segment, ok := ep.Push(frame, c.classifier.IsSpeech(frame))
		if !ok {
			continue
		}
		if !handle(segment) {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
