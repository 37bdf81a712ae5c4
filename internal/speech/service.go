package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/signbridge/internal/audio"
	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/device"
	"github.com/loqalabs/signbridge/internal/eventstore"
	"github.com/loqalabs/signbridge/internal/stt"
	"github.com/loqalabs/signbridge/internal/translate"
	"github.com/loqalabs/signbridge/internal/tts"
	"github.com/loqalabs/signbridge/internal/vad"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Writer receives translated text and replies for the display.
type Writer interface {
	Set(text string)
}

type Options struct {
	Source     audio.Source
	Player     audio.Player
	Recognizer stt.Recognizer
	Translator translate.Service
	Synth      tts.Synthesizer
	Sink       Writer
	Journal    *eventstore.Journal
	Classifier vad.FrameClassifier
	Now        func() time.Time
}

// Service is the speech side of the device. It alone reads the microphone and
// pauses it while the device is speaking.
type Service struct {
	cfg        config.Config
	state      *device.State
	source     audio.Source
	player     audio.Player
	recognizer stt.Recognizer
	translator translate.Service
	synth      tts.Synthesizer
	sink       Writer
	journal    *eventstore.Journal
	collector  *vad.Collector
	now        func() time.Time
	log        *slog.Logger

	listening atomic.Bool
	wake      chan struct{}
	capture   chan struct{}
	playMu    sync.Mutex

	mu         sync.Mutex
	resetAt    time.Time
	stopListen context.CancelFunc

	utterances metric.Int64Counter
	latency    metric.Float64Histogram
}

func NewService(cfg config.Config, state *device.State, opts Options, logger *slog.Logger) *Service {
	log := logger.With(slog.String("component", "speech"))
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = vad.Energy{Threshold: cfg.VAD.EnergyThreshold}
	}
	s := &Service{
		cfg:        cfg,
		state:      state,
		source:     opts.Source,
		player:     opts.Player,
		recognizer: opts.Recognizer,
		translator: opts.Translator,
		synth:      opts.Synth,
		sink:       opts.Sink,
		journal:    opts.Journal,
		collector:  vad.NewCollector(classifier, cfg.Audio.SampleRate, cfg.Audio.Channels, cfg.Audio.FrameDurationMS, cfg.VAD.PaddingDurationMS, logger),
		now:        now,
		log:        log,
		wake:       make(chan struct{}, 1),
		capture:    make(chan struct{}, 1),
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/signbridge/speech")
	counter, err := meter.Int64Counter("signbridge.speech.utterances", metric.WithDescription("Utterances processed, by outcome"))
	if err != nil {
		s.log.Warn("failed to create counter", slogError(err))
		counter = noop.Int64Counter{}
	}
	hist, err := meter.Float64Histogram("signbridge.speech.translation_latency_ms", metric.WithDescription("Time from utterance to translated text"), metric.WithUnit("ms"))
	if err != nil {
		s.log.Warn("failed to create histogram", slogError(err))
		hist = noop.Float64Histogram{}
	}
	s.utterances = counter
	s.latency = hist
}

// Reset opens the post-reset guard window; utterances that complete inside it
// are discarded.
func (s *Service) Reset() {
	s.mu.Lock()
	s.resetAt = s.now()
	s.mu.Unlock()
}

func (s *Service) guarded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resetAt.IsZero() {
		return false
	}
	guard := time.Duration(s.cfg.VAD.ResetGuardMS) * time.Millisecond
	return s.now().Before(s.resetAt.Add(guard))
}

// ApplySettings validates and replaces base language and gender.
func (s *Service) ApplySettings(base, gender string) error {
	supported := false
	for _, lang := range s.state.Supported() {
		if lang == base {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported base language %q", base)
	}
	if !config.ValidGender(gender) {
		return fmt.Errorf("invalid gender %q", gender)
	}
	s.state.ApplySettings(base, gender)
	s.log.Info("settings updated", slog.String("base_language", base), slog.String("gender", gender))
	return nil
}

// SetListening turns continuous listening on or off. The listen loop observes
// the change before its next frame. Turning it off also cancels an utterance that is still being processed, so
// nothing reaches the display or the speaker after the mode has changed.
func (s *Service) SetListening(on bool) {
	s.listening.Store(on)
	if !on {
		s.mu.Lock()
		stop := s.stopListen
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		return
	}
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Service) Listening() bool { return s.listening.Load() }

func (s *Service) acquire(ctx context.Context) error {
	select {
	case s.capture <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) release() { <-s.capture }

// Run is the continuous listening loop. It restarts the collector with fresh
// state whenever listening is re-enabled or the base language changed while an
// utterance was processed.
func (s *Service) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if !s.listening.Load() {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}
		if err := s.acquire(ctx); err != nil {
			return
		}
		if err := s.listenOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Warn("listener stopped", slogError(err))
		}
		s.release()
	}
}

// listenOnce runs one collector pass with fresh endpointing state. It ends when
// listening is turned off or the base language changed after an utterance.
func (s *Service) listenOnce(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.stopListen = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.stopListen = nil
		s.mu.Unlock()
		cancel()
		s.flush()
	}()
	if !s.listening.Load() {
		return nil
	}

	s.flush()
	base := s.state.Settings().BaseLanguage
	s.log.Debug("listening", slog.String("base_language", base))
	return s.collector.Run(ctx, s.source, s.listening.Load, func(segment []byte) bool {
		outcome, err := s.ProcessUtterance(ctx, segment)
		if err != nil && outcome != OutcomeInterrupted {
			s.log.Warn("utterance discarded", slogError(err))
		}
		if current := s.state.Settings().BaseLanguage; current != base {
			s.log.Info("base language changed; restarting listener", slog.String("base_language", current))
			return false
		}
		return true
	})
}

// flush drops audio that piled up while nobody was reading the microphone.
func (s *Service) flush() {
	if err := s.source.Flush(); err != nil {
		s.log.Warn("failed to flush capture", slogError(err))
	}
}

// ProcessUtterance runs one segment through transcription, language pair
// resolution, translation, display and speech. Service failures discard the
// utterance and are returned; expected drops are reported only as outcomes.
func (s *Service) ProcessUtterance(ctx context.Context, segment []byte) (Outcome, error) {
	start := s.now()
	outcome, err := s.process(ctx, segment)
	if err != nil && ctx.Err() != nil {
		outcome = OutcomeInterrupted
	}
	s.utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.String())))
	if outcome == OutcomeTranslated || outcome == OutcomeSpeakFailed {
		s.latency.Record(ctx, float64(s.now().Sub(start).Milliseconds()))
	}
	return outcome, err
}

func (s *Service) process(ctx context.Context, segment []byte) (Outcome, error) {
	if s.guarded() {
		s.log.Debug("discarding residual audio after reset")
		return OutcomeGuarded, nil
	}

	settings := s.state.Settings()
	res, err := s.transcribe(ctx, segment, settings.BaseLanguage, s.state.Alternatives())
	if err != nil {
		return OutcomeTranscribeFailed, fmt.Errorf("transcribe: %w", err)
	}
	text := strings.TrimSpace(res.Text)
	if text == "" {
		return OutcomeEmpty, nil
	}

	detected, err := s.detect(ctx, text)
	if err != nil {
		return OutcomeDetectFailed, fmt.Errorf("detect language: %w", err)
	}

	pair, target, ok := s.state.ResolvePair(detected)
	if !ok {
		s.log.Debug("unsupported language", slog.String("detected", detected))
		return OutcomeUnsupported, nil
	}

	translated, err := s.translate(ctx, text, device.PrimaryTag(target))
	if err != nil {
		return OutcomeTranslateFailed, fmt.Errorf("translate: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return OutcomeInterrupted, err
	}
	if s.sink != nil {
		s.sink.Set(translated)
	}
	s.log.Info("utterance translated",
		slog.String("detected", detected),
		slog.String("target", target),
		slog.String("pair", pair.Base+"/"+pair.Target),
	)
	if err := s.journal.Record(ctx, eventstore.TypeUtteranceTranslated, map[string]string{
		"transcript": text,
		"detected":   detected,
		"target":     target,
		"translated": translated,
	}); err != nil {
		s.log.Warn("failed to record utterance", slogError(err))
	}

	if err := s.Speak(ctx, translated, target, settings.Gender); err != nil {
		return OutcomeSpeakFailed, fmt.Errorf("speak: %w", err)
	}
	return OutcomeTranslated, nil
}

func (s *Service) withTimeout(ctx context.Context, ms int) (context.Context, context.CancelFunc) {
	if ms <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, time.Duration(ms)*time.Millisecond)
}

func (s *Service) transcribe(ctx context.Context, pcm []byte, language string, alternatives []string) (stt.Result, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.STT.TimeoutMS)
	defer cancel()
	return s.recognizer.Transcribe(ctx, stt.Request{
		PCM:          pcm,
		SampleRate:   s.cfg.Audio.SampleRate,
		Channels:     s.cfg.Audio.Channels,
		Language:     language,
		Alternatives: alternatives,
	})
}

func (s *Service) detect(ctx context.Context, text string) (string, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.Translate.TimeoutMS)
	defer cancel()
	return s.translator.Detect(ctx, text)
}

func (s *Service) translate(ctx context.Context, text, target string) (string, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.Translate.TimeoutMS)
	defer cancel()
	return s.translator.Translate(ctx, text, target)
}

// Speak synthesizes text in language and plays it with the microphone paused.
func (s *Service) Speak(ctx context.Context, text, language, gender string) error {
	synthCtx, cancel := s.withTimeout(ctx, s.cfg.TTS.TimeoutMS)
	clip, err := tts.Collect(synthCtx, s.synth, tts.Request(text, language, s.cfg.TTS.VoiceType, gender))
	cancel()
	if err != nil {
		return err
	}

	s.playMu.Lock()
	defer s.playMu.Unlock()
	if err := s.source.Pause(); err != nil {
		s.log.Warn("failed to pause capture", slogError(err))
	}
	playErr := s.player.Play(ctx, clip.PCM, clip.SampleRate, clip.Channels)
	if err := s.source.Resume(); err != nil {
		s.log.Warn("failed to resume capture", slogError(err))
	}
	return playErr
}

// Announce speaks text in the base language with the configured voice.
func (s *Service) Announce(ctx context.Context, text string) error {
	settings := s.state.Settings()
	return s.Speak(ctx, text, settings.BaseLanguage, settings.Gender)
}

// ListenOnce captures a single reply in the base language, writes it to the
// display and returns it. Segments that are too short or transcribe to
// nothing are skipped. It gives up after the reply timeout.
func (s *Service) ListenOnce(ctx context.Context) (string, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.VAD.ReplyTimeoutMS)
	defer cancel()
	if err := s.acquire(ctx); err != nil {
		return "", err
	}
	defer s.release()
	s.flush()
	defer s.flush()

	base := s.state.Settings().BaseLanguage
	var reply string
	err := s.collector.Run(ctx, s.source, nil, func(segment []byte) bool {
		if len(segment) < s.cfg.VAD.MinReplyBytes {
			s.log.Debug("reply segment too short", slog.Int("bytes", len(segment)))
			return true
		}
		res, err := s.transcribe(ctx, segment, base, nil)
		if err != nil {
			s.log.Warn("reply transcription failed", slogError(err))
			return true
		}
		reply = strings.TrimSpace(res.Text)
		return reply == ""
	})
	if reply == "" {
		if err == nil {
			err = errors.New("no reply captured")
		}
		return "", err
	}
	if s.sink != nil {
		s.sink.Set(reply)
	}
	if err := s.journal.Record(ctx, eventstore.TypeReplyTranscribed, map[string]string{"text": reply, "language": base}); err != nil {
		s.log.Warn("failed to record reply", slogError(err))
	}
	return reply, nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
