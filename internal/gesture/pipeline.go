package gesture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/signbridge/internal/camera"
	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/eventstore"
	"github.com/loqalabs/signbridge/internal/pose"
)

// Responder speaks a finalized sentence and captures the reply.
type Responder interface {
	Announce(ctx context.Context, text string) error
	ListenOnce(ctx context.Context) (string, error)
}

// Clearer empties the shared transcript display.
type Clearer interface {
	Clear()
}

// View is what the display shows while signing.
type View struct {
	Active     bool       `json:"active"`
	Sentence   []string   `json:"sentence"`
	Prediction Prediction `json:"prediction"`
	Window     int        `json:"window"`
}

// Pipeline owns the gesture buffers. Every buffer is touched only under mu so
// a transition never leaves a half-cleared state visible to the capture loop.
type Pipeline struct {
	cfg        config.GestureConfig
	detector   pose.Detector
	responder  Responder
	sink       Clearer
	journal    *eventstore.Journal
	log        *slog.Logger
	metrics    *metrics
	submission *Queue[[]pose.Keypoints]
	results    *Queue[Prediction]
	sleep      func(ctx context.Context, d time.Duration) error

	mu             sync.Mutex
	active         bool
	cam            camera.Camera
	buffer         *SequenceBuffer
	stabilizer     *Stabilizer
	current        Prediction
	cancelFinalize context.CancelFunc
}

type Options struct {
	Detector  pose.Detector
	Responder Responder
	Sink      Clearer
	Journal   *eventstore.Journal
	Now       func() time.Time
	Sleep     func(ctx context.Context, d time.Duration) error
}

func NewPipeline(cfg config.GestureConfig, opts Options, logger *slog.Logger) *Pipeline {
	log := logger.With(slog.String("component", "gesture"))
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Pipeline{
		cfg:        cfg,
		detector:   opts.Detector,
		responder:  opts.Responder,
		sink:       opts.Sink,
		journal:    opts.Journal,
		log:        log,
		metrics:    newMetrics(log),
		submission: NewQueue[[]pose.Keypoints](cfg.QueueCapacity),
		results:    NewQueue[Prediction](cfg.QueueCapacity),
		sleep:      sleep,
		buffer:     NewSequenceBuffer(cfg.WindowSize),
		stabilizer: NewStabilizer(StabilizerConfigFrom(cfg), opts.Now),
	}
}

// Submissions is the queue the classifier worker consumes.
func (p *Pipeline) Submissions() *Queue[[]pose.Keypoints] { return p.submission }

// Results is the queue the classifier worker produces into.
func (p *Pipeline) Results() *Queue[Prediction] { return p.results }

// Tick processes one camera frame and at most one pending prediction. It
// returns the sentence text when the prediction finalized it. Tick never
// waits on the classifier.
func (p *Pipeline) Tick(ctx context.Context) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active || p.cam == nil {
		return "", false
	}
	frame, err := p.cam.Read(ctx)
	if err != nil {
		p.log.Warn("camera read failed", slogError(err))
		return "", false
	}
	obs, err := p.detector.Detect(ctx, frame)
	if err != nil {
		p.log.Warn("landmark detection failed", slogError(err))
		return "", false
	}
	p.buffer.Append(pose.Extract(obs))

	if p.buffer.Full() {
		if p.submission.TryPush(p.buffer.Snapshot()) {
			p.metrics.submitted.Add(ctx, 1)
		} else {
			p.metrics.dropped.Add(ctx, 1)
		}
	}

	pred, ok := p.results.TryPop()
	if !ok {
		return "", false
	}
	p.current = pred
	out := p.stabilizer.Observe(pred)
	if out.Committed != "" {
		p.metrics.committed.Add(ctx, 1)
		p.log.Debug("word committed", slog.String("word", out.Committed), slog.Any("sentence", p.stabilizer.Sentence()))
	}
	if !out.Finalized {
		return "", false
	}
	p.buffer.Clear()
	p.submission.Drain()
	p.results.Drain()
	p.current = Prediction{}
	p.metrics.finalized.Add(ctx, 1)
	return out.Text, true
}

// Run drives Tick at the configured cadence until ctx is done. A finalized
// sentence is handed off before capture resumes.
func (p *Pipeline) Run(ctx context.Context) {
	interval := time.Duration(p.cfg.TickIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 30 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if text, ok := p.Tick(ctx); ok {
			p.finalize(ctx, text)
		}
	}
}

// finalize announces the sentence, waits for one spoken reply, holds it on
// the display for the cooldown and clears it. A transition cancels it.
func (p *Pipeline) finalize(parent context.Context, text string) {
	ctx, cancel := context.WithCancel(parent)
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		cancel()
		return
	}
	p.cancelFinalize = cancel
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.cancelFinalize = nil
		p.mu.Unlock()
		cancel()
	}()

	p.log.Info("sentence finalized", slog.String("text", text))
	if err := p.journal.Record(ctx, eventstore.TypeSentenceFinalized, map[string]string{"text": text}); err != nil {
		p.log.Warn("failed to record sentence", slogError(err))
	}

	if p.responder != nil {
		if err := p.responder.Announce(ctx, text); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("announce failed", slogError(err))
		}
		if ctx.Err() != nil {
			return
		}
		p.clearSink()
		reply, err := p.responder.ListenOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			p.log.Warn("reply capture failed", slogError(err))
		}
		if reply != "" {
			p.log.Info("reply transcribed", slog.String("text", reply))
		}
	}

	if err := p.sleep(ctx, time.Duration(p.cfg.CooldownMS)*time.Millisecond); err != nil {
		return
	}
	p.clearSink()
}

func (p *Pipeline) clearSink() {
	if p.sink != nil {
		p.sink.Clear()
	}
}

// Transition clears every gesture buffer and both queues, installs cam as the
// capture camera and runs flip, all inside one critical section. Any finalize
// in progress is cancelled. The previously installed camera is returned so the
// caller can release it.
func (p *Pipeline) Transition(active bool, cam camera.Camera, flip func()) camera.Camera {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelFinalize != nil {
		p.cancelFinalize()
		p.cancelFinalize = nil
	}
	p.submission.Drain()
	p.results.Drain()
	p.buffer.Clear()
	p.stabilizer.Reset()
	p.current = Prediction{}

	prev := p.cam
	p.active = active
	p.cam = cam
	if flip != nil {
		flip()
	}
	return prev
}

func (p *Pipeline) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return View{
		Active:     p.active,
		Sentence:   p.stabilizer.Sentence(),
		Prediction: p.current,
		Window:     p.buffer.Len(),
	}
}

// Buffers reports the lengths of the window, history and sentence.
func (p *Pipeline) Buffers() (window, history, sentence int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.Len(), len(p.stabilizer.History()), len(p.stabilizer.Sentence())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
