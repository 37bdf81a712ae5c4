// Package mode switches the device between speech translation and gesture
// recognition.
package mode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/signbridge/internal/camera"
	"github.com/loqalabs/signbridge/internal/device"
	"github.com/loqalabs/signbridge/internal/eventstore"
	"github.com/loqalabs/signbridge/internal/gesture"
	"github.com/loqalabs/signbridge/internal/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Speech is the part of the speech service the controller drives.
type Speech interface {
	Reset()
	SetListening(on bool)
}

type Clearer interface {
	Clear()
}

// Publisher is satisfied by *bus.Client.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Gesture is satisfied by *gesture.Pipeline.
type Gesture interface {
	Transition(active bool, cam camera.Camera, flip func()) camera.Camera
}

var _ Gesture = (*gesture.Pipeline)(nil)

type Options struct {
	State     *device.State
	Gesture   Gesture
	Speech    Speech
	Sink      Clearer
	Camera    camera.Opener
	Journal   *eventstore.Journal
	Publisher Publisher
	NodeID    string
}

// Controller owns the mode and the camera handle. Transitions are serialized.
type Controller struct {
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	started bool

	transitions metric.Int64Counter
	failures    metric.Int64Counter
}

func NewController(opts Options, logger *slog.Logger) *Controller {
	c := &Controller{opts: opts, log: logger.With(slog.String("component", "mode-controller"))}
	meter := otel.Meter("github.com/loqalabs/signbridge/mode")
	var err error
	if c.transitions, err = meter.Int64Counter("signbridge.mode.transitions", metric.WithDescription("Completed mode transitions")); err != nil {
		c.log.Warn("failed to create counter", slog.String("error", err.Error()))
		c.transitions = noop.Int64Counter{}
	}
	if c.failures, err = meter.Int64Counter("signbridge.mode.transition_failures", metric.WithDescription("Mode transitions refused because a resource was unavailable")); err != nil {
		c.log.Warn("failed to create counter", slog.String("error", err.Error()))
		c.failures = noop.Int64Counter{}
	}
	return c
}

func (c *Controller) Mode() device.Mode { return c.opts.State.Mode() }

// Start enters the initial speech mode.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	c.started = true
	c.enterSpeech()
	c.announce(ctx, device.ModeSpeech, device.ModeSpeech)
	return nil
}

// Toggle flips between the two modes.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.State.Mode() == device.ModeSpeech {
		return c.setLocked(ctx, device.ModeGesture)
	}
	return c.setLocked(ctx, device.ModeSpeech)
}

// SetMode switches to target. If the camera cannot be opened the device stays
// in speech mode and the error is returned.
func (c *Controller) SetMode(ctx context.Context, target device.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setLocked(ctx, target)
}

func (c *Controller) setLocked(ctx context.Context, target device.Mode) error {
	from := c.opts.State.Mode()
	if from == target {
		return nil
	}
	switch target {
	case device.ModeGesture:
		if err := c.enterGesture(ctx); err != nil {
			c.failures.Add(ctx, 1)
			c.log.Error("cannot enter gesture mode", slog.String("error", err.Error()))
			return err
		}
	case device.ModeSpeech:
		c.enterSpeech()
	default:
		return fmt.Errorf("unknown mode %d", target)
	}
	c.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("to", target.String())))
	c.log.Info("mode changed", slog.String("from", from.String()), slog.String("to", target.String()))
	c.announce(ctx, from, target)
	return nil
}

func (c *Controller) enterGesture(ctx context.Context) error {
	cam, err := c.opts.Camera.Open(ctx)
	if err != nil {
		return fmt.Errorf("open camera: %w", err)
	}
	c.clearSink()
	c.opts.Speech.SetListening(false)
	prev := c.opts.Gesture.Transition(true, cam, func() { c.opts.State.SetMode(device.ModeGesture) })
	c.closeCamera(prev, cam)
	return nil
}

func (c *Controller) enterSpeech() {
	prev := c.opts.Gesture.Transition(false, nil, func() { c.opts.State.SetMode(device.ModeSpeech) })
	c.closeCamera(prev, nil)
	c.clearSink()
	c.opts.Speech.Reset()
	c.opts.Speech.SetListening(true)
}

func (c *Controller) closeCamera(prev, keep camera.Camera) {
	if prev == nil || prev == keep {
		return
	}
	if err := prev.Close(); err != nil {
		c.log.Warn("failed to release camera", slog.String("error", err.Error()))
	}
}

func (c *Controller) clearSink() {
	if c.opts.Sink != nil {
		c.opts.Sink.Clear()
	}
}

func (c *Controller) announce(ctx context.Context, from, to device.Mode) {
	session, err := c.opts.Journal.Begin(ctx, to.String())
	if err != nil {
		c.log.Warn("failed to open session", slog.String("error", err.Error()))
	}
	if c.opts.Publisher == nil {
		return
	}
	msg := protocol.ModeChange{
		NodeID:    c.opts.NodeID,
		From:      from.String(),
		To:        to.String(),
		SessionID: session,
		Timestamp: time.Now().UTC(),
	}
	if err := c.opts.Publisher.PublishJSON(protocol.SubjectModeChange, msg); err != nil {
		c.log.Warn("failed to publish mode change", slog.String("error", err.Error()))
	}
}

// Close releases the camera and stops the gesture pipeline.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.opts.Gesture.Transition(false, nil, nil)
	c.closeCamera(prev, nil)
}
