// Package button turns raw button edges into debounced device actions.
package button

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/protocol"
	"github.com/nats-io/nats.go"
)

const (
	Mode = "mode"
	Up   = "up"
	Down = "down"
)

type Event struct {
	Button string
	At     time.Time
}

// Debouncer accepts at most one edge per button within the minimum interval.
type Debouncer struct {
	min time.Duration
	now func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewDebouncer(min time.Duration, now func() time.Time) *Debouncer {
	if now == nil {
		now = time.Now
	}
	return &Debouncer{min: min, now: now, last: make(map[string]time.Time)}
}

func (d *Debouncer) Allow(button string) (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if last, ok := d.last[button]; ok && now.Sub(last) < d.min {
		return now, false
	}
	d.last[button] = now
	return now, true
}

// Action runs for an accepted button press.
type Action func(ctx context.Context) error

type Dispatcher struct {
	debounce *Debouncer
	events   chan Event
	log      *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Action
	sub      *nats.Subscription
}

func NewDispatcher(cfg config.ButtonsConfig, logger *slog.Logger) *Dispatcher {
	return newDispatcher(cfg, nil, logger)
}

func newDispatcher(cfg config.ButtonsConfig, now func() time.Time, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		debounce: NewDebouncer(time.Duration(cfg.DebounceMS)*time.Millisecond, now),
		events:   make(chan Event, 16),
		log:      logger.With(slog.String("component", "buttons")),
		handlers: make(map[string]Action),
	}
}

func (d *Dispatcher) Handle(button string, action Action) {
	d.mu.Lock()
	d.handlers[strings.ToLower(button)] = action
	d.mu.Unlock()
}

// Known reports whether an action is registered for button.
func (d *Dispatcher) Known(button string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[strings.ToLower(button)]
	return ok
}

// Press records an edge. It never blocks; it returns false when the edge was
// debounced or the dispatch queue is full.
func (d *Dispatcher) Press(button string) bool {
	button = strings.ToLower(button)
	at, ok := d.debounce.Allow(button)
	if !ok {
		d.log.Debug("button press debounced", slog.String("button", button))
		return false
	}
	select {
	case d.events <- Event{Button: button, At: at}:
		return true
	default:
		d.log.Warn("button queue full; press dropped", slog.String("button", button))
		return false
	}
}

// Run executes actions in press order until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-d.events:
			d.dispatch(ctx, evt)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, evt Event) {
	d.mu.RLock()
	action := d.handlers[evt.Button]
	d.mu.RUnlock()
	if action == nil {
		d.log.Debug("no action for button", slog.String("button", evt.Button))
		return
	}
	if err := action(ctx); err != nil {
		d.log.Warn("button action failed", slog.String("button", evt.Button), slog.String("error", err.Error()))
	}
}

// Subscribe feeds presses published on device.button.<name> into the
// dispatcher. The payload is optional.
func (d *Dispatcher) Subscribe(conn *nats.Conn) error {
	sub, err := conn.Subscribe(protocol.SubjectButtonPresses, func(msg *nats.Msg) {
		name := strings.TrimPrefix(msg.Subject, protocol.SubjectButtonPrefix+".")
		if len(msg.Data) > 0 {
			var press protocol.ButtonPress
			if err := json.Unmarshal(msg.Data, &press); err == nil && press.Button != "" {
				name = press.Button
			}
		}
		d.Press(name)
	})
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.sub = sub
	d.mu.Unlock()
	return nil
}

func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sub != nil {
		_ = d.sub.Drain()
		d.sub = nil
	}
}
