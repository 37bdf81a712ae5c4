package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/device"
	"github.com/loqalabs/signbridge/internal/protocol"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Peer is the last status seen from another device on the bus.
type Peer struct {
	protocol.DeviceStatus
	Healthy bool `json:"healthy"`
}

type Reporter struct {
	cfg       config.NodeConfig
	log       *slog.Logger
	pub       Publisher
	state     *device.State
	listening func() bool
	now       func() time.Time

	mu     sync.RWMutex
	peers  map[string]*Peer
	cancel context.CancelFunc
	subs   []*nats.Subscription
	meter  metric.Meter
}

func NewReporter(cfg config.NodeConfig, pub Publisher, state *device.State, listening func() bool, logger *slog.Logger) *Reporter {
	if listening == nil {
		listening = func() bool { return false }
	}
	r := &Reporter{
		cfg:       cfg,
		log:       logger.With(slog.String("component", "status")),
		pub:       pub,
		state:     state,
		listening: listening,
		now:       time.Now,
		peers:     make(map[string]*Peer),
		meter:     otel.Meter("github.com/loqalabs/signbridge/status"),
	}
	if err := r.initMetrics(); err != nil {
		r.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return r
}

// Start publishes one status immediately and then one per heartbeat interval
// until ctx is done or Close is called.
func (r *Reporter) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	if err := r.Publish(); err != nil {
		r.log.Warn("failed to publish status", slog.String("error", err.Error()))
	}
	go r.runHeartbeat(ctx)
	go r.monitorHealth(ctx)
}

func (r *Reporter) interval() time.Duration {
	return time.Duration(r.cfg.HeartbeatInterval) * time.Millisecond
}

func (r *Reporter) runHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(r.interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Publish(); err != nil {
				r.log.Warn("failed to publish status", slog.String("error", err.Error()))
			}
		}
	}
}

func (r *Reporter) monitorHealth(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateHealth()
		}
	}
}

// Current builds the status of this device.
func (r *Reporter) Current() protocol.DeviceStatus {
	snap := r.state.Snapshot()
	st := protocol.DeviceStatus{
		NodeID:       r.cfg.ID,
		Mode:         snap.Mode.String(),
		BaseLanguage: snap.Settings.BaseLanguage,
		Gender:       snap.Settings.Gender,
		Listening:    r.listening(),
		Timestamp:    r.now().UTC(),
	}
	if snap.Pair != nil {
		st.PairBase = snap.Pair.Base
		st.PairTarget = snap.Pair.Target
	}
	return st
}

func (r *Reporter) Publish() error {
	if r.pub == nil {
		return nil
	}
	return r.pub.PublishJSON(protocol.SubjectStatusPrefix+"."+r.cfg.ID, r.Current())
}

// Subscribe tracks the status heartbeats of other devices.
func (r *Reporter) Subscribe(conn *nats.Conn) error {
	sub, err := conn.Subscribe(protocol.SubjectStatusPrefix+".*", r.handleStatus)
	if err != nil {
		return fmt.Errorf("subscribe status: %w", err)
	}
	r.mu.Lock()
	r.subs = append(r.subs, sub)
	r.mu.Unlock()
	return nil
}

func (r *Reporter) handleStatus(msg *nats.Msg) {
	var st protocol.DeviceStatus
	if err := json.Unmarshal(msg.Data, &st); err != nil {
		r.log.Warn("invalid status message", slog.String("error", err.Error()))
		return
	}
	if st.NodeID == "" {
		st.NodeID = strings.TrimPrefix(msg.Subject, protocol.SubjectStatusPrefix+".")
	}
	if st.NodeID == r.cfg.ID {
		return
	}
	if st.Timestamp.IsZero() {
		st.Timestamp = r.now().UTC()
	}
	r.mu.Lock()
	r.peers[st.NodeID] = &Peer{DeviceStatus: st, Healthy: true}
	r.mu.Unlock()
}

// A peer is unhealthy after missing three heartbeats.
func (r *Reporter) evaluateHealth() {
	r.mu.Lock()
	defer r.mu.Unlock()
	timeout := 3 * r.interval()
	now := r.now()
	for _, peer := range r.peers {
		if now.Sub(peer.Timestamp) > timeout {
			peer.Healthy = false
		}
	}
}

func (r *Reporter) Peers() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, *p)
	}
	return out
}

func (r *Reporter) initMetrics() error {
	modeGauge, err := r.meter.Int64ObservableGauge("signbridge.device.mode", metric.WithDescription("Current mode (0 speech, 1 gesture)"))
	if err != nil {
		return err
	}
	peerGauge, err := r.meter.Int64ObservableGauge("signbridge.device.peers", metric.WithDescription("Healthy peer devices seen on the bus"))
	if err != nil {
		return err
	}
	_, err = r.meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(modeGauge, int64(r.state.Mode()))
		obs.ObserveInt64(peerGauge, r.healthyPeers())
		return nil
	}, modeGauge, peerGauge)
	return err
}

func (r *Reporter) healthyPeers() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int64
	for _, p := range r.peers {
		if p.Healthy {
			n++
		}
	}
	return n
}

func (r *Reporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	for _, sub := range r.subs {
		_ = sub.Drain()
	}
	r.subs = nil
}
