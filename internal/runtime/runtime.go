package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/signbridge/internal/audio"
	"github.com/loqalabs/signbridge/internal/bus"
	"github.com/loqalabs/signbridge/internal/button"
	"github.com/loqalabs/signbridge/internal/camera"
	"github.com/loqalabs/signbridge/internal/classifier"
	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/device"
	"github.com/loqalabs/signbridge/internal/eventstore"
	"github.com/loqalabs/signbridge/internal/gesture"
	"github.com/loqalabs/signbridge/internal/mode"
	"github.com/loqalabs/signbridge/internal/natsserver"
	"github.com/loqalabs/signbridge/internal/pose"
	"github.com/loqalabs/signbridge/internal/speech"
	"github.com/loqalabs/signbridge/internal/status"
	"github.com/loqalabs/signbridge/internal/stt"
	"github.com/loqalabs/signbridge/internal/transcript"
	"github.com/loqalabs/signbridge/internal/translate"
	"github.com/loqalabs/signbridge/internal/tts"
	"github.com/loqalabs/signbridge/internal/volume"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	metricsSrv  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup

	// closers run in reverse order on shutdown.
	closers []func()
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) onClose(fn func()) {
	r.closers = append(r.closers, fn)
}

func (r *Runtime) closeAll() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}

func (r *Runtime) spawn(fn func()) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		fn()
	}()
}

// Start wires the device, enters SPEECH mode and blocks until ctx is done.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer r.closeAll()

	shutdownTelemetry, metricHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	busClient, err := r.startBus(ctx)
	if err != nil {
		return err
	}

	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	r.onClose(func() { _ = store.Close() })
	journal := eventstore.NewJournal(store, r.cfg.Node.ID)

	state := device.NewState(r.cfg.Languages.Base, r.cfg.Languages.Gender, r.cfg.Languages.Supported)
	sink := transcript.New(r.cfg.Transcript.Path, r.cfg.Node.ID, busClient, r.logger)
	sink.Clear()

	speechSvc, err := r.buildSpeech(ctx, state, sink, journal)
	if err != nil {
		return err
	}

	pipeline, worker, opener, err := r.buildGesture(speechSvc, sink, journal)
	if err != nil {
		return err
	}

	ctrl := mode.NewController(mode.Options{
		State:     state,
		Gesture:   pipeline,
		Speech:    speechSvc,
		Sink:      sink,
		Camera:    opener,
		Journal:   journal,
		Publisher: busClient,
		NodeID:    r.cfg.Node.ID,
	}, r.logger)
	r.onClose(ctrl.Close)

	buttons, err := r.buildButtons(ctrl, busClient)
	if err != nil {
		return err
	}

	reporter := status.NewReporter(r.cfg.Node, busClient, state, speechSvc.Listening, r.logger)
	if conn := busClient.Conn(); conn != nil {
		if err := reporter.Subscribe(conn); err != nil {
			r.logger.Warn("failed to track peer status", slogError(err))
		}
	}
	r.onClose(reporter.Close)

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("enter speech mode: %w", err)
	}

	r.spawn(func() { worker.Run(ctx) })
	r.spawn(func() { pipeline.Run(ctx) })
	r.spawn(func() { speechSvc.Run(ctx) })
	r.spawn(func() { buttons.Run(ctx) })
	reporter.Start(ctx)

	handler := newAPI(api{
		state:    state,
		settings: speechSvc,
		buttons:  buttons,
		gesture:  pipeline,
		feed:     sink,
		status:   reporter,
		metrics:  metricHandler,
		ready:    r.ready.Load,
		log:      r.logger.With(slog.String("component", "http")),
	}).routes()
	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = r.serve(addr, handler)
	if bind := r.cfg.Telemetry.PrometheusBind; bind != "" && bind != addr {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricHandler)
		r.metricsSrv = r.serve(bind, mux)
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("node_id", r.cfg.Node.ID),
		slog.String("mode", state.Mode().String()),
	)

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	for _, srv := range []*http.Server{r.httpServer, r.metricsSrv} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
	}
	r.wg.Wait()
	r.closeAll()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}

	return nil
}

func (r *Runtime) serve(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	r.spawn(func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slog.String("addr", addr), slogError(err))
		}
	})
	return srv
}

// startBus brings up the embedded NATS server when configured and connects to
// the bus. A disabled bus yields a nil client, which publishes nothing.
func (r *Runtime) startBus(ctx context.Context) (*bus.Client, error) {
	if !r.cfg.Bus.Enabled {
		return nil, nil
	}
	busCfg := r.cfg.Bus
	if busCfg.Embedded {
		srv, err := natsserver.Start(busCfg, r.logger)
		if err != nil {
			return nil, fmt.Errorf("start embedded nats: %w", err)
		}
		r.onClose(srv.Shutdown)
		busCfg.Servers = []string{srv.ClientURL()}
	}
	client, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return nil, err
	}
	r.onClose(client.Close)
	return client, nil
}

func (r *Runtime) buildSpeech(ctx context.Context, state *device.State, sink *transcript.Sink, journal *eventstore.Journal) (*speech.Service, error) {
	source, err := audio.NewSource(r.cfg.Audio, r.logger)
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	r.onClose(func() { _ = source.Close() })

	player, err := audio.NewPlayer(r.cfg.Audio, r.logger)
	if err != nil {
		return nil, fmt.Errorf("open speaker: %w", err)
	}
	recognizer, err := stt.New(ctx, r.cfg.STT, r.cfg.Google, r.logger)
	if err != nil {
		return nil, fmt.Errorf("init speech recognizer: %w", err)
	}
	mockLanguage := r.cfg.Languages.Base
	if alts := state.Alternatives(); len(alts) > 0 {
		mockLanguage = alts[0]
	}
	translator, err := translate.New(ctx, r.cfg.Translate, r.cfg.Google, mockLanguage, r.logger)
	if err != nil {
		return nil, fmt.Errorf("init translator: %w", err)
	}
	synth, err := tts.New(ctx, r.cfg.TTS, r.cfg.Google, r.logger)
	if err != nil {
		return nil, fmt.Errorf("init synthesizer: %w", err)
	}

	return speech.NewService(r.cfg, state, speech.Options{
		Source:     source,
		Player:     player,
		Recognizer: recognizer,
		Translator: translator,
		Synth:      synth,
		Sink:       sink,
		Journal:    journal,
	}, r.logger), nil
}

func (r *Runtime) buildGesture(responder gesture.Responder, sink *transcript.Sink, journal *eventstore.Journal) (*gesture.Pipeline, *gesture.Worker, camera.Opener, error) {
	opener, err := camera.NewOpener(r.cfg.Camera, r.logger)
	if err != nil {
		return nil, nil, nil, err
	}
	detector, err := pose.NewDetector(r.cfg.Pose, r.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init pose detector: %w", err)
	}
	if c, ok := detector.(interface{ Close() error }); ok {
		r.onClose(func() { _ = c.Close() })
	}
	cls, err := classifier.New(r.cfg.Classifier, r.cfg.Gesture.NothingLabel, r.logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init classifier: %w", err)
	}
	if c, ok := cls.(interface{ Close() error }); ok {
		r.onClose(func() { _ = c.Close() })
	}

	pipeline := gesture.NewPipeline(r.cfg.Gesture, gesture.Options{
		Detector:  detector,
		Responder: responder,
		Sink:      sink,
		Journal:   journal,
	}, r.logger)
	poll := time.Duration(r.cfg.Gesture.PollTimeoutMS) * time.Millisecond
	worker := gesture.NewWorker(cls, r.cfg.Classifier.Labels, pipeline.Submissions(), pipeline.Results(), poll, r.logger)
	return pipeline, worker, opener, nil
}

func (r *Runtime) buildButtons(ctrl *mode.Controller, busClient *bus.Client) (*button.Dispatcher, error) {
	buttons := button.NewDispatcher(r.cfg.Buttons, r.logger)
	buttons.Handle(button.Mode, ctrl.Toggle)

	if r.cfg.Volume.Enabled {
		vol, err := volume.New(r.cfg.Volume, nil)
		if err != nil {
			return nil, fmt.Errorf("init volume control: %w", err)
		}
		log := r.logger.With(slog.String("component", "volume"))
		adjust := func(step func(context.Context) (int, error)) button.Action {
			return func(ctx context.Context) error {
				level, err := step(ctx)
				if err != nil {
					return err
				}
				log.Info("volume changed", slog.Int("level", level))
				return nil
			}
		}
		buttons.Handle(button.Up, adjust(vol.Up))
		buttons.Handle(button.Down, adjust(vol.Down))
	}

	if conn := busClient.Conn(); conn != nil {
		if err := buttons.Subscribe(conn); err != nil {
			return nil, fmt.Errorf("subscribe buttons: %w", err)
		}
		r.onClose(buttons.Close)
	}
	return buttons, nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
