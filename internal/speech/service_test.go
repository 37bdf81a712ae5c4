package speech

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/signbridge/internal/audio"
	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/device"
	"github.com/loqalabs/signbridge/internal/stt"
	"github.com/loqalabs/signbridge/internal/tts"
)

type fakeRecognizer struct {
	mu       sync.Mutex
	text     string
	err      error
	requests []stt.Request
	// onTranscribe runs after each request is recorded.
	onTranscribe func(n int)
}

func (f *fakeRecognizer) Transcribe(_ context.Context, req stt.Request) (stt.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	n, hook := len(f.requests), f.onTranscribe
	text, err := f.text, f.err
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if err != nil {
		return stt.Result{}, err
	}
	return stt.Result{Text: text}, nil
}

func (f *fakeRecognizer) calls() []stt.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]stt.Request(nil), f.requests...)
}

type fakeTranslator struct {
	mu       sync.Mutex
	language string
	targets  []string
	err      error
	// onTranslate runs before each translation.
	onTranslate func()
}

func (f *fakeTranslator) Detect(context.Context, string) (string, error) {
	return f.language, nil
}

func (f *fakeTranslator) Translate(_ context.Context, text, target string) (string, error) {
	if f.onTranslate != nil {
		f.onTranslate()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.targets = append(f.targets, target)
	return target + ":" + text, nil
}

type memorySink struct {
	mu   sync.Mutex
	text string
	sets int
}

func (m *memorySink) Set(text string) {
	m.mu.Lock()
	m.text = text
	m.sets++
	m.mu.Unlock()
}

func (m *memorySink) get() (string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, m.sets
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	svc        *Service
	state      *device.State
	source     *audio.MockSource
	player     *audio.MockPlayer
	recognizer *fakeRecognizer
	translator *fakeTranslator
	sink       *memorySink
	clock      *fakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default()
	h := &harness{
		state:      device.NewState(cfg.Languages.Base, "FEMALE", cfg.Languages.Supported),
		source:     audio.NewMockSource(0),
		player:     &audio.MockPlayer{},
		recognizer: &fakeRecognizer{text: "hola amigo"},
		translator: &fakeTranslator{language: "es"},
		sink:       &memorySink{},
		clock:      &fakeClock{now: time.Unix(1_700_000_000, 0)},
	}
	h.svc = NewService(cfg, h.state, Options{
		Source:     h.source,
		Player:     h.player,
		Recognizer: h.recognizer,
		Translator: h.translator,
		Synth:      tts.NewMockSynth(cfg.TTS.SampleRate, 1),
		Sink:       h.sink,
		Now:        h.clock.Now,
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

func loudFrame() []byte {
	return bytes.Repeat([]byte{0xff, 0x3f}, 480)
}

func TestSpanishUtteranceTranslatesToBase(t *testing.T) {
	h := newHarness(t)
	pausedDuringPlay := false
	h.player.OnPlay = func() { pausedDuringPlay = h.source.Paused() }

	outcome, err := h.svc.ProcessUtterance(context.Background(), make([]byte, 3200))
	if err != nil || outcome != OutcomeTranslated {
		t.Fatalf("expected translated, got %s %v", outcome, err)
	}
	pair, ok := h.state.Pair()
	if !ok || pair != (device.LanguagePair{Base: "en-US", Target: "es-US"}) {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if text, _ := h.sink.get(); text != "en:hola amigo" {
		t.Fatalf("unexpected transcript %q", text)
	}
	if !pausedDuringPlay {
		t.Fatal("capture must be paused during playback")
	}
	if h.source.Paused() {
		t.Fatal("capture must resume after playback")
	}
	if h.player.Clips() != 1 {
		t.Fatalf("expected one clip played, got %d", h.player.Clips())
	}
	req := h.recognizer.calls()[0]
	if req.Language != "en-US" || len(req.Alternatives) != 2 {
		t.Fatalf("unexpected language hints %+v", req)
	}
}

func TestBaseLanguageUtteranceUsesCachedPair(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.ProcessUtterance(context.Background(), make([]byte, 3200)); err != nil {
		t.Fatalf("first utterance: %v", err)
	}
	h.translator.language = "en"
	h.recognizer.text = "hello friend"
	outcome, err := h.svc.ProcessUtterance(context.Background(), make([]byte, 3200))
	if err != nil || outcome != OutcomeTranslated {
		t.Fatalf("expected translated, got %s %v", outcome, err)
	}
	if text, _ := h.sink.get(); text != "es:hello friend" {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestResetGuardDiscards(t *testing.T) {
	h := newHarness(t)
	h.svc.Reset()
	h.clock.Advance(400 * time.Millisecond)
	outcome, err := h.svc.ProcessUtterance(context.Background(), make([]byte, 3200))
	if err != nil || outcome != OutcomeGuarded {
		t.Fatalf("expected guarded, got %s %v", outcome, err)
	}
	if len(h.recognizer.calls()) != 0 {
		t.Fatal("guarded utterance reached the recognizer")
	}
	h.clock.Advance(100 * time.Millisecond)
	if outcome, _ := h.svc.ProcessUtterance(context.Background(), make([]byte, 3200)); outcome != OutcomeTranslated {
		t.Fatalf("expected translated after the guard, got %s", outcome)
	}
}

func TestDiscards(t *testing.T) {
	h := newHarness(t)
	h.recognizer.text = "   "
	if outcome, err := h.svc.ProcessUtterance(context.Background(), nil); outcome != OutcomeEmpty || err != nil {
		t.Fatalf("expected empty, got %s %v", outcome, err)
	}

	h.recognizer.text = "bonjour"
	h.translator.language = "fr"
	if outcome, err := h.svc.ProcessUtterance(context.Background(), nil); outcome != OutcomeUnsupported || err != nil {
		t.Fatalf("expected unsupported, got %s %v", outcome, err)
	}

	h.recognizer.err = errors.New("quota exceeded")
	if outcome, err := h.svc.ProcessUtterance(context.Background(), nil); outcome != OutcomeTranscribeFailed || err == nil {
		t.Fatalf("expected transcribe failure, got %s %v", outcome, err)
	}

	h.recognizer.err = nil
	h.translator.language = "es"
	h.translator.err = errors.New("translate down")
	if outcome, err := h.svc.ProcessUtterance(context.Background(), nil); outcome != OutcomeTranslateFailed || err == nil {
		t.Fatalf("expected translate failure, got %s %v", outcome, err)
	}
	if _, sets := h.sink.get(); sets != 0 {
		t.Fatalf("discarded utterances wrote the transcript %d times", sets)
	}
	if h.player.Clips() != 0 {
		t.Fatal("discarded utterances were spoken")
	}
}

func TestApplySettings(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.ProcessUtterance(context.Background(), nil); err != nil {
		t.Fatalf("utterance: %v", err)
	}
	if err := h.svc.ApplySettings("fr-FR", "MALE"); err == nil {
		t.Fatal("expected unsupported base language error")
	}
	if err := h.svc.ApplySettings("ko-KR", "ROBOT"); err == nil {
		t.Fatal("expected invalid gender error")
	}
	if _, ok := h.state.Pair(); !ok {
		t.Fatal("rejected settings must not clear the pair")
	}
	if err := h.svc.ApplySettings("ko-KR", "MALE"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok := h.state.Pair(); ok {
		t.Fatal("settings update must invalidate the pair")
	}
}

func TestListenOnceSkipsShortSegments(t *testing.T) {
	h := newHarness(t)
	h.recognizer.text = "yes please"
	silence := make([]byte, 960)

	h.source.Queue(loudFrame())
	for i := 0; i < 10; i++ {
		h.source.Queue(silence)
	}
	h.source.Queue(loudFrame(), loudFrame(), loudFrame())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	reply, err := h.svc.ListenOnce(ctx)
	if err != nil {
		t.Fatalf("listen once: %v", err)
	}
	if reply != "yes please" {
		t.Fatalf("unexpected reply %q", reply)
	}
	calls := h.recognizer.calls()
	if len(calls) != 1 {
		t.Fatalf("expected one transcription, got %d", len(calls))
	}
	if calls[0].Language != "en-US" || len(calls[0].Alternatives) != 0 || len(calls[0].PCM) != 3*960 {
		t.Fatalf("unexpected request %+v", calls[0])
	}
	if text, _ := h.sink.get(); text != "yes please" {
		t.Fatalf("reply not written to the transcript: %q", text)
	}
}

func TestListenOnceCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.svc.ListenOnce(ctx); err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestRunProcessesWhileListening(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.source.Queue(loudFrame())
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.Run(ctx)
		close(done)
	}()
	h.svc.SetListening(true)

	deadline := time.Now().Add(5 * time.Second)
	for {
		if text, _ := h.sink.get(); text == "en:hola amigo" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("utterance was not processed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.svc.SetListening(false)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listen loop did not stop")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func startRun(t *testing.T, h *harness) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("listen loop did not stop")
		}
	})
}

func TestRunRestartsAfterBaseLanguageChange(t *testing.T) {
	h := newHarness(t)
	silence := make([]byte, 960)
	for i := 0; i < 5; i++ {
		h.source.Queue(loudFrame())
	}
	for i := 0; i < 12; i++ {
		h.source.Queue(silence)
	}
	second := bytes.Repeat([]byte{0x00, 0x40}, 480)
	h.source.Queue(second, second, second)

	h.recognizer.onTranscribe = func(n int) {
		if n == 1 {
			if err := h.svc.ApplySettings("ko-KR", "MALE"); err != nil {
				t.Errorf("apply: %v", err)
			}
		}
	}
	startRun(t, h)
	h.svc.SetListening(true)

	waitFor(t, "second utterance", func() bool { return len(h.recognizer.calls()) >= 2 })
	calls := h.recognizer.calls()
	if calls[0].Language != "en-US" || len(calls[0].PCM) != 5*960 {
		t.Fatalf("unexpected first request %s %d bytes", calls[0].Language, len(calls[0].PCM))
	}
	if calls[1].Language != "ko-KR" {
		t.Fatalf("listener kept the old base language: %s", calls[1].Language)
	}
	if len(calls[1].PCM) != 3*960 || !bytes.Equal(calls[1].PCM[:960], second) {
		t.Fatalf("second segment carried stale frames: %d bytes", len(calls[1].PCM))
	}
	if got := h.source.Flushes(); got < 3 {
		t.Fatalf("expected the capture to be flushed around each listener pass, got %d", got)
	}
}

func TestSetListeningOffFlushesCapture(t *testing.T) {
	h := newHarness(t)
	startRun(t, h)
	h.svc.SetListening(true)
	waitFor(t, "listener start", func() bool { return h.source.Flushes() >= 1 })

	h.svc.SetListening(false)
	waitFor(t, "flush on stop", func() bool { return h.source.Flushes() >= 2 })

	h.svc.SetListening(true)
	waitFor(t, "flush on restart", func() bool { return h.source.Flushes() >= 3 })
}

func TestSetListeningOffInterruptsUtterance(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.source.Queue(loudFrame())
	}
	translated := make(chan struct{})
	var once sync.Once
	h.translator.onTranslate = func() {
		h.svc.SetListening(false)
		once.Do(func() { close(translated) })
	}
	startRun(t, h)
	h.svc.SetListening(true)

	select {
	case <-translated:
	case <-time.After(5 * time.Second):
		t.Fatal("utterance never reached translation")
	}
	waitFor(t, "listener stop", func() bool { return h.source.Flushes() >= 2 })
	if _, sets := h.sink.get(); sets != 0 {
		t.Fatalf("interrupted utterance wrote the transcript %d times", sets)
	}
	if h.player.Clips() != 0 {
		t.Fatal("interrupted utterance was spoken")
	}
}

func TestProcessUtteranceInterrupted(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.translator.onTranslate = cancel
	outcome, err := h.svc.ProcessUtterance(ctx, make([]byte, 3200))
	if outcome != OutcomeInterrupted || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected interrupted, got %s %v", outcome, err)
	}
	if _, sets := h.sink.get(); sets != 0 {
		t.Fatal("interrupted utterance wrote the transcript")
	}
}
