package gesture

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/signbridge/internal/camera"
	"github.com/loqalabs/signbridge/internal/classifier"
	"github.com/loqalabs/signbridge/internal/config"
	"github.com/loqalabs/signbridge/internal/pose"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
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

func stabilizerConfig() StabilizerConfig {
	return StabilizerConfigFrom(config.Default().Gesture)
}

func keypoint(v float32) pose.Keypoints {
	var kp pose.Keypoints
	kp[0] = v
	return kp
}

func TestQueueTryPushDropsWhenFull(t *testing.T) {
	q := NewQueue[int](2)
	if !q.TryPush(1) || !q.TryPush(2) {
		t.Fatal("expected first two pushes to succeed")
	}
	if q.TryPush(3) {
		t.Fatal("push into a full queue must fail")
	}
	if v, ok := q.TryPop(); !ok || v != 1 {
		t.Fatalf("expected 1, got %d %v", v, ok)
	}
	if n := q.Drain(); n != 1 {
		t.Fatalf("expected one drained item, got %d", n)
	}
	if _, ok := q.TryPop(); ok {
		t.Fatal("expected empty queue")
	}
}

func TestQueuePopHonoursTimeoutAndContext(t *testing.T) {
	q := NewQueue[int](1)
	start := time.Now()
	if _, ok := q.Pop(context.Background(), 20*time.Millisecond); ok {
		t.Fatal("expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("pop blocked for %s", elapsed)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := q.Pop(ctx, time.Hour); ok {
		t.Fatal("expected cancelled pop to fail")
	}
}

func TestSequenceBufferKeepsLastWindow(t *testing.T) {
	b := NewSequenceBuffer(30)
	for i := 0; i < 35; i++ {
		b.Append(keypoint(float32(i)))
		if b.Len() > 30 {
			t.Fatalf("buffer grew to %d", b.Len())
		}
	}
	snap := b.Snapshot()
	if len(snap) != 30 {
		t.Fatalf("expected 30 entries, got %d", len(snap))
	}
	for i, kp := range snap {
		if kp[0] != float32(i+5) {
			t.Fatalf("entry %d = %v, want %d", i, kp[0], i+5)
		}
	}
	snap[0][0] = -1
	if b.Snapshot()[0][0] == -1 {
		t.Fatal("snapshot must be a copy")
	}
}

func TestStabilizerCommitsConsistentWordOnce(t *testing.T) {
	clock := newFakeClock()
	s := NewStabilizer(stabilizerConfig(), clock.Now)
	var commits int
	for i := 0; i < 3; i++ {
		out := s.Observe(Prediction{Label: "hello", Confidence: 0.95})
		if out.Committed == "hello" {
			commits++
		}
		clock.Advance(100 * time.Millisecond)
	}
	if commits != 1 {
		t.Fatalf("expected exactly one commit, got %d", commits)
	}
	if got := s.Sentence(); len(got) != 1 || got[0] != "hello" {
		t.Fatalf("unexpected sentence %v", got)
	}
	if len(s.History()) != 0 {
		t.Fatalf("history should be cleared after a commit, got %v", s.History())
	}
}

func TestStabilizerIgnoresLowConfidence(t *testing.T) {
	clock := newFakeClock()
	s := NewStabilizer(stabilizerConfig(), clock.Now)
	for i := 0; i < 50; i++ {
		if out := s.Observe(Prediction{Label: "hello", Confidence: 0.5}); out.Committed != "" {
			t.Fatal("low confidence prediction committed a word")
		}
		clock.Advance(time.Second)
	}
	if len(s.Sentence()) != 0 {
		t.Fatalf("expected empty sentence, got %v", s.Sentence())
	}
}

func TestStabilizerRespectsMinInterval(t *testing.T) {
	clock := newFakeClock()
	s := NewStabilizer(stabilizerConfig(), clock.Now)
	for i := 0; i < 3; i++ {
		s.Observe(Prediction{Label: "hello", Confidence: 0.95})
	}
	for i := 0; i < 3; i++ {
		if out := s.Observe(Prediction{Label: "thanks", Confidence: 0.95}); out.Committed != "" {
			t.Fatal("word committed inside the minimum interval")
		}
	}
	clock.Advance(500 * time.Millisecond)
	if out := s.Observe(Prediction{Label: "thanks", Confidence: 0.95}); out.Committed != "thanks" {
		t.Fatalf("expected thanks after the interval, got %+v", out)
	}
}

func TestStabilizerNeverRepeatsLastWord(t *testing.T) {
	clock := newFakeClock()
	s := NewStabilizer(stabilizerConfig(), clock.Now)
	for round := 0; round < 3; round++ {
		for i := 0; i < 3; i++ {
			s.Observe(Prediction{Label: "yes", Confidence: 0.99})
		}
		clock.Advance(time.Second)
	}
	if got := s.Sentence(); len(got) != 1 {
		t.Fatalf("expected a single yes, got %v", got)
	}
}

func TestStabilizerFinalizesOnNothingStreak(t *testing.T) {
	clock := newFakeClock()
	s := NewStabilizer(stabilizerConfig(), clock.Now)
	for i := 0; i < 3; i++ {
		s.Observe(Prediction{Label: "hello", Confidence: 0.95})
	}
	clock.Advance(500 * time.Millisecond)
	if out := s.Observe(Prediction{Label: "nothing", Confidence: 0.95}); out.Finalized {
		t.Fatal("finalized after a single nothing")
	}
	clock.Advance(500 * time.Millisecond)
	out := s.Observe(Prediction{Label: "nothing", Confidence: 0.95})
	if !out.Finalized || out.Text != "hello" {
		t.Fatalf("expected finalize with hello, got %+v", out)
	}
	if len(s.Sentence()) != 0 || len(s.History()) != 0 || s.NothingStreak() != 0 {
		t.Fatalf("state not cleared: sentence=%v history=%v streak=%d", s.Sentence(), s.History(), s.NothingStreak())
	}
}

func TestStabilizerNothingStreakIsThresholdGated(t *testing.T) {
	clock := newFakeClock()
	s := NewStabilizer(stabilizerConfig(), clock.Now)
	for i := 0; i < 3; i++ {
		s.Observe(Prediction{Label: "help", Confidence: 0.95})
	}
	for i := 0; i < 5; i++ {
		clock.Advance(time.Second)
		if out := s.Observe(Prediction{Label: "nothing", Confidence: 0.6}); out.Finalized {
			t.Fatal("low confidence nothing must not finalize")
		}
	}
	if s.NothingStreak() != 0 {
		t.Fatalf("expected no streak, got %d", s.NothingStreak())
	}
}

func TestStabilizerNoFinalizeWithoutWords(t *testing.T) {
	clock := newFakeClock()
	s := NewStabilizer(stabilizerConfig(), clock.Now)
	for i := 0; i < 4; i++ {
		clock.Advance(time.Second)
		if out := s.Observe(Prediction{Label: "nothing", Confidence: 0.99}); out.Finalized {
			t.Fatal("finalized an empty sentence")
		}
	}
}

type scriptedClassifier struct {
	mu     sync.Mutex
	scores []float32
	calls  int
	block  chan struct{}
}

func (c *scriptedClassifier) Classify(ctx context.Context, window []pose.Keypoints) ([]float32, error) {
	if c.block != nil {
		select {
		case <-c.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return append([]float32(nil), c.scores...), nil
}

func TestWorkerEmitsArgmaxLabel(t *testing.T) {
	labels := config.Default().Classifier.Labels
	c := &scriptedClassifier{scores: []float32{0.01, 0.02, 0.03, 0.9, 0.02, 0.02}}
	in := NewQueue[[]pose.Keypoints](5)
	out := NewQueue[Prediction](5)
	w := NewWorker(c, labels, in, out, 10*time.Millisecond, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	in.TryPush(make([]pose.Keypoints, 30))
	pred, ok := out.Pop(context.Background(), 2*time.Second)
	if !ok {
		t.Fatal("expected a prediction")
	}
	if pred.Label != "help" || pred.Confidence != 0.9 {
		t.Fatalf("unexpected prediction %+v", pred)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestWorkerDropsMismatchedScores(t *testing.T) {
	c := &scriptedClassifier{scores: []float32{1}}
	in := NewQueue[[]pose.Keypoints](1)
	out := NewQueue[Prediction](1)
	w := NewWorker(c, []string{"a", "b"}, in, out, 10*time.Millisecond, discardLogger())
	if _, err := w.classify(context.Background(), nil); err == nil {
		t.Fatal("expected score/label mismatch error")
	}
}

type countingDetector struct {
	mu sync.Mutex
	n  int
}

func (d *countingDetector) Detect(ctx context.Context, _ camera.Frame) (pose.Observation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
	return pose.Observation{Pose: []pose.Landmark{{X: float32(d.n)}}}, nil
}

type recordingResponder struct {
	mu        sync.Mutex
	announced []string
	listens   int
	reply     string
}

func (r *recordingResponder) Announce(ctx context.Context, text string) error {
	r.mu.Lock()
	r.announced = append(r.announced, text)
	r.mu.Unlock()
	return nil
}

func (r *recordingResponder) ListenOnce(ctx context.Context) (string, error) {
	r.mu.Lock()
	r.listens++
	r.mu.Unlock()
	return r.reply, nil
}

type countingSink struct {
	mu     sync.Mutex
	clears int
}

func (s *countingSink) Clear() {
	s.mu.Lock()
	s.clears++
	s.mu.Unlock()
}

func newTestPipeline(t *testing.T, clock *fakeClock, responder Responder, sink Clearer) *Pipeline {
	t.Helper()
	cfg := config.Default().Gesture
	return NewPipeline(cfg, Options{
		Detector:  &countingDetector{},
		Responder: responder,
		Sink:      sink,
		Now:       clock.Now,
		Sleep:     func(context.Context, time.Duration) error { return nil },
	}, discardLogger())
}

func TestPipelineInactiveTickDoesNothing(t *testing.T) {
	p := newTestPipeline(t, newFakeClock(), nil, nil)
	if _, ok := p.Tick(context.Background()); ok {
		t.Fatal("inactive pipeline finalized")
	}
	if w, _, _ := p.Buffers(); w != 0 {
		t.Fatalf("inactive pipeline buffered %d frames", w)
	}
}

func TestPipelineDropsWhenSubmissionQueueFull(t *testing.T) {
	p := newTestPipeline(t, newFakeClock(), nil, nil)
	cam := camera.NewMock(640, 400)
	p.Transition(true, cam, nil)

	for i := 0; i < 30+p.Submissions().Cap()+10; i++ {
		start := time.Now()
		p.Tick(context.Background())
		if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
			t.Fatalf("tick %d blocked for %s", i, elapsed)
		}
	}
	if got := p.Submissions().Len(); got != p.Submissions().Cap() {
		t.Fatalf("expected a full submission queue, got %d", got)
	}
	if w, _, _ := p.Buffers(); w != 30 {
		t.Fatalf("expected a full window, got %d", w)
	}
}

func TestPipelineCameraErrorSkipsTick(t *testing.T) {
	p := newTestPipeline(t, newFakeClock(), nil, nil)
	cam := camera.NewMock(640, 400)
	cam.FailWith(camera.ErrUnavailable)
	p.Transition(true, cam, nil)
	p.Tick(context.Background())
	if w, _, _ := p.Buffers(); w != 0 {
		t.Fatalf("failed read appended a frame")
	}
}

func TestPipelineFinalizeClearsAndHandsOff(t *testing.T) {
	clock := newFakeClock()
	responder := &recordingResponder{reply: "hi there"}
	sink := &countingSink{}
	p := newTestPipeline(t, clock, responder, sink)
	p.Transition(true, camera.NewMock(640, 400), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p.Results().TryPush(Prediction{Label: "hello", Confidence: 0.95})
		p.Tick(ctx)
	}
	if _, _, sentence := p.Buffers(); sentence != 1 {
		t.Fatalf("expected one committed word, got %d", sentence)
	}

	clock.Advance(time.Second)
	p.Results().TryPush(Prediction{Label: "nothing", Confidence: 0.95})
	p.Tick(ctx)
	clock.Advance(time.Second)
	p.Results().TryPush(Prediction{Label: "nothing", Confidence: 0.95})
	text, ok := p.Tick(ctx)
	if !ok || text != "hello" {
		t.Fatalf("expected finalize with hello, got %q %v", text, ok)
	}
	window, history, sentence := p.Buffers()
	if window != 0 || history != 0 || sentence != 0 {
		t.Fatalf("buffers not cleared: window=%d history=%d sentence=%d", window, history, sentence)
	}
	if p.Submissions().Len() != 0 || p.Results().Len() != 0 {
		t.Fatal("queues not drained on finalize")
	}

	p.finalize(ctx, text)
	if len(responder.announced) != 1 || responder.announced[0] != "hello" {
		t.Fatalf("unexpected announcements %v", responder.announced)
	}
	if responder.listens != 1 {
		t.Fatalf("expected one reply capture, got %d", responder.listens)
	}
	if sink.clears != 2 {
		t.Fatalf("expected sink cleared before the reply and after the cooldown, got %d", sink.clears)
	}
}

func TestPipelineTransitionClearsEverything(t *testing.T) {
	clock := newFakeClock()
	p := newTestPipeline(t, clock, nil, nil)
	cam := camera.NewMock(640, 400)
	p.Transition(true, cam, nil)
	ctx := context.Background()
	for i := 0; i < 35; i++ {
		p.Tick(ctx)
	}
	for i := 0; i < 3; i++ {
		p.Results().TryPush(Prediction{Label: "thanks", Confidence: 0.99})
		p.Tick(ctx)
	}
	p.Results().TryPush(Prediction{Label: "help", Confidence: 0.99})

	flipped := false
	prev := p.Transition(false, nil, func() { flipped = true })
	if prev != cam {
		t.Fatal("expected the installed camera back")
	}
	if !flipped {
		t.Fatal("flip was not called")
	}
	window, history, sentence := p.Buffers()
	if window != 0 || history != 0 || sentence != 0 {
		t.Fatalf("buffers not cleared: window=%d history=%d sentence=%d", window, history, sentence)
	}
	if p.Submissions().Len() != 0 || p.Results().Len() != 0 {
		t.Fatal("queues not drained")
	}
	if p.View().Active {
		t.Fatal("pipeline still active")
	}
}

func TestPipelineRunWithWorker(t *testing.T) {
	cfg := config.Default()
	labels := cfg.Classifier.Labels
	p := NewPipeline(cfg.Gesture, Options{Detector: pose.NewMockDetector()}, discardLogger())
	w := NewWorker(classifier.NewMockClassifier(len(labels), 0), labels, p.Submissions(), p.Results(), 10*time.Millisecond, discardLogger())
	p.Transition(true, camera.NewMock(640, 400), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	go p.Run(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if v := p.View(); len(v.Sentence) == 1 && v.Sentence[0] == "hello" {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected hello to be committed, view=%+v", p.View())
}
