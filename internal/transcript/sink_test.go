package transcript

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/loqalabs/signbridge/internal/protocol"
)

type recordingPublisher struct {
	mu       sync.Mutex
	subjects []string
	texts    []string
}

func (p *recordingPublisher) PublishJSON(subject string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.texts = append(p.texts, v.(protocol.TranscriptUpdate).Text)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSinkOverwritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "transcript.txt")
	pub := &recordingPublisher{}
	s := New(path, "node-1", pub, discardLogger())

	s.Set("hola")
	s.Set("hello")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("expected overwrite, got %q", data)
	}
	s.Clear()
	data, _ = os.ReadFile(path)
	if len(data) != 0 || s.Text() != "" {
		t.Fatalf("expected empty transcript, got %q", data)
	}
	if len(pub.subjects) != 3 || pub.subjects[0] != protocol.SubjectTranscript || pub.texts[1] != "hello" {
		t.Fatalf("unexpected publishes %v %v", pub.subjects, pub.texts)
	}
}

func TestSubscribeSeesLatest(t *testing.T) {
	s := New("", "node-1", nil, discardLogger())
	s.Set("first")
	ch, cancel := s.Subscribe()
	if got := <-ch; got != "first" {
		t.Fatalf("expected current text, got %q", got)
	}
	s.Set("second")
	s.Set("third")
	if got := <-ch; got != "third" {
		t.Fatalf("expected latest text, got %q", got)
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel after unsubscribe")
	}
	cancel()
}
