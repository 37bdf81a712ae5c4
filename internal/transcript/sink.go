// Package transcript holds the single line of text shown on the display.
package transcript

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/loqalabs/signbridge/internal/protocol"
)

// Publisher is satisfied by *bus.Client.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// Sink has overwrite semantics: every Set replaces the text. Writes are
// mirrored to a file, the bus and any subscribers.
type Sink struct {
	path   string
	nodeID string
	pub    Publisher
	log    *slog.Logger

	mu   sync.Mutex
	text string
	subs map[int]chan string
	next int
}

func New(path, nodeID string, pub Publisher, logger *slog.Logger) *Sink {
	return &Sink{
		path:   path,
		nodeID: nodeID,
		pub:    pub,
		log:    logger.With(slog.String("component", "transcript")),
		subs:   make(map[int]chan string),
	}
}

func (s *Sink) Set(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
	s.persist(text)
	for _, ch := range s.subs {
		offer(ch, text)
	}
	if s.pub != nil {
		msg := protocol.TranscriptUpdate{NodeID: s.nodeID, Text: text, Timestamp: time.Now().UTC()}
		if err := s.pub.PublishJSON(protocol.SubjectTranscript, msg); err != nil {
			s.log.Warn("failed to publish transcript", slog.String("error", err.Error()))
		}
	}
}

func (s *Sink) Clear() { s.Set("") }

func (s *Sink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// Subscribe delivers the current text and every later write. Slow subscribers
// only ever see the latest text. The returned func unsubscribes.
func (s *Sink) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 1)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	ch <- s.text
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
		s.mu.Unlock()
	}
}

// offer replaces a pending value so the channel always holds the newest text.
func offer(ch chan string, text string) {
	select {
	case ch <- text:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- text:
	default:
	}
}

func (s *Sink) persist(text string) {
	if s.path == "" {
		return
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.log.Warn("failed to create transcript directory", slog.String("error", err.Error()))
			return
		}
	}
	if err := os.WriteFile(s.path, []byte(text), 0o644); err != nil {
		s.log.Warn("failed to write transcript", slog.String("error", err.Error()))
	}
}
