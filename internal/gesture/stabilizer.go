package gesture

import (
	"strings"
	"time"

	"github.com/loqalabs/signbridge/internal/config"
)

type StabilizerConfig struct {
	Threshold      float64
	HistoryLength  int
	MinConsistent  int
	MinInterval    time.Duration
	NothingLabel   string
	FinalizeStreak int
}

func StabilizerConfigFrom(cfg config.GestureConfig) StabilizerConfig {
	return StabilizerConfig{
		Threshold:      cfg.ConfidenceThreshold,
		HistoryLength:  cfg.HistoryLength,
		MinConsistent:  cfg.MinConsistent,
		MinInterval:    time.Duration(cfg.MinIntervalMS) * time.Millisecond,
		NothingLabel:   cfg.NothingLabel,
		FinalizeStreak: cfg.FinalizeStreak,
	}
}

// Outcome reports what a single prediction changed.
type Outcome struct {
	Committed string
	Finalized bool
	Text      string
}

// Stabilizer turns noisy per-window predictions into a sentence. A word is
// committed only when it wins the vote over the recent history, and a sentence
// ends after a streak of confident "nothing" predictions.
type Stabilizer struct {
	cfg           StabilizerConfig
	now           func() time.Time
	history       []string
	sentence      []string
	lastAccepted  time.Time
	nothingStreak int
}

// NewStabilizer uses time.Now when now is nil.
func NewStabilizer(cfg StabilizerConfig, now func() time.Time) *Stabilizer {
	if now == nil {
		now = time.Now
	}
	if cfg.HistoryLength <= 0 {
		cfg.HistoryLength = 1
	}
	return &Stabilizer{cfg: cfg, now: now, history: make([]string, 0, cfg.HistoryLength)}
}

func (s *Stabilizer) Observe(p Prediction) Outcome {
	var out Outcome
	now := s.now()

	s.history = append(s.history, p.Label)
	if len(s.history) > s.cfg.HistoryLength {
		s.history = append(s.history[:0], s.history[len(s.history)-s.cfg.HistoryLength:]...)
	}

	if float64(p.Confidence) > s.cfg.Threshold {
		if p.Label == s.cfg.NothingLabel {
			s.nothingStreak++
			s.lastAccepted = now
		} else if now.Sub(s.lastAccepted) >= s.cfg.MinInterval && s.count(p.Label) >= s.cfg.MinConsistent {
			s.nothingStreak = 0
			if len(s.sentence) == 0 || s.sentence[len(s.sentence)-1] != p.Label {
				s.sentence = append(s.sentence, p.Label)
				out.Committed = p.Label
			}
			s.history = s.history[:0]
			s.lastAccepted = now
		}
	}

	if s.nothingStreak >= s.cfg.FinalizeStreak && s.hasWord() {
		out.Finalized = true
		out.Text = strings.Join(s.sentence, " ")
		s.Reset()
	}
	return out
}

func (s *Stabilizer) count(label string) int {
	n := 0
	for _, l := range s.history {
		if l == label {
			n++
		}
	}
	return n
}

func (s *Stabilizer) hasWord() bool {
	for _, w := range s.sentence {
		if w != s.cfg.NothingLabel {
			return true
		}
	}
	return false
}

// Reset clears sentence, history and the nothing streak. The interval clock is
// kept so a word cannot be committed immediately after a reset.
func (s *Stabilizer) Reset() {
	s.sentence = s.sentence[:0]
	s.history = s.history[:0]
	s.nothingStreak = 0
}

func (s *Stabilizer) Sentence() []string {
	return append([]string(nil), s.sentence...)
}

func (s *Stabilizer) History() []string {
	return append([]string(nil), s.history...)
}

func (s *Stabilizer) NothingStreak() int { return s.nothingStreak }
