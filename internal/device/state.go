// Package device holds the state shared by both pipelines: the active mode,
// the user settings and the inferred language pair, all behind one lock.
package device

import (
	"strings"
	"sync"
)

type Mode int

const (
	ModeSpeech Mode = iota
	ModeGesture
)

func (m Mode) String() string {
	switch m {
	case ModeSpeech:
		return "SPEECH"
	case ModeGesture:
		return "GESTURE"
	default:
		return "UNKNOWN"
	}
}

// Settings are changed only through ApplySettings.
type Settings struct {
	BaseLanguage string `json:"baseLanguage"`
	Gender       string `json:"gender"`
}

// LanguagePair is the current bilingual direction.
type LanguagePair struct {
	Base   string `json:"base"`
	Target string `json:"target"`
}

// Snapshot is a consistent copy of the shared state.
type Snapshot struct {
	Mode     Mode
	Settings Settings
	Pair     *LanguagePair
}

type State struct {
	mu         sync.Mutex
	mode       Mode
	settings   Settings
	pair       *LanguagePair
	supported  []string
	candidates []LanguagePair
}

// NewState starts in speech mode with no inferred pair.
func NewState(base, gender string, supported []string) *State {
	s := &State{
		mode:      ModeSpeech,
		settings:  Settings{BaseLanguage: base, Gender: gender},
		supported: append([]string(nil), supported...),
	}
	s.candidates = candidatePairs(base, s.supported)
	return s
}

// PrimaryTag returns the language subtag of a BCP-47 code, "es-US" -> "es".
func PrimaryTag(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i >= 0 {
		return code[:i]
	}
	return code
}

// SameLanguage compares two codes on their primary subtag.
func SameLanguage(a, b string) bool {
	return PrimaryTag(a) == PrimaryTag(b)
}

func candidatePairs(base string, supported []string) []LanguagePair {
	pairs := make([]LanguagePair, 0, len(supported))
	for _, lang := range supported {
		if lang == base {
			continue
		}
		pairs = append(pairs, LanguagePair{Base: base, Target: lang})
	}
	return pairs
}

func (s *State) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SetMode flips the mode. Callers that must clear buffers atomically with the
// flip do so inside their own critical section and call SetMode from there.
func (s *State) SetMode(m Mode) {
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
}

func (s *State) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *State) Supported() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.supported...)
}

// Alternatives lists the supported languages other than the base language.
func (s *State) Alternatives() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	alts := make([]string, 0, len(s.supported))
	for _, lang := range s.supported {
		if lang != s.settings.BaseLanguage {
			alts = append(alts, lang)
		}
	}
	return alts
}

// Snapshot copies mode, settings and pair under the lock.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{Mode: s.mode, Settings: s.settings}
	if s.pair != nil {
		pair := *s.pair
		snap.Pair = &pair
	}
	return snap
}

// Pair returns the cached language pair, if any.
func (s *State) Pair() (LanguagePair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pair == nil {
		return LanguagePair{}, false
	}
	return *s.pair, true
}

// ApplySettings replaces the settings, drops the cached pair and rebuilds the
// candidate pairs in one step.
func (s *State) ApplySettings(base, gender string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = Settings{BaseLanguage: base, Gender: gender}
	s.pair = nil
	s.candidates = candidatePairs(base, s.supported)
}

// ResolvePair picks the language pair for an utterance in detected and returns
// it with the language to translate into. The cached pair is kept while the
// detected language is either its base or its target; otherwise the candidate
// pair whose target matches is adopted. ok is false for unsupported languages.
func (s *State) ResolvePair(detected string) (pair LanguagePair, target string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.settings.BaseLanguage
	if s.pair == nil || (!SameLanguage(detected, base) && !SameLanguage(detected, s.pair.Target)) {
		var found *LanguagePair
		for i := range s.candidates {
			c := s.candidates[i]
			if SameLanguage(c.Base, base) && SameLanguage(c.Target, detected) {
				found = &c
				break
			}
		}
		if found == nil {
			return LanguagePair{}, "", false
		}
		s.pair = found
	}

	if SameLanguage(detected, s.pair.Base) {
		return *s.pair, s.pair.Target, true
	}
	return *s.pair, s.pair.Base, true
}
