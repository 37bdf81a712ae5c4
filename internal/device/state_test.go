package device

import (
	"sync"
	"testing"
)

var supported = []string{"en-US", "es-US", "ko-KR"}

func TestInitialState(t *testing.T) {
	s := NewState("en-US", "NEUTRAL", supported)
	if s.Mode() != ModeSpeech {
		t.Fatalf("expected initial mode SPEECH, got %s", s.Mode())
	}
	if _, ok := s.Pair(); ok {
		t.Fatal("expected no cached pair")
	}
	alts := s.Alternatives()
	if len(alts) != 2 || alts[0] != "es-US" || alts[1] != "ko-KR" {
		t.Fatalf("unexpected alternatives %v", alts)
	}
}

func TestResolvePairSpanish(t *testing.T) {
	s := NewState("en-US", "NEUTRAL", supported)
	pair, target, ok := s.ResolvePair("es")
	if !ok {
		t.Fatal("expected spanish to resolve")
	}
	if pair != (LanguagePair{Base: "en-US", Target: "es-US"}) {
		t.Fatalf("unexpected pair %+v", pair)
	}
	if target != "en-US" {
		t.Fatalf("spanish speech should translate to en-US, got %s", target)
	}

	// The base language now translates into the cached target.
	pair, target, ok = s.ResolvePair("en")
	if !ok || pair.Target != "es-US" || target != "es-US" {
		t.Fatalf("expected en -> es-US, got %+v %s %v", pair, target, ok)
	}
}

func TestResolvePairSwitchesOnNewLanguage(t *testing.T) {
	s := NewState("en-US", "NEUTRAL", supported)
	if _, _, ok := s.ResolvePair("es"); !ok {
		t.Fatal("spanish should resolve")
	}
	pair, target, ok := s.ResolvePair("ko")
	if !ok || pair.Target != "ko-KR" || target != "en-US" {
		t.Fatalf("expected switch to korean pair, got %+v %s %v", pair, target, ok)
	}
}

func TestResolvePairUnsupported(t *testing.T) {
	s := NewState("en-US", "NEUTRAL", supported)
	if _, _, ok := s.ResolvePair("fr"); ok {
		t.Fatal("french must not resolve")
	}
	// Base language with nothing cached has no pair to search.
	if _, _, ok := s.ResolvePair("en"); ok {
		t.Fatal("base language without a cached pair must not resolve")
	}
	if _, ok := s.Pair(); ok {
		t.Fatal("failed resolution must not cache a pair")
	}
}

func TestApplySettingsInvalidatesPair(t *testing.T) {
	s := NewState("en-US", "NEUTRAL", supported)
	if _, _, ok := s.ResolvePair("es"); !ok {
		t.Fatal("spanish should resolve")
	}
	s.ApplySettings("ko-KR", "FEMALE")
	if _, ok := s.Pair(); ok {
		t.Fatal("expected pair cleared by settings update")
	}
	got := s.Settings()
	if got.BaseLanguage != "ko-KR" || got.Gender != "FEMALE" {
		t.Fatalf("unexpected settings %+v", got)
	}
	pair, target, ok := s.ResolvePair("en")
	if !ok || pair != (LanguagePair{Base: "ko-KR", Target: "en-US"}) || target != "ko-KR" {
		t.Fatalf("expected ko-KR/en-US, got %+v %s %v", pair, target, ok)
	}
}

func TestPrimaryTag(t *testing.T) {
	cases := map[string]string{"en-US": "en", "es": "es", "ko_KR": "ko", " ZH-Hant-TW ": "zh"}
	for in, want := range cases {
		if got := PrimaryTag(in); got != want {
			t.Fatalf("PrimaryTag(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestConcurrentSettingsAndResolve(t *testing.T) {
	s := NewState("en-US", "NEUTRAL", supported)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				s.ApplySettings("en-US", "MALE")
			} else {
				s.ApplySettings("es-US", "FEMALE")
			}
		}(i)
		go func() {
			defer wg.Done()
			snap := s.Snapshot()
			if snap.Pair != nil && snap.Pair.Base != snap.Settings.BaseLanguage {
				t.Errorf("pair %+v does not belong to settings %+v", snap.Pair, snap.Settings)
			}
			s.ResolvePair("ko")
		}()
	}
	wg.Wait()
}
