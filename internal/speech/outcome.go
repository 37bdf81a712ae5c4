// Package speech turns utterances into spoken translations.
package speech

// Outcome says how an utterance left the pipeline.
type Outcome int

const (
	OutcomeTranslated Outcome = iota
	OutcomeGuarded
	OutcomeTranscribeFailed
	OutcomeEmpty
	OutcomeDetectFailed
	OutcomeUnsupported
	OutcomeTranslateFailed
	OutcomeSpeakFailed
	OutcomeInterrupted
)

var outcomeNames = map[Outcome]string{
	OutcomeTranslated:       "translated",
	OutcomeGuarded:          "guarded",
	OutcomeTranscribeFailed: "transcribe_failed",
	OutcomeEmpty:            "empty",
	OutcomeDetectFailed:     "detect_failed",
	OutcomeUnsupported:      "unsupported",
	OutcomeTranslateFailed:  "translate_failed",
	OutcomeSpeakFailed:      "speak_failed",
	OutcomeInterrupted:      "interrupted",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}
