package tts

import "strings"

// variants maps a language to its voice variant letters for FEMALE and MALE.
var variants = map[string][2]string{
	"en-US": {"F", "B"},
	"es-US": {"A", "C"},
	"ko-KR": {"B", "C"},
}

const defaultVariant = "A"

// Variant returns the voice variant letter for language and gender. Genders
// other than FEMALE use the male voice.
func Variant(language, gender string) string {
	v, ok := variants[language]
	if !ok {
		return defaultVariant
	}
	if strings.EqualFold(gender, "FEMALE") {
		return v[0]
	}
	return v[1]
}

// VoiceName builds a Cloud TTS voice name such as "es-US-Standard-C".
func VoiceName(language, voiceType, gender string) string {
	if voiceType == "" {
		voiceType = "Standard"
	}
	return language + "-" + voiceType + "-" + Variant(language, gender)
}

// SSMLGender normalises gender to MALE, FEMALE or NEUTRAL.
func SSMLGender(gender string) string {
	switch strings.ToUpper(gender) {
	case "FEMALE":
		return "FEMALE"
	case "MALE":
		return "MALE"
	default:
		return "NEUTRAL"
	}
}

// Request builds the synthesis request for text spoken in language.
func Request(text, language, voiceType, gender string) SynthRequest {
	return SynthRequest{
		Text:         text,
		LanguageCode: language,
		Voice:        VoiceName(language, voiceType, gender),
		Gender:       SSMLGender(gender),
	}
}
