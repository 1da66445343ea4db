package language

import (
	"errors"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// Builds a detector over every language lingua ships models for.
// Detection quality beats memory here; restricting the candidate set
// makes lingua misattribute unlisted languages instead of reporting
// them.
func NewDetector() lingua.LanguageDetector {
	return lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		WithPreloadedLanguageModels().
		Build()
}

// Detects the language of a given text and returns the ISO 639-1 code.
func Detect(detector lingua.LanguageDetector, text string) (string, error) {
	const minTextLength = 20
	if len(text) < minTextLength {
		return "unknown", nil
	}

	detected, exists := detector.DetectLanguageOf(text)
	if !exists {
		return "", errors.New("language detection failed")
	}
	return strings.ToLower(detected.IsoCode639_1().String()), nil
}
