package extract

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

// detectionLanguages is the candidate set for statistical detection. Kept
// small: a larger set slows detector construction considerably.
var detectionLanguages = []lingua.Language{
	lingua.English,
	lingua.French,
	lingua.German,
	lingua.Spanish,
	lingua.Portuguese,
	lingua.Italian,
	lingua.Dutch,
	lingua.Russian,
	lingua.Japanese,
	lingua.Chinese,
}

// LinguaDetector wraps a lingua language detector behind the
// LanguageDetector interface.
type LinguaDetector struct {
	detector lingua.LanguageDetector
}

// NewLinguaDetector builds a detector over the default candidate set.
// Construction is expensive; build once and share.
func NewLinguaDetector() *LinguaDetector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(detectionLanguages...).
		Build()

	return &LinguaDetector{detector: detector}
}

// Detect returns the ISO 639-1 code of the most likely language.
func (d *LinguaDetector) Detect(text string) (string, bool) {
	language, ok := d.detector.DetectLanguageOf(text)
	if !ok {
		return "", false
	}

	return strings.ToLower(language.IsoCode639_1().String()), true
}
