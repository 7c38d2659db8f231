package rss

import (
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// Detector guesses the language of article text. Detection runs against
// every language lingua knows, but only configured target languages are
// ever reported.
type Detector struct {
	detector  lingua.LanguageDetector
	targets   []lingua.Language
	threshold float64
}

func NewDetector(codes []string, threshold float64) *Detector {
	if threshold <= 0 {
		threshold = 0.6
	}

	return &Detector{
		detector: lingua.NewLanguageDetectorBuilder().
			FromLanguages(lingua.AllLanguages()...).
			WithMinimumRelativeDistance(0.25).
			Build(),
		targets:   targetLanguages(codes),
		threshold: threshold,
	}
}

// Detect returns the ISO 639-1 code of the most confident target
// language, or "" when nothing clears the confidence threshold.
func (d *Detector) Detect(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	var highestConf float64
	var detected lingua.Language

	for _, lang := range d.targets {
		conf := d.detector.ComputeLanguageConfidence(text, lang)
		if conf > highestConf {
			highestConf = conf
			detected = lang
		}
	}

	if highestConf < d.threshold {
		return ""
	}

	return linguaToISO(detected)
}

func linguaToISO(lang lingua.Language) string {
	return strings.ToLower(lang.IsoCode639_1().String())
}

func targetLanguages(codes []string) []lingua.Language {
	supported := map[string]lingua.Language{}
	for _, lang := range lingua.AllLanguages() {
		supported[linguaToISO(lang)] = lang
	}

	languages := []lingua.Language{}
	for _, code := range codes {
		if lang, ok := supported[strings.ToLower(code)]; ok {
			languages = append(languages, lang)
		}
	}

	if len(languages) == 0 {
		languages = append(languages, lingua.English)
	}

	return languages
}
