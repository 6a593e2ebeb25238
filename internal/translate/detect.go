package translate

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	lingua "github.com/pemistahl/lingua-go"
)

var (
	detectorOnce sync.Once
	detector     lingua.LanguageDetector
)

// DetectSourceLanguage guesses the ISO 639-1 code of the given text samples.
// Detection is fully offline; the model is only built on first use because
// loading it is expensive.
func DetectSourceLanguage(samples []string) (string, error) {
	text := strings.TrimSpace(strings.Join(samples, "\n\n"))
	if text == "" {
		return "", fmt.Errorf("no text available for language detection")
	}

	letterCount := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letterCount++
		}
	}
	if letterCount < 20 {
		return "", fmt.Errorf("not enough text for reliable language detection")
	}

	language, exists := getDetector().DetectLanguageOf(text)
	if !exists {
		return "", fmt.Errorf("language could not be detected")
	}

	code := strings.ToLower(language.IsoCode639_1().String())
	if len(code) != 2 {
		return "", fmt.Errorf("language detector returned unusable code %q", code)
	}

	return code, nil
}

func getDetector() lingua.LanguageDetector {
	detectorOnce.Do(func() {
		detector = lingua.NewLanguageDetectorBuilder().
			FromAllLanguages().
			WithPreloadedLanguageModels().
			Build()
	})
	return detector
}
