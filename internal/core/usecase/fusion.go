package usecase

import (
	"math"
	"strings"

	"github.com/craigoj/homestead-snap-report-sub000/internal/core/domain"
)

const (
	crossValidationBonus = 15.0

	shortTextLength       = 10
	shortTextQuality      = 20.0
	baseQuality           = 50.0
	longTextLength        = 100
	longTextBonus         = 20.0
	manyWordsCount        = 10
	manyWordsBonus        = 15.0
	minRealWordLength     = 3.0
	maxRealWordLength     = 8.0
	realWordLengthBonus   = 15.0
	defaultStructuredName = "openai"
	defaultTextName       = "google"
)

type mergeInput struct {
	structured     *domain.StructuredExtraction
	text           *domain.RawTextResult
	structuredName string
	textName       string
}

// mergeResults reconciles the two nullable provider outputs. It performs no I/O.
func mergeResults(in mergeInput) domain.FusedResult {
	structuredName := in.structuredName
	if structuredName == "" {
		structuredName = defaultStructuredName
	}
	textName := in.textName
	if textName == "" {
		textName = defaultTextName
	}

	switch {
	case in.structured == nil && in.text == nil:
		return domain.FusedResult{
			Provider: domain.ProviderNone,
			Metadata: domain.FusionMetadata{ProvidersUsed: []string{}},
		}

	case in.text == nil:
		a := *in.structured
		a.Confidence = clampConfidence(a.Confidence)
		return domain.FusedResult{
			StructuredExtraction: a,
			Provider:             domain.ProviderStructured,
			RawText:              a.ExtractedText,
			Metadata: domain.FusionMetadata{
				TextConfidence:      a.Confidence,
				StructureConfidence: a.Confidence,
				ImageQuality:        imageQuality(a.ExtractedText),
				ProvidersUsed:       []string{structuredName},
			},
		}

	case in.structured == nil:
		b := *in.text
		conf := clampConfidence(b.Confidence)
		return domain.FusedResult{
			StructuredExtraction: domain.StructuredExtraction{
				Confidence:    conf,
				ExtractedText: b.Text,
			},
			Provider: domain.ProviderText,
			RawText:  b.Text,
			Metadata: domain.FusionMetadata{
				TextConfidence:      conf,
				StructureConfidence: 0,
				ImageQuality:        imageQuality(b.Text),
				ProvidersUsed:       []string{textName},
			},
		}

	default:
		a := *in.structured
		b := *in.text
		structureConf := clampConfidence(a.Confidence)
		textConf := clampConfidence(b.Confidence)

		merged := math.Round((structureConf + textConf) / 2)
		if textsCorroborate(a.ExtractedText, b.Text) {
			merged += crossValidationBonus
		}
		a.Confidence = clampConfidence(merged)

		return domain.FusedResult{
			StructuredExtraction: a,
			Provider:             domain.ProviderHybrid,
			RawText:              longerText(a.ExtractedText, b.Text),
			Metadata: domain.FusionMetadata{
				TextConfidence:      textConf,
				StructureConfidence: structureConf,
				ImageQuality:        imageQuality(b.Text),
				ProvidersUsed:       []string{structuredName, textName},
			},
		}
	}
}

// textsCorroborate reports whether either text, lower-cased, contains the other.
// An empty text is contained in anything.
func textsCorroborate(a, b string) bool {
	la := strings.ToLower(a)
	lb := strings.ToLower(b)
	return strings.Contains(la, lb) || strings.Contains(lb, la)
}

// longerText prefers the structured provider's text on equal length.
func longerText(structuredText, detectedText string) string {
	if len([]rune(detectedText)) > len([]rune(structuredText)) {
		return detectedText
	}
	return structuredText
}

func imageQuality(text string) float64 {
	length := len([]rune(text))
	if length < shortTextLength {
		return shortTextQuality
	}

	score := baseQuality
	if length > longTextLength {
		score += longTextBonus
	}

	words := strings.Fields(text)
	if len(words) > manyWordsCount {
		score += manyWordsBonus
	}
	if len(words) > 0 {
		total := 0
		for _, w := range words {
			total += len([]rune(w))
		}
		avg := float64(total) / float64(len(words))
		if avg >= minRealWordLength && avg <= maxRealWordLength {
			score += realWordLengthBonus
		}
	}

	return clampConfidence(score)
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return domain.MinConfidence
	case v < domain.MinConfidence:
		return domain.MinConfidence
	case v > domain.MaxConfidence:
		return domain.MaxConfidence
	default:
		return v
	}
}
