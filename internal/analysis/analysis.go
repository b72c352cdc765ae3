// Package analysis provides cheap, rule-based enrichment of transcript text.
// These run inline on the transcription hot path, so they trade accuracy for
// constant-time scans.
package analysis

import (
	"sort"
	"strings"
)

// Sentiment is a coarse tag plus score in [-1, 1].
type Sentiment struct {
	Score      float64 `json:"score"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
}

var positiveWords = []string{"good", "great", "excellent", "happy", "satisfied", "thank", "please"}

var negativeWords = []string{"bad", "terrible", "awful", "angry", "frustrated", "disappointed", "problem"}

// AnalyzeSentiment tags text positive/negative/neutral by keyword spotting.
// Confidence is fixed low to reflect the crude method.
func AnalyzeSentiment(text string) Sentiment {
	lower := strings.ToLower(text)

	positive := 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			positive++
		}
	}
	negative := 0
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			negative++
		}
	}

	switch {
	case positive > negative:
		return Sentiment{Score: 0.3, Category: "positive", Confidence: 0.6}
	case negative > positive:
		return Sentiment{Score: -0.3, Category: "negative", Confidence: 0.6}
	default:
		return Sentiment{Score: 0, Category: "neutral", Confidence: 0.6}
	}
}

// ExtractKeywords returns up to five of the most frequent words longer than
// three characters, most frequent first. Ties break lexicographically so the
// result is deterministic.
func ExtractKeywords(text string) []string {
	freq := make(map[string]int)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) > 3 {
			freq[word]++
		}
	}
	if len(freq) == 0 {
		return nil
	}

	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})

	if len(words) > 5 {
		words = words[:5]
	}
	return words
}

// WordCount tokenizes on whitespace. Used by the quality metrics accumulator.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
