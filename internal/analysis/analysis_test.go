package analysis

import (
	"reflect"
	"testing"
)

func TestAnalyzeSentiment(t *testing.T) {
	tests := []struct {
		name         string
		text         string
		wantCategory string
		wantScore    float64
	}{
		{"positive", "thank you, this is great and I am very happy", "positive", 0.3},
		{"negative", "this is terrible, I am angry about the problem", "negative", -0.3},
		{"neutral", "I would like to check my order status", "neutral", 0},
		{"mixed cancels out", "good service but a bad experience", "neutral", 0},
		{"empty", "", "neutral", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AnalyzeSentiment(tt.text)
			if got.Category != tt.wantCategory {
				t.Fatalf("expected category %q, got %q", tt.wantCategory, got.Category)
			}
			if got.Score != tt.wantScore {
				t.Fatalf("expected score %v, got %v", tt.wantScore, got.Score)
			}
			if got.Confidence != 0.6 {
				t.Fatalf("expected fixed confidence 0.6, got %v", got.Confidence)
			}
		})
	}
}

func TestAnalyzeSentimentCaseInsensitive(t *testing.T) {
	got := AnalyzeSentiment("THANK you, GREAT service")
	if got.Category != "positive" {
		t.Fatalf("expected positive for upper-case input, got %q", got.Category)
	}
}

func TestExtractKeywords(t *testing.T) {
	text := "refund refund refund order order delivery delivery delivery delivery payment invoice a to the"
	got := ExtractKeywords(text)

	want := []string{"delivery", "refund", "order", "invoice", "payment"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestExtractKeywordsSkipsShortWords(t *testing.T) {
	got := ExtractKeywords("a an the to is it how why")
	if got != nil {
		t.Fatalf("expected no keywords from short words, got %v", got)
	}
}

func TestExtractKeywordsStripsPunctuation(t *testing.T) {
	got := ExtractKeywords("refund! refund? (refund)")
	if !reflect.DeepEqual(got, []string{"refund"}) {
		t.Fatalf("expected punctuation stripped, got %v", got)
	}
}

func TestWordCount(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"   ", 0},
		{"hello", 1},
		{"hello  world\n again", 3},
	}
	for _, tt := range tests {
		if got := WordCount(tt.text); got != tt.want {
			t.Errorf("WordCount(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}
