// Package summary generates end-of-session summaries from final transcripts.
package summary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/voxwire/voxwire/internal/llm"
)

const systemPrompt = `You summarize transcripts of real-time customer interactions.
Write a short plain-text summary covering what the customer wanted, what was
discussed, and any follow-up actions. Do not invent details that are not in
the transcript.`

// minTranscriptWords guards against burning tokens on transcripts too short
// to carry a meaningful summary.
const minTranscriptWords = 20

type Summarizer struct {
	client llm.Client
	sleep  func(time.Duration)
}

func New(client llm.Client) *Summarizer {
	return &Summarizer{client: client, sleep: time.Sleep}
}

// Summarize produces a summary for the transcript, retrying transient
// provider failures with increasing backoff. A transcript below the word
// floor yields an empty summary and no error.
func (s *Summarizer) Summarize(ctx context.Context, sessionID, transcript string) (string, error) {
	if len(strings.Fields(transcript)) < minTranscriptWords {
		return "", nil
	}

	messages := []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf("Session %s transcript:\n\n%s", sessionID, transcript)},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := s.client.Complete(ctx, messages)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt < len(backoff)-1 {
			s.sleep(backoff[attempt])
		}
	}
	return "", fmt.Errorf("summarize session %s failed after retries: %w", sessionID, lastErr)
}
