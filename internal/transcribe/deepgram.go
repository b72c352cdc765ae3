package transcribe

import (
	"bytes"
	"context"
	"fmt"

	listenapi "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramClient transcribes window audio through the Deepgram prerecorded
// REST API. Deepgram never reports windows final; window closing is left to
// the caller's size policy.
type DeepgramClient struct {
	api   *listenapi.Client
	model string
}

// NewDeepgramClient builds a Deepgram-backed Transcriber. Model defaults to
// nova-2 when empty.
func NewDeepgramClient(apiKey, model string) (*DeepgramClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("deepgram API key cannot be empty")
	}
	if model == "" {
		model = "nova-2"
	}

	rest := client.NewREST(apiKey, &interfaces.ClientOptions{})
	return &DeepgramClient{api: listenapi.New(rest), model: model}, nil
}

// Transcribe sends the audio and extracts the top alternative.
func (c *DeepgramClient) Transcribe(ctx context.Context, req Request) (Result, error) {
	if len(req.Audio) == 0 {
		return Result{}, ErrEmptyAudio
	}

	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       c.model,
		SmartFormat: true,
	}
	if req.LanguageHint != "" && req.LanguageHint != "auto" {
		options.Language = req.LanguageHint
	} else {
		options.DetectLanguage = true
	}

	res, err := c.api.FromStream(ctx, bytes.NewReader(req.Audio), options)
	if err != nil {
		return Result{}, fmt.Errorf("deepgram transcription: %w", err)
	}

	if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		return Result{}, fmt.Errorf("deepgram: no alternatives in response")
	}

	channel := res.Results.Channels[0]
	alt := channel.Alternatives[0]

	language := ""
	if len(channel.DetectedLanguage) > 0 {
		language = channel.DetectedLanguage
	}

	return Result{
		Text:       alt.Transcript,
		Confidence: alt.Confidence,
		Language:   language,
	}, nil
}
