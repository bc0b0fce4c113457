package speech

import (
	"context"
	"fmt"
	"io"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
)

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// GoogleRecognizer sends one LINEAR16 utterance to Cloud Speech. It
// authenticates with Application Default Credentials.
type GoogleRecognizer struct {
	client     *gspeech.Client
	recognize  recognizeFunc
	language   string
	sampleRate int32
}

func NewGoogleRecognizer(ctx context.Context) (*GoogleRecognizer, error) {
	c, err := gspeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating speech client: %w", err)
	}
	return &GoogleRecognizer{
		client: c,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		},
		language:   RecognitionLanguage,
		sampleRate: 16000,
	}, nil
}

func (g *GoogleRecognizer) RecognizeOnce(ctx context.Context, audio io.Reader) (RecognitionResult, error) {
	content, err := io.ReadAll(audio)
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("reading audio: %w", err)
	}
	if len(content) == 0 {
		return RecognitionResult{Reason: ReasonNoMatch}, nil
	}

	resp, err := g.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: g.sampleRate,
			LanguageCode:    g.language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: content},
		},
	})
	if err != nil {
		return canceledRecognition(&CancellationDetails{
			Reason:       CancelError,
			ErrorCode:    "Recognize",
			ErrorDetails: err.Error(),
		}), nil
	}

	var parts []string
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		if t := strings.TrimSpace(alts[0].GetTranscript()); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return RecognitionResult{Reason: ReasonNoMatch}, nil
	}
	return RecognitionResult{Reason: ReasonRecognizedSpeech, Text: strings.Join(parts, "")}, nil
}

func (g *GoogleRecognizer) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}
