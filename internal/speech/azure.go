package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	azureAudioContentType = "audio/wav; codecs=audio/pcm; samplerate=16000"
	azureOutputFormat     = "riff-16khz-16bit-mono-pcm"
	azureUserAgent        = "chorus"
	azureHTTPTimeout      = 60 * time.Second
)

// AzureRecognizer uses the Speech service short-audio REST endpoint.
type AzureRecognizer struct {
	Key      string
	Language string
	// Endpoint is the full recognition URL without query.
	Endpoint string
	Client   *http.Client
}

func NewAzureRecognizer(key, region string) *AzureRecognizer {
	return &AzureRecognizer{
		Key:      key,
		Language: RecognitionLanguage,
		Endpoint: fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1", region),
		Client:   &http.Client{Timeout: azureHTTPTimeout},
	}
}

type azureRecognition struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	Offset            int64  `json:"Offset"`
	Duration          int64  `json:"Duration"`
}

func (a *AzureRecognizer) RecognizeOnce(ctx context.Context, audio io.Reader) (RecognitionResult, error) {
	q := url.Values{}
	q.Set("language", a.Language)
	q.Set("format", "simple")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint+"?"+q.Encode(), audio)
	if err != nil {
		return RecognitionResult{}, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.Key)
	req.Header.Set("Content-Type", azureAudioContentType)
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient(a.Client).Do(req)
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("recognition request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return canceledRecognition(httpCancellation(resp)), nil
	}

	var body azureRecognition
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return RecognitionResult{}, fmt.Errorf("decoding recognition response: %w", err)
	}

	switch body.RecognitionStatus {
	case "Success":
		if strings.TrimSpace(body.DisplayText) == "" {
			return RecognitionResult{Reason: ReasonNoMatch}, nil
		}
		return RecognitionResult{Reason: ReasonRecognizedSpeech, Text: body.DisplayText}, nil
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return RecognitionResult{Reason: ReasonNoMatch}, nil
	case "EndOfDictation":
		return canceledRecognition(&CancellationDetails{Reason: CancelEndOfStream}), nil
	default:
		return canceledRecognition(&CancellationDetails{
			Reason:       CancelError,
			ErrorCode:    body.RecognitionStatus,
			ErrorDetails: "recognition service reported " + body.RecognitionStatus,
		}), nil
	}
}

// AzureSynthesizer uses the Speech service text-to-speech REST endpoint.
type AzureSynthesizer struct {
	Key      string
	Voice    string
	Language string
	Endpoint string
	Client   *http.Client
}

func NewAzureSynthesizer(key, region string) *AzureSynthesizer {
	return &AzureSynthesizer{
		Key:      key,
		Voice:    SynthesisVoice,
		Language: RecognitionLanguage,
		Endpoint: fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", region),
		Client:   &http.Client{Timeout: azureHTTPTimeout},
	}
}

func (a *AzureSynthesizer) SpeakText(ctx context.Context, text string) (SynthesisResult, error) {
	ssml, err := buildSSML(a.Language, a.Voice, text)
	if err != nil {
		return SynthesisResult{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint, strings.NewReader(ssml))
	if err != nil {
		return SynthesisResult{}, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.Key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
	req.Header.Set("User-Agent", azureUserAgent)

	resp, err := httpClient(a.Client).Do(req)
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return SynthesisResult{Reason: ReasonCanceled, Cancellation: httpCancellation(resp)}, nil
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return SynthesisResult{}, fmt.Errorf("reading synthesized audio: %w", err)
	}
	return SynthesisResult{Reason: ReasonSynthesizingAudioCompleted, Audio: audio}, nil
}

func buildSSML(lang, voice, text string) (string, error) {
	var esc bytes.Buffer
	if err := xml.EscapeText(&esc, []byte(text)); err != nil {
		return "", fmt.Errorf("escaping text: %w", err)
	}
	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s"><voice name="%s">%s</voice></speak>`,
		lang, voice, esc.String(),
	), nil
}

func canceledRecognition(d *CancellationDetails) RecognitionResult {
	return RecognitionResult{Reason: ReasonCanceled, Cancellation: d}
}

func httpCancellation(resp *http.Response) *CancellationDetails {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	details := strings.TrimSpace(string(body))
	if details == "" {
		details = resp.Status
	}
	return &CancellationDetails{
		Reason:       CancelError,
		ErrorCode:    fmt.Sprintf("HTTP %d", resp.StatusCode),
		ErrorDetails: details,
	}
}

func httpClient(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}
