// Package speech turns one microphone utterance into text and speaks text
// through the default speaker.
package speech

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
)

const (
	RecognitionLanguage = "zh-CN"
	SynthesisVoice      = "zh-CN-XiaoxiaoNeural"
)

var ErrNotConfigured = errors.New("speech: backend not configured")

type ResultReason int

const (
	ReasonRecognizedSpeech ResultReason = iota + 1
	ReasonNoMatch
	ReasonCanceled
	ReasonSynthesizingAudioCompleted
)

func (r ResultReason) String() string {
	switch r {
	case ReasonRecognizedSpeech:
		return "RecognizedSpeech"
	case ReasonNoMatch:
		return "NoMatch"
	case ReasonCanceled:
		return "Canceled"
	case ReasonSynthesizingAudioCompleted:
		return "SynthesizingAudioCompleted"
	}
	return fmt.Sprintf("ResultReason(%d)", int(r))
}

type CancellationReason string

const (
	CancelError       CancellationReason = "Error"
	CancelEndOfStream CancellationReason = "EndOfStream"
)

// CancellationDetails explains a Canceled result.
type CancellationDetails struct {
	Reason       CancellationReason
	ErrorCode    string
	ErrorDetails string
}

type RecognitionResult struct {
	Reason       ResultReason
	Text         string
	Cancellation *CancellationDetails
}

type SynthesisResult struct {
	Reason       ResultReason
	Audio        []byte
	Cancellation *CancellationDetails
}

// Recognition is the value delivered by RecognizeSpeechAsync.
type Recognition struct {
	Text string
	OK   bool
}

// AudioSource opens a capture stream. Closing it releases the device.
type AudioSource interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// AudioSink opens a playback stream. Closing it flushes and releases the device.
type AudioSink interface {
	Open(ctx context.Context) (io.WriteCloser, error)
}

type Recognizer interface {
	RecognizeOnce(ctx context.Context, audio io.Reader) (RecognitionResult, error)
}

type Synthesizer interface {
	SpeakText(ctx context.Context, text string) (SynthesisResult, error)
}

type Service struct {
	recognizer  Recognizer
	synthesizer Synthesizer
	source      AudioSource
	sink        AudioSink
	logger      *slog.Logger
}

func New(recognizer Recognizer, synthesizer Synthesizer, source AudioSource, sink AudioSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		recognizer:  recognizer,
		synthesizer: synthesizer,
		source:      source,
		sink:        sink,
		logger:      logger.With("component", "speech"),
	}
}

// RecognizeSpeechFromMicrophone captures one utterance and returns its text.
// No match, cancellation and errors all yield ("", false); the cause is logged.
func (s *Service) RecognizeSpeechFromMicrophone(ctx context.Context) (string, bool) {
	s.logger.Info("listening")
	res, err := s.recognizeOnce(ctx)
	if err != nil {
		s.logger.Error("speech recognition failed", "error", err)
		return "", false
	}

	switch res.Reason {
	case ReasonRecognizedSpeech:
		s.logger.Info("speech recognized", "text", res.Text)
		return res.Text, true
	case ReasonNoMatch:
		s.logger.Warn("no speech recognized")
	case ReasonCanceled:
		s.logCancellation("speech recognition canceled", res.Cancellation)
	default:
		s.logger.Warn("unexpected recognition result", "reason", res.Reason)
	}
	return "", false
}

// RecognizeSpeechAsync runs RecognizeSpeechFromMicrophone on its own
// goroutine. The channel yields exactly one value and is then closed.
func (s *Service) RecognizeSpeechAsync(ctx context.Context) <-chan Recognition {
	out := make(chan Recognition, 1)
	go func() {
		defer close(out)
		text, ok := s.RecognizeSpeechFromMicrophone(ctx)
		out <- Recognition{Text: text, OK: ok}
	}()
	return out
}

// SynthesizeSpeech speaks text through the sink and reports whether the whole
// utterance was synthesized and played.
func (s *Service) SynthesizeSpeech(ctx context.Context, text string) bool {
	if s.synthesizer == nil || s.sink == nil {
		s.logger.Error("speech synthesis failed", "error", ErrNotConfigured)
		return false
	}

	s.logger.Info("synthesizing speech", "chars", len([]rune(text)))
	res, err := s.synthesizer.SpeakText(ctx, text)
	if err != nil {
		s.logger.Error("speech synthesis failed", "error", err)
		return false
	}

	switch res.Reason {
	case ReasonSynthesizingAudioCompleted:
	case ReasonCanceled:
		s.logCancellation("speech synthesis canceled", res.Cancellation)
		return false
	default:
		s.logger.Warn("unexpected synthesis result", "reason", res.Reason)
		return false
	}

	if err := s.play(ctx, res.Audio); err != nil {
		s.logger.Error("audio playback failed", "error", err)
		return false
	}
	s.logger.Info("speech synthesis completed", "bytes", len(res.Audio))
	return true
}

// SynthesizeSpeechAsync runs SynthesizeSpeech on its own goroutine.
func (s *Service) SynthesizeSpeechAsync(ctx context.Context, text string) <-chan bool {
	out := make(chan bool, 1)
	go func() {
		defer close(out)
		out <- s.SynthesizeSpeech(ctx, text)
	}()
	return out
}

func (s *Service) recognizeOnce(ctx context.Context) (RecognitionResult, error) {
	if s.recognizer == nil || s.source == nil {
		return RecognitionResult{}, ErrNotConfigured
	}
	mic, err := s.source.Open(ctx)
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("opening microphone: %w", err)
	}
	defer func() {
		if cerr := mic.Close(); cerr != nil {
			s.logger.Warn("closing microphone", "error", cerr)
		}
	}()
	return s.recognizer.RecognizeOnce(ctx, mic)
}

func (s *Service) play(ctx context.Context, audio []byte) (err error) {
	spk, err := s.sink.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening speaker: %w", err)
	}
	defer func() {
		if cerr := spk.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing speaker: %w", cerr)
		}
	}()
	if _, err := spk.Write(audio); err != nil {
		return fmt.Errorf("writing audio: %w", err)
	}
	return nil
}

func (s *Service) logCancellation(msg string, d *CancellationDetails) {
	if d == nil {
		s.logger.Error(msg)
		return
	}
	if d.Reason == CancelError {
		s.logger.Error(msg, "reason", d.Reason, "code", d.ErrorCode, "details", d.ErrorDetails)
		return
	}
	s.logger.Error(msg, "reason", d.Reason)
}
