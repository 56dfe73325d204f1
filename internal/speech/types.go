package speech

import (
	"context"
	"fmt"
	"strings"
)

const DefaultWordsPerMinute = 150.0

// Provider turns text into an encoded audio stream.
type Provider interface {
	Synthesize(ctx context.Context, text, languageCode string) ([]byte, error)
}

type AudioClip struct {
	Index    int
	Path     string
	Duration float64
}

type ErrorKind string

const (
	Transient ErrorKind = "transient"
	Permanent ErrorKind = "permanent"
)

type SynthesisError struct {
	Kind       ErrorKind
	StatusCode int
	Err        error
}

func (e *SynthesisError) Error() string {
	msg := fmt.Sprintf("%s synthesis failure", e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.StatusCode)
	}
	return msg + ": " + e.Err.Error()
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}

func (e *SynthesisError) Permanent() bool {
	return e.Kind == Permanent
}

// DetectAudioFormat returns a file extension for the encoded audio in data.
func DetectAudioFormat(data []byte) string {
	if len(data) < 4 {
		return ".bin"
	}

	if string(data[:4]) == "RIFF" {
		return ".wav"
	}

	if string(data[:3]) == "ID3" || (data[0] == 0xFF && (data[1]&0xE0) == 0xE0) {
		return ".mp3"
	}

	if string(data[:4]) == "OggS" {
		return ".ogg"
	}

	return ".bin"
}

func EstimateDuration(text string, wordsPerMinute float64) float64 {
	if wordsPerMinute <= 0 {
		wordsPerMinute = DefaultWordsPerMinute
	}
	return float64(len(strings.Fields(text))) / wordsPerMinute * 60.0
}
