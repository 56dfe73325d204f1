package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const defaultFFprobe = "ffprobe"

type Stream struct {
	Index      int
	CodecType  string
	CodecName  string
	Width      int
	Height     int
	SampleRate int
	Duration   float64
}

type MediaInfo struct {
	Path       string
	FormatName string
	Duration   float64
	Size       int64
	Streams    []Stream
}

func (m *MediaInfo) HasVideo() bool { return m.hasCodecType("video") }
func (m *MediaInfo) HasAudio() bool { return m.hasCodecType("audio") }

func (m *MediaInfo) hasCodecType(kind string) bool {
	for _, s := range m.Streams {
		if s.CodecType == kind {
			return true
		}
	}
	return false
}

type ProbeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("probe %s: %v", e.Path, e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

type Prober struct {
	runner  Runner
	ffprobe string
}

func NewProber(runner Runner) *Prober {
	return &Prober{runner: runner, ffprobe: defaultFFprobe}
}

type ffprobeStream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	SampleRate string `json:"sample_rate"`
	Duration   string `json:"duration"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

type ffprobeResult struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

// Probe inspects path with ffprobe. Duration is taken from the container and
// falls back to the longest stream when the container omits it.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	out, err := p.runner.Run(ctx, p.ffprobe, args...)
	if err != nil {
		probeErr := &ProbeError{Path: path, Err: err}
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			probeErr.Stderr = exitErr.Stderr
		}
		return nil, probeErr
	}

	var result ffprobeResult
	if err := json.Unmarshal(out.Stdout, &result); err != nil {
		return nil, &ProbeError{Path: path, Err: fmt.Errorf("parse ffprobe output: %w", err)}
	}

	info := &MediaInfo{
		Path:       path,
		FormatName: result.Format.FormatName,
		Duration:   parseFloat(result.Format.Duration),
		Size:       int64(parseFloat(result.Format.Size)),
		Streams:    make([]Stream, 0, len(result.Streams)),
	}
	var streamDuration float64
	for _, s := range result.Streams {
		stream := Stream{
			Index:      s.Index,
			CodecType:  s.CodecType,
			CodecName:  s.CodecName,
			Width:      s.Width,
			Height:     s.Height,
			SampleRate: int(parseFloat(s.SampleRate)),
			Duration:   parseFloat(s.Duration),
		}
		info.Streams = append(info.Streams, stream)
		streamDuration = max(streamDuration, stream.Duration)
	}
	if info.Duration <= 0 {
		info.Duration = streamDuration
	}

	if info.Duration <= 0 {
		return nil, &ProbeError{Path: path, Err: fmt.Errorf("no usable duration in ffprobe output")}
	}

	return info, nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
