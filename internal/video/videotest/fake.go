// Package videotest provides a fake ffmpeg/ffprobe runner. Media files it
// produces are small text files carrying a "dur=<seconds>" marker that the
// fake ffprobe reads back.
package videotest

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"scriptcast/internal/video"
)

const (
	StageProbe     = "probe"
	StageRender    = "render"
	StageMux       = "mux"
	StageConcat    = "concat"
	StageThumbnail = "thumbnail"
)

var (
	durationMarker = regexp.MustCompile(`dur=([0-9]+(?:\.[0-9]+)?)`)
	concatLine     = regexp.MustCompile(`^file '(.*)'$`)
)

// MediaBytes returns fake media content of the given duration.
func MediaBytes(duration float64) []byte {
	return []byte(fmt.Sprintf("fake-media dur=%.3f", duration))
}

// ReadDuration reads the duration of a fake media file or of a PCM WAV file.
func ReadDuration(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	if len(data) >= 44 && string(data[:4]) == "RIFF" {
		byteRate := binary.LittleEndian.Uint32(data[28:32])
		if byteRate == 0 {
			return 0, fmt.Errorf("%s: zero byte rate", path)
		}
		return float64(binary.LittleEndian.Uint32(data[40:44])) / float64(byteRate), nil
	}
	m := durationMarker.FindSubmatch(data)
	if m == nil {
		return 0, fmt.Errorf("%s: no duration marker", path)
	}
	return strconv.ParseFloat(string(m[1]), 64)
}

type Call struct {
	Stage string
	Name  string
	Args  []string
}

type FakeRunner struct {
	// Latency, when set, delays each call before it produces output.
	Latency func(stage string, args []string) time.Duration

	mu          sync.Mutex
	calls       []Call
	concatInput []string
	failures    map[string]string
}

func NewFakeRunner() *FakeRunner {
	return &FakeRunner{failures: make(map[string]string)}
}

// FailStage makes every call of stage exit non-zero with stderr.
func (f *FakeRunner) FailStage(stage, stderr string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[stage] = stderr
}

func (f *FakeRunner) Calls(stage string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if stage == "" || c.Stage == stage {
			out = append(out, c)
		}
	}
	return out
}

// ConcatInputs returns the files listed in the last concat call, in order.
func (f *FakeRunner) ConcatInputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.concatInput)
}

func (f *FakeRunner) Run(ctx context.Context, name string, args ...string) (*video.Output, error) {
	stage := classify(name, args)

	f.mu.Lock()
	f.calls = append(f.calls, Call{Stage: stage, Name: name, Args: slices.Clone(args)})
	stderr, failing := f.failures[stage]
	f.mu.Unlock()

	if f.Latency != nil {
		if d := f.Latency(stage, args); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return nil, &video.ExitError{Command: name, Args: args, Err: ctx.Err()}
			}
		}
	}

	if failing {
		if stage == StageConcat {
			_ = os.WriteFile(args[len(args)-1], []byte("truncated"), 0644)
		}
		return &video.Output{Stderr: []byte(stderr)}, &video.ExitError{
			Command: name,
			Args:    args,
			Stderr:  stderr,
			Err:     errors.New("exit status 1"),
		}
	}

	switch stage {
	case StageProbe:
		return f.probe(name, args)
	case StageConcat:
		return f.concat(name, args)
	case StageThumbnail:
		return &video.Output{}, os.WriteFile(args[len(args)-1], []byte("fake-jpeg"), 0644)
	default:
		d, err := strconv.ParseFloat(argAfter(args, "-t"), 64)
		if err != nil {
			return nil, &video.ExitError{Command: name, Args: args, Err: fmt.Errorf("missing -t: %w", err)}
		}
		return &video.Output{}, os.WriteFile(args[len(args)-1], MediaBytes(d), 0644)
	}
}

func (f *FakeRunner) probe(name string, args []string) (*video.Output, error) {
	path := args[len(args)-1]
	d, err := ReadDuration(path)
	if err != nil {
		msg := path + ": Invalid data found when processing input"
		return &video.Output{Stderr: []byte(msg)}, &video.ExitError{Command: name, Args: args, Stderr: msg, Err: errors.New("exit status 1")}
	}

	streams := []map[string]any{
		{"index": 0, "codec_type": "audio", "codec_name": "mp3", "sample_rate": "24000", "duration": fmt.Sprintf("%.3f", d)},
	}
	if strings.HasSuffix(path, ".mp4") {
		streams = []map[string]any{
			{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "duration": fmt.Sprintf("%.3f", d)},
			{"index": 1, "codec_type": "audio", "codec_name": "aac", "sample_rate": "44100", "duration": fmt.Sprintf("%.3f", d)},
		}
	}

	out, err := json.Marshal(map[string]any{
		"streams": streams,
		"format":  map[string]any{"format_name": "fake", "duration": fmt.Sprintf("%.6f", d), "size": "128"},
	})
	if err != nil {
		return nil, err
	}
	return &video.Output{Stdout: out}, nil
}

func (f *FakeRunner) concat(name string, args []string) (*video.Output, error) {
	list, err := os.ReadFile(argAfter(args, "-i"))
	if err != nil {
		return nil, &video.ExitError{Command: name, Args: args, Err: err}
	}

	var inputs []string
	var total float64
	for _, line := range strings.Split(strings.TrimSpace(string(list)), "\n") {
		m := concatLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		path := strings.ReplaceAll(m[1], `'\''`, `'`)
		d, err := ReadDuration(path)
		if err != nil {
			return nil, &video.ExitError{Command: name, Args: args, Err: err}
		}
		inputs = append(inputs, path)
		total += d
	}

	f.mu.Lock()
	f.concatInput = inputs
	f.mu.Unlock()

	return &video.Output{}, os.WriteFile(args[len(args)-1], MediaBytes(total), 0644)
}

func classify(name string, args []string) string {
	if strings.Contains(name, "ffprobe") {
		return StageProbe
	}
	switch {
	case slices.Contains(args, "lavfi"):
		return StageRender
	case slices.Contains(args, "concat"):
		return StageConcat
	case slices.Contains(args, "-frames:v"):
		return StageThumbnail
	default:
		return StageMux
	}
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
