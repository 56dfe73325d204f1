package app

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"scriptcast/internal/script"
	"scriptcast/internal/speech"
	"scriptcast/internal/video"
	"scriptcast/internal/video/videotest"
)

const threeParagraphs = "The first scene introduces the topic.\n\n" +
	"The second scene explains the details further.\n\n" +
	"The third scene wraps everything up nicely."

// textProvider returns fake media lasting one second per ten characters.
type textProvider struct {
	calls atomic.Int32
	err   error
}

func (p *textProvider) Synthesize(_ context.Context, text, _ string) ([]byte, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return videotest.MediaBytes(textDuration(text)), nil
}

func textDuration(text string) float64 {
	return float64(utf8.RuneCountInString(text)) / 10
}

type skewProber struct {
	inner Prober
	skew  float64
}

func (p *skewProber) Probe(ctx context.Context, path string) (*video.MediaInfo, error) {
	info, err := p.inner.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	info.Duration += p.skew
	return info, nil
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) observe(_ string, state State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *stateRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.states)
}

type testEnv struct {
	workDir  string
	runner   *videotest.FakeRunner
	provider *textProvider
	opts     ServiceOptions
}

func newTestEnv(t *testing.T, synthConcurrency int) *testEnv {
	t.Helper()
	runner := videotest.NewFakeRunner()
	provider := &textProvider{}
	prober := video.NewProber(runner)
	workDir := t.TempDir()

	return &testEnv{
		workDir:  workDir,
		runner:   runner,
		provider: provider,
		opts: ServiceOptions{
			WorkDir:           workDir,
			MaxSegmentChars:   script.DefaultMaxChars,
			RenderParallelism: 2,
			DurationTolerance: 0.5,
			Synthesizer:       speech.NewSynthesizer(provider, prober, speech.SynthesizerOptions{Concurrency: synthConcurrency}),
			Renderer:          video.NewRenderer(runner, video.RendererOptions{}),
			Composer:          video.NewComposer(runner, 2),
			Prober:            prober,
		},
	}
}

func (e *testEnv) service() *Service {
	return NewService(e.opts)
}

func (e *testEnv) workspaceCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.workDir)
	if err != nil {
		t.Fatal(err)
	}
	return len(entries)
}

func videoRequest(text string) VideoRequest {
	return VideoRequest{Title: "Test video", Script: text, BackgroundColor: "#1f2937"}
}

func TestGenerateThreeParagraphs(t *testing.T) {
	env := newTestEnv(t, 4)
	recorder := &stateRecorder{}

	composed, err := NewPipeline(env.service()).WithObserver(recorder.observe).Generate(context.Background(), videoRequest(threeParagraphs))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	defer func() { _ = composed.Workspace.Release() }()

	if len(composed.Segments) != 3 || len(composed.Clips) != 3 {
		t.Fatalf("got %d segments and %d clips, want 3", len(composed.Segments), len(composed.Clips))
	}

	var sum float64
	for i, clip := range composed.Clips {
		if clip.Index != i {
			t.Errorf("clip %d has index %d", i, clip.Index)
		}
		want := textDuration(composed.Segments[i])
		if math.Abs(clip.Duration-want) > 0.001 {
			t.Errorf("clip %d duration = %v, want %v", i, clip.Duration, want)
		}
		sum += clip.Duration
	}
	if math.Abs(composed.Duration-sum) > 0.5 {
		t.Errorf("video duration = %v, clips sum to %v", composed.Duration, sum)
	}

	for _, path := range []string{composed.VideoPath, composed.ThumbnailPath} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing output %s: %v", path, err)
		}
	}

	inputs := env.runner.ConcatInputs()
	for i, input := range inputs {
		if want := composed.Workspace.ScenePath(i); input != want {
			t.Errorf("concat input %d = %s, want %s", i, input, want)
		}
	}

	wantStates := []State{StateCreated, StateSegmenting, StateSynthesizing, StateRendering, StateComposing, StateDone}
	if got := recorder.all(); !slices.Equal(got, wantStates) {
		t.Errorf("states = %v, want %v", got, wantStates)
	}
	if composed.Workspace.Released() {
		t.Error("workspace released on success")
	}
}

func TestGenerateKeepsOrderUnderReversedLatency(t *testing.T) {
	env := newTestEnv(t, 4)
	env.runner.Latency = func(stage string, args []string) time.Duration {
		if stage != videotest.StageRender {
			return 0
		}
		out := filepath.Base(args[len(args)-1])
		switch {
		case strings.Contains(out, "000"):
			return 60 * time.Millisecond
		case strings.Contains(out, "001"):
			return 30 * time.Millisecond
		}
		return 0
	}

	composed, err := NewPipeline(env.service()).Generate(context.Background(), videoRequest(threeParagraphs))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	defer func() { _ = composed.Workspace.Release() }()

	if !strings.HasPrefix(composed.Segments[0], "The first") || !strings.HasPrefix(composed.Segments[2], "The third") {
		t.Errorf("segments out of order: %q", composed.Segments)
	}
	inputs := env.runner.ConcatInputs()
	if len(inputs) != 3 {
		t.Fatalf("concat inputs = %v", inputs)
	}
	for i, input := range inputs {
		if input != composed.Workspace.ScenePath(i) {
			t.Errorf("concat input %d = %s", i, input)
		}
	}
}

func TestGenerateFailures(t *testing.T) {
	permanent := &speech.SynthesisError{Kind: speech.Permanent, StatusCode: 400, Err: errors.New("bad request")}

	tests := []struct {
		name      string
		script    string
		setup     func(env *testEnv)
		wantStage State
		wantKind  string
		check     func(t *testing.T, env *testEnv, err error)
	}{
		{
			name:      "emptyScript",
			script:    strings.Repeat(" \n\n ", 20),
			wantStage: StateSegmenting,
			wantKind:  "empty_script",
		},
		{
			name:   "permanentSynthesisFailure",
			script: threeParagraphs,
			setup: func(env *testEnv) {
				env.provider.err = permanent
			},
			wantStage: StateSynthesizing,
			wantKind:  "synthesis",
			check: func(t *testing.T, env *testEnv, err error) {
				var synthErr *speech.SynthesisError
				if !errors.As(err, &synthErr) || !synthErr.Permanent() {
					t.Errorf("error = %v, want permanent SynthesisError", err)
				}
				if got := env.provider.calls.Load(); got != 1 {
					t.Errorf("provider calls = %d, want 1", got)
				}
			},
		},
		{
			name:   "renderFailure",
			script: threeParagraphs,
			setup: func(env *testEnv) {
				env.runner.FailStage(videotest.StageRender, "No such filter: 'ass'")
			},
			wantStage: StateRendering,
			wantKind:  "composition",
		},
		{
			name:   "concatFailure",
			script: threeParagraphs,
			setup: func(env *testEnv) {
				env.runner.FailStage(videotest.StageConcat, "Invalid data found when processing input")
			},
			wantStage: StateComposing,
			wantKind:  "composition",
			check: func(t *testing.T, env *testEnv, err error) {
				var compErr *video.CompositionError
				if !errors.As(err, &compErr) || compErr.Stage != video.StageConcat {
					t.Errorf("error = %v, want concat CompositionError", err)
				}
			},
		},
		{
			name:   "durationMismatch",
			script: threeParagraphs,
			setup: func(env *testEnv) {
				env.opts.Prober = &skewProber{inner: env.opts.Prober, skew: 2}
			},
			wantStage: StateComposing,
			wantKind:  "composition",
			check: func(t *testing.T, env *testEnv, err error) {
				var compErr *video.CompositionError
				if !errors.As(err, &compErr) || compErr.Stage != video.StageVerify {
					t.Errorf("error = %v, want verify CompositionError", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 1)
			if tt.setup != nil {
				tt.setup(env)
			}
			recorder := &stateRecorder{}

			composed, err := NewPipeline(env.service()).WithObserver(recorder.observe).Generate(context.Background(), videoRequest(tt.script))
			if err == nil {
				_ = composed.Workspace.Release()
				t.Fatal("Generate() error = nil")
			}

			var stageErr *StageError
			if !errors.As(err, &stageErr) || stageErr.Stage != tt.wantStage {
				t.Errorf("error = %v, want StageError at %s", err, tt.wantStage)
			}
			if got := Kind(err); got != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", got, tt.wantKind)
			}
			if n := env.workspaceCount(t); n != 0 {
				t.Errorf("%d workspace directories left behind", n)
			}
			if states := recorder.all(); states[len(states)-1] != StateFailed {
				t.Errorf("final state = %s, want failed", states[len(states)-1])
			}
			if tt.check != nil {
				tt.check(t, env, err)
			}
		})
	}
}

func TestGenerateRejectsInvalidRequest(t *testing.T) {
	env := newTestEnv(t, 1)
	req := videoRequest(threeParagraphs)
	req.BackgroundColor = "red"

	_, err := NewPipeline(env.service()).Generate(context.Background(), req)

	if Kind(err) != "validation" {
		t.Errorf("Kind() = %q, want validation (err %v)", Kind(err), err)
	}
	if n := env.workspaceCount(t); n != 0 {
		t.Errorf("%d workspace directories created", n)
	}
	if env.provider.calls.Load() != 0 {
		t.Error("provider called for an invalid request")
	}
}
