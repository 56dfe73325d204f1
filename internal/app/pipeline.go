package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"scriptcast/internal/script"
	"scriptcast/internal/speech"
	"scriptcast/internal/video"
	"scriptcast/internal/workspace"
)

// Observer is told about every state a generation enters.
type Observer func(runID string, state State)

type Pipeline struct {
	service  *Service
	observer Observer
}

// ComposedVideo is a finished generation. The caller owns Workspace and
// must release it.
type ComposedVideo struct {
	VideoPath     string
	ThumbnailPath string
	Duration      float64
	Segments      []string
	Clips         []speech.AudioClip
	Workspace     *workspace.Workspace
}

type generation struct {
	ctx      context.Context
	pipeline *Pipeline
	request  VideoRequest
	ws       *workspace.Workspace
	state    State
}

func NewPipeline(service *Service) *Pipeline {
	return &Pipeline{service: service}
}

func (pipeline *Pipeline) WithObserver(observer Observer) *Pipeline {
	pipeline.observer = observer
	return pipeline
}

// Generate turns the request into a narrated video. On failure the
// workspace is already released and the error is a *StageError.
func (pipeline *Pipeline) Generate(ctx context.Context, req VideoRequest) (*ComposedVideo, error) {
	if err := req.Validate(); err != nil {
		return nil, &StageError{Stage: StateCreated, Err: err}
	}

	generation := &generation{ctx: ctx, pipeline: pipeline, request: req}

	ws, err := workspace.New(pipeline.service.workDir, req.Title)
	if err != nil {
		return nil, &StageError{Stage: StateCreated, Err: err}
	}
	generation.ws = ws
	generation.transition(StateCreated)

	start := time.Now()
	result, err := generation.run()
	if err != nil {
		failure := &StageError{Stage: generation.state, Err: err}
		generation.transition(StateFailed)
		if cleanupErr := ws.Release(); cleanupErr != nil {
			slog.Warn("Workspace cleanup failed", "error", cleanupErr)
		}
		return nil, failure
	}

	generation.transition(StateDone)
	slog.Info("Video generated", "run", ws.ID(), "scenes", len(result.Segments), "duration", result.Duration, "elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}

func (generation *generation) transition(state State) {
	generation.state = state
	slog.Debug("Pipeline state", "run", generation.ws.ID(), "state", state)
	if generation.pipeline.observer != nil {
		generation.pipeline.observer(generation.ws.ID(), state)
	}
}

func (generation *generation) run() (*ComposedVideo, error) {
	service := generation.pipeline.service

	generation.transition(StateSegmenting)
	segments, err := script.Segment(generation.request.Script, service.maxSegmentChars)
	if err != nil {
		return nil, err
	}
	slog.Info("Script segmented", "scenes", len(segments))

	generation.transition(StateSynthesizing)
	clips, err := service.synthesizer.SynthesizeAll(generation.ctx, generation.ws, segments, generation.request.LanguageCode)
	if err != nil {
		return nil, err
	}

	generation.transition(StateRendering)
	visuals, err := generation.renderAll(segments, clips)
	if err != nil {
		return nil, err
	}

	generation.transition(StateComposing)
	pairs := lo.Map(clips, func(clip speech.AudioClip, i int) video.ScenePair {
		return video.ScenePair{Index: i, Visual: visuals[i], AudioPath: clip.Path, Duration: clip.Duration}
	})
	composition, err := service.composer.Compose(generation.ctx, generation.ws, pairs)
	if err != nil {
		return nil, err
	}

	duration, err := generation.verify(composition.VideoPath, clips)
	if err != nil {
		return nil, err
	}

	return &ComposedVideo{
		VideoPath:     composition.VideoPath,
		ThumbnailPath: composition.ThumbnailPath,
		Duration:      duration,
		Segments:      segments,
		Clips:         clips,
		Workspace:     generation.ws,
	}, nil
}

// renderAll renders one visual per clip, each lasting its clip's measured
// duration. Results keep scene order regardless of completion order.
func (generation *generation) renderAll(segments []string, clips []speech.AudioClip) ([]*video.VisualAsset, error) {
	service := generation.pipeline.service
	visuals := make([]*video.VisualAsset, len(clips))

	g, gctx := errgroup.WithContext(generation.ctx)
	g.SetLimit(service.renderParallelism)

	for i, clip := range clips {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			visual, err := service.renderer.Render(generation.ctx, generation.ws, i, segments[i], generation.request.BackgroundColor, clip.Duration)
			if err != nil {
				return err
			}
			visuals[i] = visual
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return visuals, nil
}

// verify probes the final video and checks it against the narration length.
func (generation *generation) verify(videoPath string, clips []speech.AudioClip) (float64, error) {
	service := generation.pipeline.service

	info, err := service.prober.Probe(generation.ctx, videoPath)
	if err != nil {
		return 0, err
	}
	if !info.HasVideo() || !info.HasAudio() {
		return 0, &video.CompositionError{Stage: video.StageVerify, Err: errors.New("final video is missing a video or audio stream")}
	}

	expected := lo.SumBy(clips, func(clip speech.AudioClip) float64 { return clip.Duration })
	if diff := math.Abs(info.Duration - expected); diff > service.tolerance {
		return 0, &video.CompositionError{
			Stage: video.StageVerify,
			Err:   fmt.Errorf("video lasts %.3fs but narration lasts %.3fs (tolerance %.2fs)", info.Duration, expected, service.tolerance),
		}
	}
	return info.Duration, nil
}
