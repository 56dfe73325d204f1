package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"scriptcast/internal/video"
	"scriptcast/internal/workspace"
	"scriptcast/pkg/httputil"
)

const defaultConcurrency = 4

type Prober interface {
	Probe(ctx context.Context, path string) (*video.MediaInfo, error)
}

type SynthesizerOptions struct {
	Concurrency       int
	RequestsPerSecond float64
}

// Synthesizer narrates scenes through a Provider with bounded concurrency
// and stores each clip in the run's workspace.
type Synthesizer struct {
	provider    Provider
	prober      Prober
	limiter     *rate.Limiter
	concurrency int
}

func NewSynthesizer(provider Provider, prober Prober, opts SynthesizerOptions) *Synthesizer {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Synthesizer{
		provider:    provider,
		prober:      prober,
		limiter:     rate.NewLimiter(limit, concurrency),
		concurrency: concurrency,
	}
}

// SynthesizeAll returns one clip per text, in input order. When a scene
// fails, scenes already in flight finish, queued scenes are skipped and the
// first failure is returned.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, ws *workspace.Workspace, texts []string, languageCode string) ([]AudioClip, error) {
	clips := make([]AudioClip, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, text := range texts {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			clip, err := s.Synthesize(ctx, ws, i, text, languageCode)
			if err != nil {
				return err
			}
			clips[i] = *clip
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return clips, nil
}

func (s *Synthesizer) Synthesize(ctx context.Context, ws *workspace.Workspace, index int, text, languageCode string) (*AudioClip, error) {
	slog.Info("Synthesizing speech", "scene", index+1, "chars", len(text))

	audio, err := s.provider.Synthesize(ctx, text, languageCode)
	if err != nil {
		return nil, fmt.Errorf("scene %d: %w", index, classify(err))
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("scene %d: %w", index, &SynthesisError{Kind: Transient, Err: errors.New("empty audio stream")})
	}

	path := ws.AudioPath(index, DetectAudioFormat(audio))
	if err := os.WriteFile(path, audio, 0644); err != nil {
		return nil, fmt.Errorf("save audio for scene %d: %w", index, err)
	}

	info, err := s.prober.Probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("scene %d: %w", index, err)
	}

	slog.Debug("Speech ready", "scene", index+1, "duration", info.Duration)
	return &AudioClip{Index: index, Path: path, Duration: info.Duration}, nil
}

func classify(err error) error {
	var synthErr *SynthesisError
	if errors.As(err, &synthErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || httputil.IsTransientError(err) {
		return &SynthesisError{Kind: Transient, Err: err}
	}
	return &SynthesisError{Kind: Permanent, Err: err}
}
