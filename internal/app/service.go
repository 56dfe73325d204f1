package app

import (
	"context"

	"scriptcast/internal/distribution"
	"scriptcast/internal/speech"
	"scriptcast/internal/storage"
	"scriptcast/internal/video"
)

const defaultDurationTolerance = 0.5

type Prober interface {
	Probe(ctx context.Context, path string) (*video.MediaInfo, error)
}

type Service struct {
	workDir           string
	maxSegmentChars   int
	renderParallelism int
	tolerance         float64
	synthesizer       *speech.Synthesizer
	renderer          *video.Renderer
	composer          *video.Composer
	prober            Prober
	uploader          distribution.Uploader
	archiver          storage.Archiver
}

type ServiceOptions struct {
	WorkDir           string
	MaxSegmentChars   int
	RenderParallelism int
	DurationTolerance float64
	Synthesizer       *speech.Synthesizer
	Renderer          *video.Renderer
	Composer          *video.Composer
	Prober            Prober
	Uploader          distribution.Uploader
	Archiver          storage.Archiver
}

func NewService(opts ServiceOptions) *Service {
	s := &Service{
		workDir:           opts.WorkDir,
		maxSegmentChars:   opts.MaxSegmentChars,
		renderParallelism: opts.RenderParallelism,
		tolerance:         opts.DurationTolerance,
		synthesizer:       opts.Synthesizer,
		renderer:          opts.Renderer,
		composer:          opts.Composer,
		prober:            opts.Prober,
		uploader:          opts.Uploader,
		archiver:          opts.Archiver,
	}
	if s.renderParallelism <= 0 {
		s.renderParallelism = 2
	}
	if s.tolerance <= 0 {
		s.tolerance = defaultDurationTolerance
	}
	return s
}
