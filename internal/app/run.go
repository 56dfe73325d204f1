package app

import (
	"context"
	"errors"
	"log/slog"

	"scriptcast/internal/distribution"
)

type RunResult struct {
	RunID     string
	VideoID   string
	URL       string
	Duration  float64
	Segments  []string
	Archived  []string
	Published bool
}

// Run generates the video and, when meta is non-nil, publishes it. The run's
// workspace is released exactly once before Run returns, whichever step
// failed. Cleanup failures are logged and never replace the result.
func (s *Service) Run(ctx context.Context, req VideoRequest, meta *UploadMetadata, observer Observer) (*RunResult, error) {
	if meta != nil {
		if err := meta.Validate(); err != nil {
			return nil, &StageError{Stage: StateCreated, Err: err}
		}
		if s.uploader == nil {
			return nil, &StageError{Stage: StateCreated, Err: errors.New("no uploader configured")}
		}
	}

	composed, err := NewPipeline(s).WithObserver(observer).Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &RunResult{RunID: composed.Workspace.ID(), Duration: composed.Duration, Segments: composed.Segments}
	defer func() {
		result.Archived = s.archive(ctx, composed)
		if cleanupErr := composed.Workspace.Release(); cleanupErr != nil {
			slog.Warn("Workspace cleanup failed", "error", cleanupErr)
		}
	}()

	if meta == nil {
		return result, nil
	}

	if observer != nil {
		observer(composed.Workspace.ID(), StatePublishing)
	}
	resp, err := s.uploader.Upload(ctx, distribution.UploadRequest{
		VideoPath:     composed.VideoPath,
		ThumbnailPath: composed.ThumbnailPath,
		Title:         meta.Title,
		Description:   meta.Description,
		Tags:          meta.Tags,
		Keywords:      meta.Keywords,
		Privacy:       meta.Privacy,
		LanguageCode:  meta.LanguageCode,
		Progress:      meta.Progress,
	})
	if err != nil {
		return nil, &StageError{Stage: StatePublishing, Err: err}
	}

	slog.Info("Video published", "platform", resp.Platform, "id", resp.ID, "url", resp.URL)
	result.VideoID = resp.ID
	result.URL = resp.URL
	result.Published = true
	return result, nil
}

func (s *Service) archive(ctx context.Context, composed *ComposedVideo) []string {
	if s.archiver == nil {
		return nil
	}
	archived, err := s.archiver.Archive(context.WithoutCancel(ctx), composed.Workspace.ID(), composed.VideoPath, composed.ThumbnailPath)
	if err != nil {
		slog.Warn("Archiving failed", "run", composed.Workspace.ID(), "error", err)
	}
	return archived
}
