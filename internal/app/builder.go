package app

import (
	"context"
	"errors"
	"log/slog"

	"scriptcast/internal/distribution/youtube"
	"scriptcast/internal/speech"
	"scriptcast/internal/speech/googletts"
	"scriptcast/internal/storage"
	"scriptcast/internal/video"
	"scriptcast/pkg/config"
	"scriptcast/pkg/httputil"
)

type BuildOptions struct {
	// Offline narrates with silent placeholder audio instead of the TTS
	// endpoint.
	Offline bool
	// Publish requires YouTube credentials.
	Publish bool
}

type BuildResult struct {
	Service *Service
	Auth    *youtube.Auth

	closers []func() error
}

func (r *BuildResult) Close() error {
	var errs []error
	for _, c := range r.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func BuildService(ctx context.Context, cfg *config.Config, opts BuildOptions) (*BuildResult, error) {
	result := &BuildResult{}

	runner := video.NewExecRunner(config.Seconds(cfg.Video.CommandTimeout))
	prober := video.NewProber(runner)

	var provider speech.Provider
	if opts.Offline || cfg.Speech.Provider == "stub" {
		slog.Info("Using offline narration")
		provider = speech.NewStubProvider(cfg.Speech.WordsPerMinute)
	} else {
		provider = googletts.NewClient(googletts.Config{
			BaseURL: cfg.Speech.BaseURL,
			Timeout: config.Seconds(cfg.Speech.Timeout),
			Retry:   httputil.RetryConfig{MaxRetries: cfg.Speech.MaxRetries},
			Slow:    cfg.Speech.Slow,
		})
	}

	synthesizer := speech.NewSynthesizer(provider, prober, speech.SynthesizerOptions{
		Concurrency:       cfg.Speech.Concurrency,
		RequestsPerSecond: cfg.Speech.RequestsPerSecond,
	})

	captions := video.NewCaptionGenerator(video.CaptionOptions{
		FontName:     cfg.Captions.FontName,
		FontSize:     cfg.Captions.FontSize,
		PrimaryColor: cfg.Captions.PrimaryColor,
		OutlineColor: cfg.Captions.OutlineColor,
		OutlineSize:  cfg.Captions.OutlineSize,
		ShadowSize:   cfg.Captions.ShadowSize,
		Bold:         cfg.Captions.Bold,
		LineChars:    cfg.Captions.LineChars,
		LinesPerPage: cfg.Captions.LinesPerPage,
	})

	renderer := video.NewRenderer(runner, video.RendererOptions{
		Width:    cfg.Video.Width,
		Height:   cfg.Video.Height,
		FPS:      cfg.Video.FPS,
		Captions: captions,
	})

	var uploader *youtube.Client
	if cfg.GoogleClientID != "" && cfg.GoogleClientSecret != "" {
		result.Auth = youtube.NewAuth(youtube.Credentials{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURI,
			RefreshToken: cfg.GoogleRefreshToken,
			TokenPath:    cfg.YouTubeTokenPath,
		})
		uploader = youtube.NewClient(result.Auth, youtube.Options{
			CategoryID:   cfg.YouTube.CategoryID,
			ChunkSize:    int64(cfg.YouTube.ChunkSizeMB) << 20,
			MaxRetries:   cfg.YouTube.MaxRetries,
			ChunkTimeout: config.Seconds(cfg.YouTube.ChunkTimeout),
			PollInterval: config.Seconds(cfg.YouTube.PollInterval),
			PollTimeout:  config.Seconds(cfg.YouTube.PollTimeout),
		})
	} else if opts.Publish {
		return nil, errors.New("YouTube credentials missing: set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET or run 'scriptcast auth youtube'")
	}

	archiver, err := buildArchiver(ctx, cfg, result)
	if err != nil {
		return nil, err
	}

	serviceOpts := ServiceOptions{
		WorkDir:           cfg.Video.WorkDir,
		MaxSegmentChars:   cfg.Video.MaxSegmentChars,
		RenderParallelism: cfg.Video.RenderParallelism,
		DurationTolerance: cfg.Video.DurationTolerance,
		Synthesizer:       synthesizer,
		Renderer:          renderer,
		Composer:          video.NewComposer(runner, cfg.Video.MuxParallelism),
		Prober:            prober,
		Archiver:          archiver,
	}
	if uploader != nil {
		serviceOpts.Uploader = uploader
	}
	result.Service = NewService(serviceOpts)

	return result, nil
}

func buildArchiver(ctx context.Context, cfg *config.Config, result *BuildResult) (storage.Archiver, error) {
	if !cfg.Archive.Enabled {
		return nil, nil
	}
	archiver, closer, err := OpenArchive(ctx, cfg)
	if err != nil {
		return nil, err
	}
	result.closers = append(result.closers, closer)
	return archiver, nil
}

// OpenArchive returns the GCS archiver when a bucket is configured and the
// local directory archiver otherwise. The returned func releases it.
func OpenArchive(ctx context.Context, cfg *config.Config) (storage.Archiver, func() error, error) {
	if cfg.Archive.Bucket == "" {
		return storage.NewLocalArchiver(cfg.Archive.Dir), func() error { return nil }, nil
	}

	archiver, err := storage.NewGCSArchiver(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix)
	if err != nil {
		return nil, nil, err
	}
	return archiver, archiver.Close, nil
}
