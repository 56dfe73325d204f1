package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"scriptcast/internal/workspace"
)

const (
	StageRender    = "render"
	StageMux       = "mux"
	StageConcat    = "concat"
	StageThumbnail = "thumbnail"
	StageVerify    = "verify"

	defaultMuxConcurrency = 2
)

type CompositionError struct {
	Stage  string
	Scene  int
	Output string
	Err    error
}

func (e *CompositionError) Error() string {
	msg := fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
	if e.Stage == StageRender || e.Stage == StageMux {
		msg = fmt.Sprintf("%s scene %d failed: %v", e.Stage, e.Scene, e.Err)
	}
	if e.Output != "" && !strings.Contains(e.Err.Error(), e.Output) {
		msg += ": " + e.Output
	}
	return msg
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// ScenePair is a rendered visual and its narration, ready to be muxed.
type ScenePair struct {
	Index     int
	Visual    *VisualAsset
	AudioPath string
	Duration  float64
}

type Composition struct {
	VideoPath     string
	ThumbnailPath string
	ScenePaths    []string
	Duration      float64
}

type Composer struct {
	runner      Runner
	ffmpeg      string
	concurrency int
}

func NewComposer(runner Runner, concurrency int) *Composer {
	if concurrency <= 0 {
		concurrency = defaultMuxConcurrency
	}
	return &Composer{runner: runner, ffmpeg: defaultFFmpeg, concurrency: concurrency}
}

// Compose muxes each pair into a scene clip, concatenates the clips in the
// given order and extracts a thumbnail. The final video and thumbnail paths
// exist only if every step succeeded.
func (c *Composer) Compose(ctx context.Context, ws *workspace.Workspace, pairs []ScenePair) (*Composition, error) {
	if len(pairs) == 0 {
		return nil, &CompositionError{Stage: StageConcat, Err: errors.New("no scenes to compose")}
	}

	scenePaths, err := c.muxAll(ctx, ws, pairs)
	if err != nil {
		return nil, err
	}

	videoPath := ws.VideoPath()
	if err := c.concat(ctx, ws, scenePaths, videoPath); err != nil {
		return nil, err
	}

	thumbnailPath := ws.ThumbnailPath()
	if err := c.thumbnail(ctx, videoPath, thumbnailPath, pairs[0].Duration/2); err != nil {
		_ = os.Remove(videoPath)
		return nil, err
	}

	var total float64
	for _, p := range pairs {
		total += p.Duration
	}

	return &Composition{
		VideoPath:     videoPath,
		ThumbnailPath: thumbnailPath,
		ScenePaths:    scenePaths,
		Duration:      total,
	}, nil
}

func (c *Composer) muxAll(ctx context.Context, ws *workspace.Workspace, pairs []ScenePair) ([]string, error) {
	scenePaths := make([]string, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, pair := range pairs {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			path, err := c.mux(ctx, ws, pair)
			if err != nil {
				return err
			}
			scenePaths[i] = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scenePaths, nil
}

func (c *Composer) mux(ctx context.Context, ws *workspace.Workspace, pair ScenePair) (string, error) {
	outputPath := ws.ScenePath(pair.Index)
	args := []string{
		"-y",
		"-i", pair.Visual.Path,
		"-i", pair.AudioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", "44100",
		"-ac", "2",
		"-t", formatSeconds(pair.Duration),
		"-movflags", "+faststart",
		outputPath,
	}

	slog.Debug("Muxing scene", "index", pair.Index)
	if out, err := c.runner.Run(ctx, c.ffmpeg, args...); err != nil {
		_ = os.Remove(outputPath)
		return "", &CompositionError{Stage: StageMux, Scene: pair.Index, Output: stderrOf(out, err), Err: err}
	}
	return outputPath, nil
}

func (c *Composer) concat(ctx context.Context, ws *workspace.Workspace, scenePaths []string, videoPath string) error {
	var list strings.Builder
	for _, p := range scenePaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return &CompositionError{Stage: StageConcat, Err: fmt.Errorf("resolve %s: %w", p, err)}
		}
		fmt.Fprintf(&list, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}

	listPath := ws.Path("concat.txt")
	if err := os.WriteFile(listPath, []byte(list.String()), 0644); err != nil {
		return &CompositionError{Stage: StageConcat, Err: fmt.Errorf("write concat list: %w", err)}
	}

	partialPath := ws.Path("video.partial.mp4")
	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-movflags", "+faststart",
		partialPath,
	}

	slog.Debug("Concatenating scenes", "count", len(scenePaths))
	if out, err := c.runner.Run(ctx, c.ffmpeg, args...); err != nil {
		_ = os.Remove(partialPath)
		return &CompositionError{Stage: StageConcat, Output: stderrOf(out, err), Err: err}
	}

	if err := os.Rename(partialPath, videoPath); err != nil {
		_ = os.Remove(partialPath)
		return &CompositionError{Stage: StageConcat, Err: fmt.Errorf("finalize video: %w", err)}
	}
	return nil
}

func (c *Composer) thumbnail(ctx context.Context, videoPath, thumbnailPath string, at float64) error {
	partialPath := strings.TrimSuffix(thumbnailPath, filepath.Ext(thumbnailPath)) + ".partial.jpg"
	args := []string{
		"-y",
		"-ss", formatSeconds(at),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		partialPath,
	}

	if out, err := c.runner.Run(ctx, c.ffmpeg, args...); err != nil {
		_ = os.Remove(partialPath)
		return &CompositionError{Stage: StageThumbnail, Output: stderrOf(out, err), Err: err}
	}

	if err := os.Rename(partialPath, thumbnailPath); err != nil {
		_ = os.Remove(partialPath)
		return &CompositionError{Stage: StageThumbnail, Err: fmt.Errorf("finalize thumbnail: %w", err)}
	}
	return nil
}

func stderrOf(out *Output, err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Stderr != "" {
		return exitErr.Stderr
	}
	if out != nil {
		return tail(string(out.Stderr), stderrTailBytes)
	}
	return ""
}
