package video

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"scriptcast/internal/workspace"
)

const (
	defaultFFmpeg = "ffmpeg"
	defaultWidth  = 1920
	defaultHeight = 1080
	defaultFPS    = 30
)

var hexColorRegex = regexp.MustCompile(`^#?[0-9a-fA-F]{6}$`)

type VisualAsset struct {
	Index       int
	Path        string
	CaptionPath string
	Color       string
	Duration    float64
}

type RendererOptions struct {
	Width    int
	Height   int
	FPS      int
	Captions *CaptionGenerator
}

// Renderer draws one slide per scene: a solid background in the requested
// color with the scene text captioned on top, lasting exactly the scene's
// audio duration.
type Renderer struct {
	runner   Runner
	ffmpeg   string
	width    int
	height   int
	fps      int
	captions *CaptionGenerator
}

func NewRenderer(runner Runner, opts RendererOptions) *Renderer {
	r := &Renderer{
		runner:   runner,
		ffmpeg:   defaultFFmpeg,
		width:    opts.Width,
		height:   opts.Height,
		fps:      opts.FPS,
		captions: opts.Captions,
	}
	if r.width <= 0 || r.height <= 0 {
		r.width, r.height = defaultWidth, defaultHeight
	}
	if r.fps <= 0 {
		r.fps = defaultFPS
	}
	if r.captions == nil {
		r.captions = NewCaptionGenerator(CaptionOptions{})
	}
	return r
}

func (r *Renderer) Render(ctx context.Context, ws *workspace.Workspace, index int, text, color string, duration float64) (*VisualAsset, error) {
	if !hexColorRegex.MatchString(color) {
		return nil, fmt.Errorf("invalid background color %q", color)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("scene %d: non-positive duration %.3f", index, duration)
	}

	captionPath := ws.CaptionPath(index)
	pages := r.captions.Pages(text, duration)
	if err := os.WriteFile(captionPath, []byte(r.captions.ToASS(pages, r.width, r.height)), 0644); err != nil {
		return nil, fmt.Errorf("write caption: %w", err)
	}

	outputPath := ws.VisualPath(index)
	seconds := formatSeconds(duration)
	args := []string{
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=0x%s:s=%dx%d:r=%d:d=%s", strings.TrimPrefix(color, "#"), r.width, r.height, r.fps, seconds),
		"-vf", "ass=" + escapeFilterPath(captionPath),
		"-t", seconds,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprint(r.fps),
		"-an",
		outputPath,
	}

	slog.Debug("Rendering scene", "index", index, "duration", seconds)
	if out, err := r.runner.Run(ctx, r.ffmpeg, args...); err != nil {
		_ = os.Remove(outputPath)
		return nil, &CompositionError{Stage: StageRender, Scene: index, Output: stderrOf(out, err), Err: err}
	}

	return &VisualAsset{
		Index:       index,
		Path:        outputPath,
		CaptionPath: captionPath,
		Color:       "#" + strings.ToUpper(strings.TrimPrefix(color, "#")),
		Duration:    duration,
	}, nil
}

func formatSeconds(d float64) string {
	return fmt.Sprintf("%.3f", d)
}

// escapeFilterPath escapes a path for use as a filter option value inside a
// filtergraph.
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `/`)
	for _, ch := range []string{`:`, `'`} {
		path = strings.ReplaceAll(path, ch, `\`+ch)
	}
	for _, ch := range []string{`\`, `,`, `;`, `[`, `]`} {
		path = strings.ReplaceAll(path, ch, `\`+ch)
	}
	return path
}
