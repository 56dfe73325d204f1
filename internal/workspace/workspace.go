package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	AudioDir  = "audio"
	VisualDir = "visual"
	SceneDir  = "scenes"

	maxLabelLength = 40
)

var sanitizeRegex = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

type CleanupError struct {
	Dir string
	Err error
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("remove workspace %s: %v", e.Dir, e.Err)
}

func (e *CleanupError) Unwrap() error {
	return e.Err
}

// Workspace is a uniquely named directory that owns every intermediate and
// output file of one pipeline run. Release removes it at most once.
type Workspace struct {
	id  string
	dir string

	once     sync.Once
	mu       sync.Mutex
	released bool
}

func New(baseDir, label string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	id := uuid.NewString()
	name := "run_" + id
	if slug := sanitizeForPath(label); slug != "" {
		name = fmt.Sprintf("run_%s_%s", slug, id)
	}

	ws := &Workspace{id: id, dir: filepath.Join(baseDir, name)}
	for _, sub := range []string{AudioDir, VisualDir, SceneDir} {
		if err := os.MkdirAll(filepath.Join(ws.dir, sub), 0755); err != nil {
			_ = os.RemoveAll(ws.dir)
			return nil, fmt.Errorf("create workspace: %w", err)
		}
	}

	slog.Debug("Workspace created", "dir", ws.dir)
	return ws, nil
}

func (w *Workspace) ID() string  { return w.id }
func (w *Workspace) Dir() string { return w.dir }

func (w *Workspace) Path(elem ...string) string {
	return filepath.Join(append([]string{w.dir}, elem...)...)
}

func (w *Workspace) AudioPath(index int, ext string) string {
	return w.Path(AudioDir, fmt.Sprintf("scene_%03d%s", index, ext))
}

func (w *Workspace) VisualPath(index int) string {
	return w.Path(VisualDir, fmt.Sprintf("scene_%03d.mp4", index))
}

func (w *Workspace) CaptionPath(index int) string {
	return w.Path(VisualDir, fmt.Sprintf("scene_%03d.ass", index))
}

func (w *Workspace) ScenePath(index int) string {
	return w.Path(SceneDir, fmt.Sprintf("scene_%03d.mp4", index))
}

func (w *Workspace) VideoPath() string     { return w.Path("video.mp4") }
func (w *Workspace) ThumbnailPath() string { return w.Path("thumbnail.jpg") }

// Release deletes the workspace directory. Only the first call does any
// work; later calls return nil.
func (w *Workspace) Release() error {
	var err error
	w.once.Do(func() {
		w.mu.Lock()
		w.released = true
		w.mu.Unlock()

		if removeErr := os.RemoveAll(w.dir); removeErr != nil {
			err = &CleanupError{Dir: w.dir, Err: removeErr}
			return
		}
		slog.Debug("Workspace released", "dir", w.dir)
	})
	return err
}

func (w *Workspace) Released() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.released
}

func sanitizeForPath(s string) string {
	s = strings.ToLower(s)
	s = sanitizeRegex.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxLabelLength {
		s = strings.TrimRight(s[:maxLabelLength], "_")
	}
	return s
}
