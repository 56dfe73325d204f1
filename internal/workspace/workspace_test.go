package workspace

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewCreatesLayout(t *testing.T) {
	base := t.TempDir()

	ws, err := New(base, "My First Video!")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if filepath.Dir(ws.Dir()) != base {
		t.Errorf("Dir() = %s, want under %s", ws.Dir(), base)
	}
	if !strings.Contains(filepath.Base(ws.Dir()), "my_first_video") {
		t.Errorf("Dir() = %s, want sanitized label", ws.Dir())
	}
	if !strings.HasSuffix(ws.Dir(), ws.ID()) {
		t.Errorf("Dir() = %s, want id suffix %s", ws.Dir(), ws.ID())
	}
	for _, sub := range []string{AudioDir, VisualDir, SceneDir} {
		if info, err := os.Stat(ws.Path(sub)); err != nil || !info.IsDir() {
			t.Errorf("missing subdirectory %s", sub)
		}
	}
}

func TestNewIsUnique(t *testing.T) {
	base := t.TempDir()

	a, err := New(base, "same")
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(base, "same")
	if err != nil {
		t.Fatal(err)
	}

	if a.Dir() == b.Dir() {
		t.Errorf("two workspaces share %s", a.Dir())
	}
}

func TestScenePaths(t *testing.T) {
	ws, err := New(t.TempDir(), "")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"audio", ws.AudioPath(3, ".mp3"), filepath.Join(ws.Dir(), "audio", "scene_003.mp3")},
		{"visual", ws.VisualPath(12), filepath.Join(ws.Dir(), "visual", "scene_012.mp4")},
		{"caption", ws.CaptionPath(0), filepath.Join(ws.Dir(), "visual", "scene_000.ass")},
		{"scene", ws.ScenePath(7), filepath.Join(ws.Dir(), "scenes", "scene_007.mp4")},
		{"video", ws.VideoPath(), filepath.Join(ws.Dir(), "video.mp4")},
		{"thumbnail", ws.ThumbnailPath(), filepath.Join(ws.Dir(), "thumbnail.jpg")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %s, want %s", tt.got, tt.want)
			}
		})
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ws, err := New(t.TempDir(), "cleanup")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ws.AudioPath(0, ".mp3"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := ws.Release(); err != nil {
		t.Fatalf("first Release() error = %v", err)
	}
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Errorf("workspace still exists after Release()")
	}
	if err := ws.Release(); err != nil {
		t.Errorf("second Release() error = %v, want nil", err)
	}
	if !ws.Released() {
		t.Error("Released() = false after Release()")
	}
}

func TestSanitizeForPath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Hello World", "hello_world"},
		{"  --Weird__Name!!  ", "--weird__name"},
		{"!!!", ""},
		{strings.Repeat("a", 60), strings.Repeat("a", 40)},
	}

	for _, tt := range tests {
		if got := sanitizeForPath(tt.input); got != tt.want {
			t.Errorf("sanitizeForPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
