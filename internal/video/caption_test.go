package video

import (
	"math"
	"strings"
	"testing"
)

func TestCaptionPages(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		lineChars int
		perPage   int
		wantPages int
	}{
		{name: "shortText", text: "Hello world", lineChars: 42, perPage: 6, wantPages: 1},
		{name: "emptyText", text: "   ", lineChars: 42, perPage: 6, wantPages: 0},
		{name: "wrapsIntoThreePages", text: strings.Repeat("word ", 30), lineChars: 10, perPage: 5, wantPages: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := NewCaptionGenerator(CaptionOptions{LineChars: tt.lineChars, LinesPerPage: tt.perPage})
			pages := gen.Pages(tt.text, 9.0)

			if len(pages) != tt.wantPages {
				t.Fatalf("Pages() returned %d pages, want %d", len(pages), tt.wantPages)
			}
			if len(pages) == 0 {
				return
			}
			if pages[0].Start != 0 {
				t.Errorf("first page starts at %v, want 0", pages[0].Start)
			}
			if pages[len(pages)-1].End != 9.0 {
				t.Errorf("last page ends at %v, want 9", pages[len(pages)-1].End)
			}
			for i := 1; i < len(pages); i++ {
				if math.Abs(pages[i].Start-pages[i-1].End) > 1e-9 {
					t.Errorf("gap between page %d and %d", i-1, i)
				}
			}
			for _, page := range pages {
				for _, line := range page.Lines {
					if len(line) > tt.lineChars {
						t.Errorf("line %q longer than %d", line, tt.lineChars)
					}
				}
			}
		})
	}
}

func TestCaptionToASS(t *testing.T) {
	gen := NewCaptionGenerator(CaptionOptions{FontName: "Arial", FontSize: 50, PrimaryColor: "#FF8800", Bold: true})
	pages := []CaptionPage{{Lines: []string{"Hello {world}", "second line"}, Start: 0, End: 2.5}}

	ass := gen.ToASS(pages, 1280, 720)

	wants := []string{
		"PlayResX: 1280",
		"PlayResY: 720",
		"Style: Caption,Arial,50,&H000088FF,",
		",-1,0,0,0,",
		`Dialogue: 0,0:00:00.00,0:00:02.50,Caption,,0,0,0,,{\fad(300,300)}Hello \{world\}\Nsecond line`,
	}
	for _, want := range wants {
		if !strings.Contains(ass, want) {
			t.Errorf("ToASS() missing %q\n%s", want, ass)
		}
	}
}

func TestToASSColor(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"#FFFFFF", "&H00FFFFFF"},
		{"FF0000", "&H000000FF"},
		{"#00FF00", "&H0000FF00"},
		{"&H00123456", "&H00123456"},
		{"bad", "&H00FFFFFF"},
	}

	for _, tt := range tests {
		if got := toASSColor(tt.input); got != tt.want {
			t.Errorf("toASSColor(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatASSTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00:00.00"},
		{1.5, "0:00:01.50"},
		{61.25, "0:01:01.25"},
		{3723.999, "1:02:04.00"},
	}

	for _, tt := range tests {
		if got := formatASSTime(tt.seconds); got != tt.want {
			t.Errorf("formatASSTime(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestEscapeFilterPath(t *testing.T) {
	got := escapeFilterPath("/tmp/run: a,b/scene_000.ass")
	want := `/tmp/run\\: a\,b/scene_000.ass`
	if got != want {
		t.Errorf("escapeFilterPath() = %q, want %q", got, want)
	}
}
