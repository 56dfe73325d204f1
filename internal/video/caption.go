package video

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	defaultFontName     = "DejaVu Sans"
	defaultFontSize     = 64
	defaultLineChars    = 42
	defaultLinesPerPage = 6
	captionFadeMillis   = 300
)

type CaptionOptions struct {
	FontName     string
	FontSize     int
	PrimaryColor string
	OutlineColor string
	OutlineSize  int
	ShadowSize   int
	Bold         bool
	LineChars    int
	LinesPerPage int
}

// CaptionPage is one screenful of scene text shown between Start and End.
type CaptionPage struct {
	Lines []string
	Start float64
	End   float64
}

type CaptionGenerator struct {
	fontName     string
	fontSize     int
	primaryColor string
	outlineColor string
	outlineSize  int
	shadowSize   int
	bold         bool
	lineChars    int
	linesPerPage int
}

func NewCaptionGenerator(opts CaptionOptions) *CaptionGenerator {
	g := &CaptionGenerator{
		fontName:     opts.FontName,
		fontSize:     opts.FontSize,
		primaryColor: "&H00FFFFFF",
		outlineColor: "&H00000000",
		outlineSize:  3,
		shadowSize:   1,
		bold:         opts.Bold,
		lineChars:    opts.LineChars,
		linesPerPage: opts.LinesPerPage,
	}
	if g.fontName == "" {
		g.fontName = defaultFontName
	}
	if g.fontSize <= 0 {
		g.fontSize = defaultFontSize
	}
	if opts.PrimaryColor != "" {
		g.primaryColor = toASSColor(opts.PrimaryColor)
	}
	if opts.OutlineColor != "" {
		g.outlineColor = toASSColor(opts.OutlineColor)
	}
	if opts.OutlineSize > 0 {
		g.outlineSize = opts.OutlineSize
	}
	if opts.ShadowSize > 0 {
		g.shadowSize = opts.ShadowSize
	}
	if g.lineChars <= 0 {
		g.lineChars = defaultLineChars
	}
	if g.linesPerPage <= 0 {
		g.linesPerPage = defaultLinesPerPage
	}
	return g
}

// Pages wraps text into lines and groups them into pages. Each page gets a
// share of duration proportional to its character count, and the last page
// ends exactly at duration.
func (g *CaptionGenerator) Pages(text string, duration float64) []CaptionPage {
	lines := wrap(text, g.lineChars)
	if len(lines) == 0 {
		return nil
	}

	var groups [][]string
	for i := 0; i < len(lines); i += g.linesPerPage {
		groups = append(groups, lines[i:min(i+g.linesPerPage, len(lines))])
	}

	total := 0
	weights := make([]int, len(groups))
	for i, group := range groups {
		for _, line := range group {
			weights[i] += utf8.RuneCountInString(line)
		}
		total += weights[i]
	}

	pages := make([]CaptionPage, len(groups))
	start := 0.0
	for i, group := range groups {
		end := start + duration*float64(weights[i])/float64(total)
		if i == len(groups)-1 {
			end = duration
		}
		pages[i] = CaptionPage{Lines: group, Start: start, End: end}
		start = end
	}
	return pages
}

func (g *CaptionGenerator) ToASS(pages []CaptionPage, width, height int) string {
	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	sb.WriteString("WrapStyle: 2\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", width)
	fmt.Fprintf(&sb, "PlayResY: %d\n", height)
	sb.WriteString("\n")

	boldVal := 0
	if g.bold {
		boldVal = -1
	}

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb, "Style: Caption,%s,%d,%s,%s,%s,&H80000000,%d,0,0,0,100,100,0,0,1,%d,%d,5,60,60,60,1\n",
		g.fontName, g.fontSize, g.primaryColor, g.primaryColor, g.outlineColor, boldVal, g.outlineSize, g.shadowSize)
	sb.WriteString("\n")

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, page := range pages {
		escaped := make([]string, len(page.Lines))
		for i, line := range page.Lines {
			escaped[i] = escapeASS(line)
		}
		fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Caption,,0,0,0,,{\\fad(%d,%d)}%s\n",
			formatASSTime(page.Start), formatASSTime(page.End),
			captionFadeMillis, captionFadeMillis, strings.Join(escaped, `\N`))
	}

	return sb.String()
}

func wrap(text string, lineChars int) []string {
	var lines []string
	var current []string
	length := 0

	for _, word := range strings.Fields(text) {
		wordLen := utf8.RuneCountInString(word)
		if len(current) > 0 && length+1+wordLen > lineChars {
			lines = append(lines, strings.Join(current, " "))
			current, length = nil, 0
		}
		if len(current) > 0 {
			length++
		}
		current = append(current, word)
		length += wordLen
	}
	if len(current) > 0 {
		lines = append(lines, strings.Join(current, " "))
	}
	return lines
}

func escapeASS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "{", `\{`)
	return strings.ReplaceAll(s, "}", `\}`)
}

func toASSColor(color string) string {
	if strings.HasPrefix(color, "&H") {
		return color
	}
	color = strings.TrimPrefix(color, "#")
	if len(color) == 6 {
		return fmt.Sprintf("&H00%s%s%s", color[4:6], color[2:4], color[0:2])
	}
	return "&H00FFFFFF"
}

func formatASSTime(seconds float64) string {
	centis := int(seconds*100 + 0.5)
	hours := centis / 360000
	minutes := (centis % 360000) / 6000
	secs := (centis % 6000) / 100
	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centis%100)
}
