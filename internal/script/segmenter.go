package script

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const DefaultMaxChars = 1000

type EmptyScriptError struct{}

func (e *EmptyScriptError) Error() string {
	return "script has no non-empty paragraphs"
}

var (
	paragraphBreak = regexp.MustCompile(`\n[ \t]*\n`)
	sentenceEnd    = regexp.MustCompile(`[.!?…]+["')\]]*\s+`)
)

// Segment splits a narration script into ordered scene texts, one per
// blank-line separated paragraph. Paragraphs longer than maxChars runes are
// packed into sentence-aligned chunks no longer than maxChars.
func Segment(text string, maxChars int) ([]string, error) {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var segments []string
	for _, block := range paragraphBreak.Split(text, -1) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		segments = append(segments, splitLong(block, maxChars)...)
	}

	if len(segments) == 0 {
		return nil, &EmptyScriptError{}
	}
	return segments, nil
}

func splitLong(paragraph string, maxChars int) []string {
	if utf8.RuneCountInString(paragraph) <= maxChars {
		return []string{paragraph}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" {
			chunks = append(chunks, s)
		}
		current.Reset()
	}

	for _, sentence := range Sentences(paragraph) {
		if utf8.RuneCountInString(sentence) > maxChars {
			flush()
			chunks = append(chunks, splitWords(sentence, maxChars)...)
			continue
		}
		if current.Len() > 0 && utf8.RuneCountInString(current.String())+1+utf8.RuneCountInString(sentence) > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

// Sentences splits text after terminal punctuation followed by whitespace.
// Each returned sentence is trimmed and non-empty.
func Sentences(text string) []string {
	var sentences []string
	start := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func splitWords(sentence string, maxChars int) []string {
	var chunks []string
	var current []string
	length := 0

	for _, word := range strings.Fields(sentence) {
		for utf8.RuneCountInString(word) > maxChars {
			if len(current) > 0 {
				chunks = append(chunks, strings.Join(current, " "))
				current, length = nil, 0
			}
			runes := []rune(word)
			chunks = append(chunks, string(runes[:maxChars]))
			word = string(runes[maxChars:])
		}
		if word == "" {
			continue
		}

		wordLen := utf8.RuneCountInString(word)
		if len(current) > 0 && length+1+wordLen > maxChars {
			chunks = append(chunks, strings.Join(current, " "))
			current, length = nil, 0
		}
		if len(current) > 0 {
			length++
		}
		current = append(current, word)
		length += wordLen
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}

	return chunks
}
