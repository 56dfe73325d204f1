package app

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"scriptcast/internal/distribution"
)

const (
	defaultLanguageCode = "en"
	maxTags             = 30
)

var backgroundColorRegex = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

type VideoRequest struct {
	Title           string
	Script          string
	LanguageCode    string
	BackgroundColor string
}

type UploadMetadata struct {
	Title        string
	Description  string
	Tags         []string
	Keywords     []string
	Privacy      string
	LanguageCode string

	Progress func(sent, total int64)
}

// Validate checks field bounds and fills the default language.
func (r *VideoRequest) Validate() error {
	if r.LanguageCode == "" {
		r.LanguageCode = defaultLanguageCode
	}
	if err := checkLength("title", r.Title, 3, 120); err != nil {
		return err
	}
	if err := checkLength("script", r.Script, 50, 8000); err != nil {
		return err
	}
	if err := checkLength("languageCode", r.LanguageCode, 2, 8); err != nil {
		return err
	}
	if !backgroundColorRegex.MatchString(r.BackgroundColor) {
		return &ValidationError{Field: "backgroundColor", Reason: "must be #RRGGBB"}
	}
	return nil
}

// Validate checks field bounds, trims tags and keywords and fills the
// default language.
func (m *UploadMetadata) Validate() error {
	if m.LanguageCode == "" {
		m.LanguageCode = defaultLanguageCode
	}
	if err := checkLength("title", m.Title, 3, 120); err != nil {
		return err
	}
	if err := checkLength("description", m.Description, 20, 5000); err != nil {
		return err
	}
	if err := checkLength("languageCode", m.LanguageCode, 2, 8); err != nil {
		return err
	}
	if len(m.Tags) > maxTags {
		return &ValidationError{Field: "tags", Reason: fmt.Sprintf("at most %d allowed", maxTags)}
	}
	if len(m.Keywords) > maxTags {
		return &ValidationError{Field: "keywords", Reason: fmt.Sprintf("at most %d allowed", maxTags)}
	}
	if !distribution.ValidPrivacy(m.Privacy) {
		return &ValidationError{Field: "privacyStatus", Reason: "must be public, unlisted or private"}
	}

	m.Tags = lo.Map(m.Tags, func(tag string, _ int) string { return strings.TrimSpace(tag) })
	m.Keywords = lo.Map(m.Keywords, func(kw string, _ int) string { return strings.TrimSpace(kw) })
	return nil
}

func checkLength(field, value string, minLen, maxLen int) error {
	n := utf8.RuneCountInString(value)
	if n < minLen || n > maxLen {
		return &ValidationError{Field: field, Reason: fmt.Sprintf("must be %d-%d characters, got %d", minLen, maxLen, n)}
	}
	return nil
}
