package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"scriptcast/internal/distribution/youtube"
	"scriptcast/internal/script"
	"scriptcast/internal/speech"
	"scriptcast/internal/video"
	"scriptcast/internal/workspace"
)

func TestVideoRequestValidate(t *testing.T) {
	valid := VideoRequest{Title: "Title", Script: strings.Repeat("a", 50), BackgroundColor: "#A0b1C2"}

	tests := []struct {
		name      string
		modify    func(r *VideoRequest)
		wantField string
	}{
		{name: "valid", modify: func(r *VideoRequest) {}},
		{name: "shortTitle", modify: func(r *VideoRequest) { r.Title = "ab" }, wantField: "title"},
		{name: "longTitle", modify: func(r *VideoRequest) { r.Title = strings.Repeat("t", 121) }, wantField: "title"},
		{name: "shortScript", modify: func(r *VideoRequest) { r.Script = strings.Repeat("s", 49) }, wantField: "script"},
		{name: "longScript", modify: func(r *VideoRequest) { r.Script = strings.Repeat("s", 8001) }, wantField: "script"},
		{name: "multibyteScriptCountsRunes", modify: func(r *VideoRequest) { r.Script = strings.Repeat("é", 50) }},
		{name: "longLanguage", modify: func(r *VideoRequest) { r.LanguageCode = "abcdefghi" }, wantField: "languageCode"},
		{name: "colorWithoutHash", modify: func(r *VideoRequest) { r.BackgroundColor = "A0B1C2" }, wantField: "backgroundColor"},
		{name: "shortColor", modify: func(r *VideoRequest) { r.BackgroundColor = "#FFF" }, wantField: "backgroundColor"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.modify(&req)
			err := req.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				if req.LanguageCode != "en" && tt.name == "valid" {
					t.Errorf("LanguageCode = %q, want en", req.LanguageCode)
				}
				return
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) || validationErr.Field != tt.wantField {
				t.Errorf("Validate() error = %v, want field %s", err, tt.wantField)
			}
		})
	}
}

func TestUploadMetadataValidate(t *testing.T) {
	tooMany := make([]string, 31)
	for i := range tooMany {
		tooMany[i] = fmt.Sprintf("tag%d", i)
	}

	tests := []struct {
		name      string
		modify    func(m *UploadMetadata)
		wantField string
	}{
		{name: "valid", modify: func(m *UploadMetadata) {}},
		{name: "shortDescription", modify: func(m *UploadMetadata) { m.Description = "too short" }, wantField: "description"},
		{name: "tooManyTags", modify: func(m *UploadMetadata) { m.Tags = tooMany }, wantField: "tags"},
		{name: "tooManyKeywords", modify: func(m *UploadMetadata) { m.Keywords = tooMany }, wantField: "keywords"},
		{name: "badPrivacy", modify: func(m *UploadMetadata) { m.Privacy = "secret" }, wantField: "privacyStatus"},
		{name: "emptyPrivacy", modify: func(m *UploadMetadata) { m.Privacy = "" }, wantField: "privacyStatus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta := uploadMetadata()
			tt.modify(meta)
			err := meta.Validate()

			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v", err)
				}
				if meta.Tags[0] != "go" {
					t.Errorf("tags not trimmed: %q", meta.Tags)
				}
				return
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) || validationErr.Field != tt.wantField {
				t.Errorf("Validate() error = %v, want field %s", err, tt.wantField)
			}
		})
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&ValidationError{Field: "title"}, "validation"},
		{&StageError{Stage: StateSegmenting, Err: &script.EmptyScriptError{}}, "empty_script"},
		{fmt.Errorf("scene 2: %w", &speech.SynthesisError{Kind: speech.Transient, Err: errors.New("503")}), "synthesis"},
		{&video.ProbeError{Path: "a.mp3", Err: errors.New("exit 1")}, "probe"},
		{&video.CompositionError{Stage: video.StageMux, Err: errors.New("exit 1")}, "composition"},
		{&youtube.AuthError{Err: errors.New("401")}, "auth"},
		{&youtube.QuotaError{Err: errors.New("429")}, "quota"},
		{&youtube.UploadError{Op: "upload", Err: errors.New("500")}, "upload"},
		{&workspace.CleanupError{Dir: "/tmp/x", Err: errors.New("busy")}, "cleanup"},
		{fmt.Errorf("wrapped: %w", context.Canceled), "canceled"},
		{errors.New("boom"), "internal"},
	}

	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
