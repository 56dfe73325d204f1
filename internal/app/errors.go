package app

import (
	"context"
	"errors"
	"fmt"

	"scriptcast/internal/distribution/youtube"
	"scriptcast/internal/script"
	"scriptcast/internal/speech"
	"scriptcast/internal/video"
	"scriptcast/internal/workspace"
)

type State string

const (
	StateCreated      State = "created"
	StateSegmenting   State = "segmenting"
	StateSynthesizing State = "synthesizing"
	StateRendering    State = "rendering"
	StateComposing    State = "composing"
	StatePublishing   State = "publishing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// StageError names the state a run was in when it failed.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Kind maps an error to the short category reported to API clients.
func Kind(err error) string {
	var (
		validationErr  *ValidationError
		emptyErr       *script.EmptyScriptError
		synthesisErr   *speech.SynthesisError
		compositionErr *video.CompositionError
		probeErr       *video.ProbeError
		authErr        *youtube.AuthError
		quotaErr       *youtube.QuotaError
		uploadErr      *youtube.UploadError
		cleanupErr     *workspace.CleanupError
	)

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return "validation"
	case errors.As(err, &emptyErr):
		return "empty_script"
	case errors.As(err, &synthesisErr):
		return "synthesis"
	case errors.As(err, &compositionErr):
		return "composition"
	case errors.As(err, &probeErr):
		return "probe"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &quotaErr):
		return "quota"
	case errors.As(err, &uploadErr):
		return "upload"
	case errors.As(err, &cleanupErr):
		return "cleanup"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
