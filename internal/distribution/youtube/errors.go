package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"syscall"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"scriptcast/pkg/httputil"
)

var quotaReasons = []string{"quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "dailyLimitExceeded", "uploadLimitExceeded"}

// AuthError means the credentials were rejected or could not be refreshed.
// It is never retried.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("youtube auth: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// QuotaError means the platform kept rejecting requests for rate or quota
// reasons after the retry budget was spent.
type QuotaError struct {
	Reason string
	Err    error
}

func (e *QuotaError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("youtube quota (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("youtube quota: %v", e.Err)
}

func (e *QuotaError) Unwrap() error { return e.Err }

type UploadError struct {
	Op         string
	StatusCode int
	Err        error
	retryable  bool
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("youtube %s: HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("youtube %s: %v", e.Op, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// checkResponse converts a non-2xx, non-308 response into a typed error. It
// consumes the response body.
func checkResponse(op string, resp *http.Response) error {
	err := googleapi.CheckResponse(resp)
	if err == nil {
		return nil
	}
	return classifyAPIError(op, err)
}

func classifyAPIError(op string, err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return &AuthError{Err: err}
	}

	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		if errors.Is(err, context.Canceled) {
			return &UploadError{Op: op, Err: err}
		}
		var urlErr *url.Error
		return &UploadError{Op: op, Err: err, retryable: errors.As(err, &urlErr) || httputil.IsTransientError(err) || isConnectionReset(err)}
	}

	reason := ""
	if len(apiErr.Errors) > 0 {
		reason = apiErr.Errors[0].Reason
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized:
		return &AuthError{Err: err}
	case apiErr.Code == http.StatusTooManyRequests:
		return &QuotaError{Reason: reason, Err: err}
	case apiErr.Code == http.StatusForbidden && slices.Contains(quotaReasons, reason):
		return &QuotaError{Reason: reason, Err: err}
	default:
		return &UploadError{Op: op, StatusCode: apiErr.Code, Err: err, retryable: apiErr.Code >= 500}
	}
}

func isRetryable(err error) bool {
	var quotaErr *QuotaError
	if errors.As(err, &quotaErr) {
		return true
	}
	var uploadErr *UploadError
	return errors.As(err, &uploadErr) && uploadErr.retryable
}

func isConnectionReset(err error) bool {
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) || errors.Is(err, syscall.ECONNRESET)
}
