package distribution

import "context"

const (
	PrivacyPublic   = "public"
	PrivacyUnlisted = "unlisted"
	PrivacyPrivate  = "private"
)

type UploadRequest struct {
	VideoPath     string
	ThumbnailPath string
	Title         string
	Description   string
	Tags          []string
	Keywords      []string
	Privacy       string
	LanguageCode  string

	// Progress, when set, is called after each acknowledged chunk.
	Progress func(sent, total int64)
}

type UploadResponse struct {
	ID       string
	URL      string
	Platform string
}

type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResponse, error)
	Platform() string
}

func ValidPrivacy(privacy string) bool {
	switch privacy {
	case PrivacyPublic, PrivacyUnlisted, PrivacyPrivate:
		return true
	}
	return false
}
