package youtube

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"scriptcast/internal/distribution"
	"scriptcast/pkg/httputil"
)

const (
	platform          = "youtube"
	defaultUploadURL  = "https://www.googleapis.com/upload/youtube/v3/videos"
	watchURL          = "https://www.youtube.com/watch?v="
	defaultCategoryID = "22"

	defaultChunkSize    = 8 << 20
	defaultMaxRetries   = 5
	defaultChunkTimeout = 2 * time.Minute
	defaultPollInterval = 10 * time.Second
	defaultPollTimeout  = 15 * time.Minute

	statusResumeIncomplete = 308
)

var _ distribution.Uploader = (*Client)(nil)

var rangeHeaderRegex = regexp.MustCompile(`^bytes=0-(\d+)$`)

type Options struct {
	CategoryID   string
	ChunkSize    int64
	MaxRetries   int
	ChunkTimeout time.Duration
	PollInterval time.Duration
	PollTimeout  time.Duration
	Backoff      httputil.RetryConfig

	// Endpoint overrides the API root, e.g. "https://www.googleapis.com/".
	Endpoint string
	// HTTPClient is the transport under the OAuth2 layer.
	HTTPClient *http.Client
}

type Client struct {
	auth    *Auth
	options Options
}

func NewClient(auth *Auth, opts Options) *Client {
	if opts.CategoryID == "" {
		opts.CategoryID = defaultCategoryID
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = defaultChunkSize
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.ChunkTimeout <= 0 {
		opts.ChunkTimeout = defaultChunkTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.PollTimeout <= 0 {
		opts.PollTimeout = defaultPollTimeout
	}
	opts.Backoff.MaxRetries = opts.MaxRetries
	return &Client{auth: auth, options: opts}
}

func (c *Client) Platform() string { return platform }

// uploadSession is the state of one resumable upload. offset is the number
// of bytes the server has acknowledged and only moves forward on a server
// response.
type uploadSession struct {
	uri    string
	size   int64
	offset int64
}

// Upload publishes the video through a resumable session, attaches the
// thumbnail and waits until the platform reports the video processed with
// the requested privacy.
func (c *Client) Upload(ctx context.Context, req distribution.UploadRequest) (*distribution.UploadResponse, error) {
	if c.options.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.options.HTTPClient)
	}
	httpClient, err := c.auth.Client(ctx)
	if err != nil {
		return nil, err
	}

	serviceOpts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.options.Endpoint != "" {
		serviceOpts = append(serviceOpts, option.WithEndpoint(c.options.Endpoint))
	}
	service, err := youtube.NewService(ctx, serviceOpts...)
	if err != nil {
		return nil, &UploadError{Op: "init", Err: err}
	}

	file, err := os.Open(req.VideoPath)
	if err != nil {
		return nil, &UploadError{Op: "open", Err: err}
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return nil, &UploadError{Op: "open", Err: err}
	}

	slog.Info("Starting YouTube upload", "title", req.Title, "bytes", stat.Size(), "privacy", req.Privacy)
	session, err := c.createSession(ctx, httpClient, c.videoResource(req), stat.Size())
	if err != nil {
		return nil, err
	}

	video, err := c.sendChunks(ctx, httpClient, session, file, req.Progress)
	if err != nil {
		return nil, err
	}
	slog.Info("Video uploaded", "id", video.Id)

	if req.ThumbnailPath != "" {
		if err := c.setThumbnail(ctx, service, video.Id, req.ThumbnailPath); err != nil {
			return nil, err
		}
	}

	if err := c.waitProcessed(ctx, service, video.Id, req.Privacy); err != nil {
		return nil, err
	}

	return &distribution.UploadResponse{
		ID:       video.Id,
		URL:      watchURL + video.Id,
		Platform: platform,
	}, nil
}

func (c *Client) videoResource(req distribution.UploadRequest) *youtube.Video {
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                req.Title,
			Description:          req.Description,
			Tags:                 MergeTags(req.Tags, req.Keywords),
			CategoryId:           c.options.CategoryID,
			DefaultLanguage:      req.LanguageCode,
			DefaultAudioLanguage: req.LanguageCode,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: req.Privacy,
		},
	}
}

// MergeTags appends keywords to tags, dropping exact duplicates.
func MergeTags(tags, keywords []string) []string {
	merged := lo.Uniq(append(append([]string{}, tags...), keywords...))
	return lo.Filter(merged, func(tag string, _ int) bool { return strings.TrimSpace(tag) != "" })
}

func (c *Client) uploadURL() string {
	if c.options.Endpoint == "" {
		return defaultUploadURL
	}
	return strings.TrimRight(c.options.Endpoint, "/") + "/upload/youtube/v3/videos"
}

func (c *Client) createSession(ctx context.Context, httpClient *http.Client, video *youtube.Video, size int64) (*uploadSession, error) {
	body, err := json.Marshal(video)
	if err != nil {
		return nil, &UploadError{Op: "create session", Err: err}
	}

	var session *uploadSession
	err = c.retry(ctx, "create session", func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.options.ChunkTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.uploadURL()+"?uploadType=resumable&part=snippet,status", bytes.NewReader(body))
		if err != nil {
			return &UploadError{Op: "create session", Err: err}
		}
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
		req.Header.Set("X-Upload-Content-Type", "video/mp4")
		req.Header.Set("X-Upload-Content-Length", strconv.FormatInt(size, 10))

		resp, err := httpClient.Do(req)
		if err != nil {
			return classifyAPIError("create session", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if err := checkResponse("create session", resp); err != nil {
			return err
		}
		location := resp.Header.Get("Location")
		if location == "" {
			return &UploadError{Op: "create session", StatusCode: resp.StatusCode, Err: errors.New("no session URI in response")}
		}

		session = &uploadSession{uri: location, size: size}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Debug("Upload session created", "size", size)
	return session, nil
}

// sendChunks uploads from session.offset to the end. After a failed chunk
// the session is queried for the acknowledged offset and the upload
// resumes from there.
func (c *Client) sendChunks(ctx context.Context, httpClient *http.Client, session *uploadSession, file io.ReaderAt, progress func(sent, total int64)) (*youtube.Video, error) {
	failures := 0

	for {
		before := session.offset
		video, err := c.putChunk(ctx, httpClient, session, file)
		if err == nil && video != nil {
			if progress != nil {
				progress(session.size, session.size)
			}
			return video, nil
		}
		if err == nil && session.offset > before {
			failures = 0
			if progress != nil {
				progress(session.offset, session.size)
			}
			continue
		}
		if err == nil {
			failures++
			if failures > c.options.MaxRetries {
				return nil, &UploadError{Op: "upload", StatusCode: statusResumeIncomplete, Err: fmt.Errorf("session stopped acknowledging bytes at offset %d", session.offset)}
			}
			delay := c.options.Backoff.Delay(failures)
			slog.Warn("Upload made no progress, resending chunk", "offset", session.offset, "attempt", failures, "delay", delay)
			if sleepErr := httputil.Sleep(ctx, delay); sleepErr != nil {
				return nil, &UploadError{Op: "upload", Err: sleepErr}
			}
			continue
		}

		if !isRetryable(err) {
			return nil, err
		}
		failures++
		if failures > c.options.MaxRetries {
			return nil, err
		}

		delay := c.options.Backoff.Delay(failures)
		slog.Warn("Upload chunk failed, resuming", "offset", session.offset, "attempt", failures, "delay", delay, "error", err)
		if sleepErr := httputil.Sleep(ctx, delay); sleepErr != nil {
			return nil, &UploadError{Op: "upload", Err: sleepErr}
		}

		video, err = c.querySession(ctx, httpClient, session)
		if err == nil && video != nil {
			return video, nil
		}
		if err != nil && !isRetryable(err) {
			return nil, err
		}
	}
}

func (c *Client) putChunk(ctx context.Context, httpClient *http.Client, session *uploadSession, file io.ReaderAt) (*youtube.Video, error) {
	start := session.offset
	end := min(start+c.options.ChunkSize, session.size)

	callCtx, cancel := context.WithTimeout(ctx, c.options.ChunkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPut, session.uri, io.NewSectionReader(file, start, end-start))
	if err != nil {
		return nil, &UploadError{Op: "upload", Err: err}
	}
	req.ContentLength = end - start
	req.Header.Set("Content-Type", "video/mp4")
	if session.size > 0 {
		req.Header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end-1, session.size))
	}

	slog.Debug("Uploading chunk", "start", start, "end", end, "total", session.size)
	return c.handleSessionResponse(httpClient, req, session)
}

func (c *Client) querySession(ctx context.Context, httpClient *http.Client, session *uploadSession) (*youtube.Video, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.options.ChunkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPut, session.uri, http.NoBody)
	if err != nil {
		return nil, &UploadError{Op: "query session", Err: err}
	}
	req.ContentLength = 0
	req.Header.Set("Content-Range", fmt.Sprintf("bytes */%d", session.size))

	video, err := c.handleSessionResponse(httpClient, req, session)
	if err == nil {
		slog.Debug("Upload session resumed", "offset", session.offset)
	}
	return video, err
}

// handleSessionResponse sends req and applies the server's acknowledgement
// to session. A nil video with nil error means more bytes are expected.
func (c *Client) handleSessionResponse(httpClient *http.Client, req *http.Request, session *uploadSession) (*youtube.Video, error) {
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, classifyAPIError("upload", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var video youtube.Video
		if err := json.NewDecoder(resp.Body).Decode(&video); err != nil {
			return nil, &UploadError{Op: "upload", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode video resource: %w", err)}
		}
		if video.Id == "" {
			return nil, &UploadError{Op: "upload", StatusCode: resp.StatusCode, Err: errors.New("response has no video id")}
		}
		session.offset = session.size
		return &video, nil
	case statusResumeIncomplete:
		offset, err := parseRangeHeader(resp.Header.Get("Range"))
		if err != nil {
			return nil, &UploadError{Op: "upload", StatusCode: resp.StatusCode, Err: err}
		}
		session.offset = offset
		return nil, nil
	default:
		return nil, checkResponse("upload", resp)
	}
}

// parseRangeHeader returns the next byte to send given a "bytes=0-N"
// acknowledgement. A missing header means nothing was persisted.
func parseRangeHeader(header string) (int64, error) {
	if header == "" {
		return 0, nil
	}
	m := rangeHeaderRegex.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return 0, fmt.Errorf("unexpected Range header %q", header)
	}
	last, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse Range header %q: %w", header, err)
	}
	return last + 1, nil
}

func (c *Client) setThumbnail(ctx context.Context, service *youtube.Service, videoID, path string) error {
	return c.retry(ctx, "set thumbnail", func() error {
		file, err := os.Open(path)
		if err != nil {
			return &UploadError{Op: "set thumbnail", Err: err}
		}
		defer func() { _ = file.Close() }()

		if _, err := service.Thumbnails.Set(videoID).Media(file).Context(ctx).Do(); err != nil {
			return classifyAPIError("set thumbnail", err)
		}
		slog.Debug("Thumbnail set", "id", videoID)
		return nil
	})
}

// setPrivacy rewrites the status part of a video with only its privacy
// changed. The update replaces the whole part, so the remaining settings are
// sent back as read and the read-only processing fields are dropped.
func (c *Client) setPrivacy(ctx context.Context, service *youtube.Service, videoID string, current *youtube.VideoStatus, privacy string) error {
	status := youtube.VideoStatus{}
	if current != nil {
		status = *current
	}
	status.PrivacyStatus = privacy
	status.UploadStatus = ""
	status.FailureReason = ""
	status.RejectionReason = ""
	status.ForceSendFields = []string{"Embeddable", "PublicStatsViewable", "SelfDeclaredMadeForKids"}

	return c.retry(ctx, "update privacy", func() error {
		video := &youtube.Video{Id: videoID, Status: &status}
		if _, err := service.Videos.Update([]string{"status"}, video).Context(ctx).Do(); err != nil {
			return classifyAPIError("update privacy", err)
		}
		return nil
	})
}

func (c *Client) waitProcessed(ctx context.Context, service *youtube.Service, videoID, privacy string) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.PollTimeout)
	defer cancel()

	privacyFixed := false
	for {
		var status *youtube.VideoStatus
		err := c.retry(ctx, "poll status", func() error {
			resp, err := service.Videos.List([]string{"status"}).Id(videoID).Context(ctx).Do()
			if err != nil {
				return classifyAPIError("poll status", err)
			}
			if len(resp.Items) > 0 {
				status = resp.Items[0].Status
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return &UploadError{Op: "poll status", Err: fmt.Errorf("video %s not processed within %s: %w", videoID, c.options.PollTimeout, ctx.Err())}
			}
			return err
		}

		if status != nil {
			switch status.UploadStatus {
			case "failed":
				return &UploadError{Op: "processing", Err: fmt.Errorf("video %s failed: %s", videoID, status.FailureReason)}
			case "rejected":
				return &UploadError{Op: "processing", Err: fmt.Errorf("video %s rejected: %s", videoID, status.RejectionReason)}
			case "deleted":
				return &UploadError{Op: "processing", Err: fmt.Errorf("video %s was deleted", videoID)}
			case "processed":
				if privacy == "" || status.PrivacyStatus == privacy {
					return nil
				}
				if privacyFixed {
					return &UploadError{Op: "processing", Err: fmt.Errorf("video %s privacy is %s, want %s", videoID, status.PrivacyStatus, privacy)}
				}
				slog.Warn("Correcting video privacy", "id", videoID, "have", status.PrivacyStatus, "want", privacy)
				if err := c.setPrivacy(ctx, service, videoID, status, privacy); err != nil {
					return err
				}
				privacyFixed = true
				continue
			}
			slog.Debug("Waiting for processing", "id", videoID, "status", status.UploadStatus)
		}

		if err := httputil.Sleep(ctx, c.options.PollInterval); err != nil {
			return &UploadError{Op: "poll status", Err: fmt.Errorf("video %s not processed within %s: %w", videoID, c.options.PollTimeout, err)}
		}
	}
}

// retry runs fn until it succeeds, fails with a non-retryable error or the
// retry budget is spent.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= c.options.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.options.Backoff.Delay(attempt)
			slog.Debug("Retrying YouTube call", "op", op, "attempt", attempt, "delay", delay, "error", err)
			if sleepErr := httputil.Sleep(ctx, delay); sleepErr != nil {
				return &UploadError{Op: op, Err: sleepErr}
			}
		}

		err = fn()
		if err == nil || !isRetryable(err) {
			return err
		}
	}
	return err
}
