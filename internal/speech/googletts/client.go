// Package googletts synthesizes speech through the Google Translate TTS
// endpoint. The endpoint accepts at most 200 characters per request, so
// longer text is fetched in pieces and the MP3 frames are concatenated.
package googletts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"scriptcast/internal/script"
	"scriptcast/internal/speech"
	"scriptcast/pkg/httputil"
)

const (
	defaultBaseURL = "https://translate.google.com"
	defaultTimeout = 30 * time.Second
	MaxChunkChars  = 200
	userAgent      = "Mozilla/5.0 (compatible; scriptcast)"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   httputil.RetryConfig
	Slow    bool
}

type Client struct {
	httpClient *httputil.RetryClient
	baseURL    string
	slow       bool
}

type option func(*Client)

func withHTTPClient(client *http.Client, retry httputil.RetryConfig) option {
	return func(c *Client) {
		c.httpClient = httputil.NewRetryClient(client, retry)
	}
}

func NewClient(cfg Config) *Client {
	return newClient(cfg)
}

func newClient(cfg Config, opts ...option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	c := &Client{
		httpClient: httputil.NewRetryClient(&http.Client{Timeout: timeout}, cfg.Retry),
		baseURL:    baseURL,
		slow:       cfg.Slow,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Synthesize(ctx context.Context, text, languageCode string) ([]byte, error) {
	chunks := Chunks(text, MaxChunkChars)
	if len(chunks) == 0 {
		return nil, &speech.SynthesisError{Kind: speech.Permanent, Err: errors.New("empty text")}
	}

	var audio []byte
	for i, chunk := range chunks {
		data, err := c.fetch(ctx, chunk, languageCode, i, len(chunks))
		if err != nil {
			return nil, err
		}
		audio = append(audio, data...)
	}

	slog.Debug("Speech fetched", "chunks", len(chunks), "bytes", len(audio))
	return audio, nil
}

func (c *Client) fetch(ctx context.Context, text, languageCode string, index, total int) ([]byte, error) {
	speed := "1"
	if c.slow {
		speed = "0.24"
	}

	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("q", text)
	params.Set("tl", languageCode)
	params.Set("total", strconv.Itoa(total))
	params.Set("idx", strconv.Itoa(index))
	params.Set("textlen", strconv.Itoa(utf8.RuneCountInString(text)))
	params.Set("client", "tw-ob")
	params.Set("prev", "input")
	params.Set("ttsspeed", speed)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/translate_tts?"+params.Encode(), nil)
	if err != nil {
		return nil, &speech.SynthesisError{Kind: speech.Permanent, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &speech.SynthesisError{Kind: speech.Transient, Err: fmt.Errorf("send request: %w", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &speech.SynthesisError{Kind: speech.Transient, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		kind := speech.Permanent
		if httputil.IsTransientStatus(resp.StatusCode) {
			kind = speech.Transient
		}
		return nil, &speech.SynthesisError{
			Kind:       kind,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("google tts: %s - %s", resp.Status, truncate(string(body), 200)),
		}
	}
	if len(body) == 0 {
		return nil, &speech.SynthesisError{Kind: speech.Transient, Err: errors.New("google tts: empty response body")}
	}

	return body, nil
}

// Chunks splits text into pieces of at most maxChars runes, preferring
// sentence and then word boundaries.
func Chunks(text string, maxChars int) []string {
	var chunks []string
	var current string

	appendPiece := func(piece string) {
		switch {
		case current == "":
			current = piece
		case utf8.RuneCountInString(current)+1+utf8.RuneCountInString(piece) <= maxChars:
			current += " " + piece
		default:
			chunks = append(chunks, current)
			current = piece
		}
	}

	for _, sentence := range script.Sentences(strings.Join(strings.Fields(text), " ")) {
		if utf8.RuneCountInString(sentence) <= maxChars {
			appendPiece(sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			for utf8.RuneCountInString(word) > maxChars {
				runes := []rune(word)
				appendPiece(string(runes[:maxChars]))
				word = string(runes[maxChars:])
			}
			if word != "" {
				appendPiece(word)
			}
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}

	return chunks
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
