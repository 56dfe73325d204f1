package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultRedirectURL = "http://localhost:8080/callback"
	tokenExpiryMargin  = time.Minute
)

var scopes = []string{
	"https://www.googleapis.com/auth/youtube.upload",
	"https://www.googleapis.com/auth/youtube",
}

type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	RefreshToken string
	TokenPath    string
	// Endpoint overrides Google's OAuth endpoints.
	Endpoint oauth2.Endpoint
}

type Auth struct {
	config       *oauth2.Config
	tokenPath    string
	refreshToken string

	mu    sync.Mutex
	token *oauth2.Token
}

func NewAuth(creds Credentials) *Auth {
	redirectURL := creds.RedirectURL
	if redirectURL == "" {
		redirectURL = defaultRedirectURL
	}
	endpoint := creds.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	return &Auth{
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     endpoint,
			Scopes:       scopes,
			RedirectURL:  redirectURL,
		},
		tokenPath:    creds.TokenPath,
		refreshToken: creds.RefreshToken,
	}
}

func (a *Auth) LoadToken() error {
	if a.tokenPath == "" {
		return errors.New("no token path configured")
	}
	data, err := os.ReadFile(a.tokenPath)
	if err != nil {
		return fmt.Errorf("read token file: %w", err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return fmt.Errorf("parse token: %w", err)
	}

	a.mu.Lock()
	a.token = &token
	a.mu.Unlock()
	return nil
}

func (a *Auth) SaveToken() error {
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	if token == nil {
		return errors.New("no token to save")
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal token: %w", err)
	}
	if err := os.WriteFile(a.tokenPath, data, 0600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

func (a *Auth) AuthCodeURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (a *Auth) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("exchange code: %w", err)}
	}

	a.mu.Lock()
	a.token = token
	a.mu.Unlock()

	if a.tokenPath != "" {
		if err := a.SaveToken(); err != nil {
			return nil, err
		}
	}
	return token, nil
}

// TokenSource returns a source that refreshes the access token shortly
// before it expires. A configured refresh token wins over the token file.
func (a *Auth) TokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	if a.config.ClientID == "" || a.config.ClientSecret == "" {
		return nil, &AuthError{Err: errors.New("client id and secret are required")}
	}

	base, err := a.baseToken()
	if err != nil {
		return nil, &AuthError{Err: err}
	}

	ts := oauth2.ReuseTokenSourceWithExpiry(base, a.config.TokenSource(ctx, base), tokenExpiryMargin)
	return &authTokenSource{src: ts}, nil
}

// Client returns an HTTP client authorizing every request. Transport for
// both API calls and token refreshes comes from the oauth2.HTTPClient value
// in ctx, if any.
func (a *Auth) Client(ctx context.Context) (*http.Client, error) {
	ts, err := a.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	return oauth2.NewClient(ctx, ts), nil
}

func (a *Auth) IsAuthenticated() bool {
	if a.refreshToken != "" {
		return true
	}
	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	if token == nil {
		if err := a.LoadToken(); err != nil {
			return false
		}
		a.mu.Lock()
		token = a.token
		a.mu.Unlock()
	}
	return token.Valid() || token.RefreshToken != ""
}

func (a *Auth) RefreshToken() string {
	if a.refreshToken != "" {
		return a.refreshToken
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.token == nil {
		return ""
	}
	return a.token.RefreshToken
}

func (a *Auth) baseToken() (*oauth2.Token, error) {
	if a.refreshToken != "" {
		return &oauth2.Token{RefreshToken: a.refreshToken}, nil
	}

	a.mu.Lock()
	token := a.token
	a.mu.Unlock()
	if token != nil {
		return token, nil
	}

	if err := a.LoadToken(); err != nil {
		return nil, fmt.Errorf("no refresh token configured: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.token, nil
}

type authTokenSource struct {
	src oauth2.TokenSource
}

func (s *authTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.src.Token()
	if err != nil {
		return nil, &AuthError{Err: fmt.Errorf("refresh access token: %w", err)}
	}
	return token, nil
}
