package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/huh/spinner"
	"github.com/google/uuid"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"scriptcast/internal/distribution/youtube"
	"scriptcast/pkg/config"
)

const consentTimeout = 5 * time.Minute

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Authenticate with external services",
	Long:  `Authenticate with YouTube using OAuth credentials from .env or Secret Manager.`,
}

var authYouTubeCmd = &cobra.Command{
	Use:   "youtube",
	Short: "Authenticate with YouTube (OAuth)",
	Long: `Open the Google consent page, receive the authorization code on the
local callback URL and save the resulting token file.`,
	RunE: runAuthYouTube,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check YouTube and archive configuration",
	RunE:  runAuthStatus,
}

func init() {
	authCmd.AddCommand(authYouTubeCmd)
	authCmd.AddCommand(authStatusCmd)
	rootCmd.AddCommand(authCmd)
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println(infoStyle.Render("\nService Authentication Status:\n"))

	switch {
	case cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "":
		fmt.Println(errorStyle.Render("✗ YouTube: missing GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET"))
	case cfg.GoogleRefreshToken != "":
		fmt.Println(successStyle.Render("✓ YouTube: refresh token configured"))
	default:
		if _, err := os.Stat(cfg.YouTubeTokenPath); err == nil {
			fmt.Println(successStyle.Render("✓ YouTube: authenticated (token file " + cfg.YouTubeTokenPath + ")"))
		} else {
			fmt.Println(errorStyle.Render("✗ YouTube: credentials set, but not authenticated"))
			fmt.Println(infoStyle.Render("  Run: scriptcast auth youtube"))
		}
	}

	if cfg.GCPProject != "" {
		fmt.Println(successStyle.Render("✓ Secret Manager: project " + cfg.GCPProject))
	} else {
		fmt.Println(infoStyle.Render("○ Secret Manager: GOOGLE_CLOUD_PROJECT not set (optional)"))
	}

	switch {
	case !cfg.Archive.Enabled:
		fmt.Println(infoStyle.Render("○ Archive: disabled (optional)"))
	case cfg.Archive.Bucket != "":
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ Archive: gs://%s/%s", cfg.Archive.Bucket, cfg.Archive.Prefix)))
	default:
		fmt.Println(successStyle.Render("✓ Archive: " + cfg.Archive.Dir))
	}

	fmt.Println()
	return nil
}

func runAuthYouTube(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		if err := promptCredentials(cfg); err != nil {
			return err
		}
	}

	auth := youtube.NewAuth(youtube.Credentials{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURI,
		TokenPath:    cfg.YouTubeTokenPath,
	})

	if err := runConsentFlow(ctx, auth, cfg.GoogleRedirectURI); err != nil {
		return err
	}

	fmt.Println(successStyle.Render("✓ YouTube authentication complete"))
	fmt.Println(successStyle.Render("  Token saved to: " + cfg.YouTubeTokenPath))
	if refresh := auth.RefreshToken(); refresh != "" {
		fmt.Println(infoStyle.Render("  For headless runs set GOOGLE_REFRESH_TOKEN in .env"))
	}
	return nil
}

func promptCredentials(cfg *config.Config) error {
	fmt.Println(infoStyle.Render(`
To create OAuth credentials:
1. Go to https://console.cloud.google.com/apis/credentials
2. Click "Create Credentials" → "OAuth client ID"
3. Choose "Web application" and add the callback URL as a redirect URI
4. Copy the Client ID and Client Secret
`))

	clientID := cfg.GoogleClientID
	clientSecret := cfg.GoogleClientSecret
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Google Client ID").
				Value(&clientID).
				Validate(required("Client ID")),
			huh.NewInput().
				Title("Google Client Secret").
				EchoMode(huh.EchoModePassword).
				Value(&clientSecret).
				Validate(required("Client Secret")),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.GoogleClientID = strings.TrimSpace(clientID)
	cfg.GoogleClientSecret = strings.TrimSpace(clientSecret)
	return nil
}

// runConsentFlow serves the redirect URI locally, opens the consent page and
// exchanges the returned code.
func runConsentFlow(ctx context.Context, auth *youtube.Auth, redirectURI string) error {
	redirect, err := url.Parse(redirectURI)
	if err != nil {
		return fmt.Errorf("invalid redirect URI: %w", err)
	}

	state := uuid.NewString()
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return fmt.Errorf("failed to start callback server: %w", err)
	}

	server := &http.Server{
		Handler:           callbackHandler(redirect.Path, state, codeChan, errChan),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	authURL := auth.AuthCodeURL(state)
	fmt.Println(infoStyle.Render("\nOpening browser for YouTube authentication..."))
	fmt.Println(infoStyle.Render("If browser doesn't open, visit:\n" + authURL))
	_ = browser.OpenURL(authURL)

	waitCtx, cancel := context.WithTimeout(ctx, consentTimeout)
	defer cancel()

	code, err := awaitCode(waitCtx, codeChan, errChan, func(action func()) error {
		return spinner.New().
			Title("Waiting for consent...").
			Action(action).
			Run()
	})
	if err != nil {
		return err
	}

	if _, err := auth.Exchange(ctx, code); err != nil {
		return err
	}
	return nil
}

// awaitCode blocks inside wait until the callback delivers a code, reports an
// error or ctx ends. A failure of wait itself is returned as is.
func awaitCode(ctx context.Context, codeChan <-chan string, errChan <-chan error, wait func(action func()) error) (string, error) {
	var code string
	var callbackErr error
	if err := wait(func() {
		select {
		case code = <-codeChan:
		case callbackErr = <-errChan:
		case <-ctx.Done():
			callbackErr = errors.New("authentication timed out")
		}
	}); err != nil {
		return "", fmt.Errorf("consent prompt failed: %w", err)
	}
	if callbackErr != nil {
		return "", callbackErr
	}
	if code == "" {
		return "", errors.New("no authorization code received")
	}
	return code, nil
}

func callbackHandler(path, state string, codeChan chan<- string, errChan chan<- error) http.Handler {
	if path == "" {
		path = "/"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}

		query := r.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			return
		}
		if reason := query.Get("error"); reason != "" {
			sendOnce(errChan, fmt.Errorf("consent denied: %s", reason))
			_, _ = fmt.Fprint(w, "<html><body><h1>Error</h1><p>Authorization was denied.</p></body></html>")
			return
		}

		code := query.Get("code")
		if code == "" {
			sendOnce(errChan, errors.New("no code in callback"))
			_, _ = fmt.Fprint(w, "<html><body><h1>Error</h1><p>No authorization code received.</p></body></html>")
			return
		}

		select {
		case codeChan <- code:
		default:
		}
		_, _ = fmt.Fprint(w, "<html><body><h1>Success!</h1><p>You can close this window and return to the terminal.</p></body></html>")
	})
}

func sendOnce(ch chan<- error, err error) {
	select {
	case ch <- err:
	default:
	}
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
