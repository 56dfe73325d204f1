package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newTokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"exchanged","refresh_token":"long-lived","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func testCredentials(server *httptest.Server, tokenPath string) Credentials {
	return Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenPath:    tokenPath,
		Endpoint: oauth2.Endpoint{
			AuthURL:   server.URL + "/auth",
			TokenURL:  server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func TestAuthCodeURL(t *testing.T) {
	auth := NewAuth(Credentials{ClientID: "client-id", ClientSecret: "secret"})

	u, err := url.Parse(auth.AuthCodeURL("state-1"))
	if err != nil {
		t.Fatal(err)
	}
	q := u.Query()
	if q.Get("client_id") != "client-id" || q.Get("state") != "state-1" {
		t.Errorf("query = %v", q)
	}
	if q.Get("access_type") != "offline" {
		t.Errorf("access_type = %q, want offline", q.Get("access_type"))
	}
	if q.Get("redirect_uri") != defaultRedirectURL {
		t.Errorf("redirect_uri = %q", q.Get("redirect_uri"))
	}
}

func TestAuthExchangeSavesToken(t *testing.T) {
	server := newTokenServer(t)
	tokenPath := filepath.Join(t.TempDir(), "token.json")

	auth := NewAuth(testCredentials(server, tokenPath))
	if auth.IsAuthenticated() {
		t.Fatal("IsAuthenticated() = true before exchange")
	}

	token, err := auth.Exchange(context.Background(), "good")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if token.RefreshToken != "long-lived" {
		t.Errorf("refresh token = %q", token.RefreshToken)
	}

	reloaded := NewAuth(testCredentials(server, tokenPath))
	if err := reloaded.LoadToken(); err != nil {
		t.Fatalf("LoadToken() error = %v", err)
	}
	if !reloaded.IsAuthenticated() {
		t.Error("IsAuthenticated() = false after loading saved token")
	}
	if got := reloaded.RefreshToken(); got != "long-lived" {
		t.Errorf("RefreshToken() = %q", got)
	}
}

func TestAuthExchangeFailure(t *testing.T) {
	server := newTokenServer(t)
	auth := NewAuth(testCredentials(server, ""))

	_, err := auth.Exchange(context.Background(), "bad")

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v, want AuthError", err)
	}
}

func TestAuthTokenSource(t *testing.T) {
	server := newTokenServer(t)

	t.Run("refreshTokenWins", func(t *testing.T) {
		creds := testCredentials(server, filepath.Join(t.TempDir(), "missing.json"))
		creds.RefreshToken = "configured"

		ts, err := NewAuth(creds).TokenSource(context.Background())
		if err != nil {
			t.Fatalf("TokenSource() error = %v", err)
		}
		token, err := ts.Token()
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if token.AccessToken != "exchanged" {
			t.Errorf("access token = %q", token.AccessToken)
		}
	})

	t.Run("validTokenNotRefreshed", func(t *testing.T) {
		auth := NewAuth(testCredentials(server, ""))
		auth.token = &oauth2.Token{AccessToken: "cached", Expiry: time.Now().Add(time.Hour)}

		ts, err := auth.TokenSource(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		token, err := ts.Token()
		if err != nil {
			t.Fatal(err)
		}
		if token.AccessToken != "cached" {
			t.Errorf("access token = %q, want cached", token.AccessToken)
		}
	})

	t.Run("noCredentials", func(t *testing.T) {
		auth := NewAuth(testCredentials(server, filepath.Join(t.TempDir(), "missing.json")))

		_, err := auth.TokenSource(context.Background())

		var authErr *AuthError
		if !errors.As(err, &authErr) {
			t.Fatalf("error = %v, want AuthError", err)
		}
	})
}
