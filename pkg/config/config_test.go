package config

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	orig, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(orig) })
	_ = os.Chdir(tmp)
	return tmp
}

func TestLoadFromYAML(t *testing.T) {
	tmp := chdirTemp(t)

	yaml := `
speech:
  provider: stub
  concurrency: 2
video:
  max_segment_chars: 500
  duration_tolerance: 0.25
youtube:
  privacy_status: private
archive:
  enabled: true
  bucket: my-bucket
`
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte(yaml), 0644)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Speech.Provider != "stub" || cfg.Speech.Concurrency != 2 {
		t.Errorf("Speech = %+v", cfg.Speech)
	}
	if cfg.Video.MaxSegmentChars != 500 {
		t.Errorf("Video.MaxSegmentChars = %d, want 500", cfg.Video.MaxSegmentChars)
	}
	if cfg.Video.DurationTolerance != 0.25 {
		t.Errorf("Video.DurationTolerance = %v, want 0.25", cfg.Video.DurationTolerance)
	}
	if cfg.YouTube.PrivacyStatus != "private" {
		t.Errorf("YouTube.PrivacyStatus = %q, want private", cfg.YouTube.PrivacyStatus)
	}
	if !cfg.Archive.Enabled || cfg.Archive.Bucket != "my-bucket" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if cfg.Video.FPS != defaultFPS {
		t.Errorf("Video.FPS = %d, want default %d", cfg.Video.FPS, defaultFPS)
	}
}

func TestLoadFromEnv(t *testing.T) {
	chdirTemp(t)

	t.Setenv("GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("GOOGLE_REFRESH_TOKEN", "refresh")
	t.Setenv("YOUTUBE_TOKEN_PATH", "/tmp/token.json")
	t.Setenv("GOOGLE_CLOUD_PROJECT", "test-project")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.GoogleClientID != "client-id" || cfg.GoogleClientSecret != "client-secret" || cfg.GoogleRefreshToken != "refresh" {
		t.Errorf("credentials = %q %q %q", cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRefreshToken)
	}
	if cfg.YouTubeTokenPath != "/tmp/token.json" {
		t.Errorf("YouTubeTokenPath = %q", cfg.YouTubeTokenPath)
	}
	if cfg.GCPProject != "test-project" {
		t.Errorf("GCPProject = %q, want test-project", cfg.GCPProject)
	}
}

func TestLoadMissingConfigFileUsesDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Speech.Provider != defaultSpeechProvider {
		t.Errorf("Speech.Provider = %q", cfg.Speech.Provider)
	}
	if cfg.Video.DurationTolerance != defaultDurationTolerance {
		t.Errorf("Video.DurationTolerance = %v", cfg.Video.DurationTolerance)
	}
	if cfg.YouTube.PrivacyStatus != defaultPrivacyStatus {
		t.Errorf("YouTube.PrivacyStatus = %q", cfg.YouTube.PrivacyStatus)
	}
	if cfg.Server.Addr != defaultServerAddr {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.GoogleRedirectURI != defaultRedirectURI {
		t.Errorf("GoogleRedirectURI = %q", cfg.GoogleRedirectURI)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmp := chdirTemp(t)
	_ = os.WriteFile(filepath.Join(tmp, "config.yaml"), []byte("speech: [unclosed"), 0644)

	if _, err := Load(context.Background()); err == nil {
		t.Error("Load() should fail on malformed config.yaml")
	}
}

type mapSecrets map[string]string

func (m mapSecrets) Secret(_ context.Context, name string) (string, error) {
	if v, ok := m[name]; ok {
		return v, nil
	}
	return "", errors.New("not found")
}

func TestLoadSecretsFillsOnlyMissing(t *testing.T) {
	cfg := &Config{GoogleClientID: "from-env"}
	loadSecrets(context.Background(), cfg, mapSecrets{
		secretClientID:     "from-secret",
		secretClientSecret: "secret",
	})

	if cfg.GoogleClientID != "from-env" {
		t.Errorf("GoogleClientID = %q, want from-env", cfg.GoogleClientID)
	}
	if cfg.GoogleClientSecret != "secret" {
		t.Errorf("GoogleClientSecret = %q, want secret", cfg.GoogleClientSecret)
	}
	if cfg.GoogleRefreshToken != "" {
		t.Errorf("GoogleRefreshToken = %q, want empty", cfg.GoogleRefreshToken)
	}
}

type fakeSecretServer struct {
	secretmanagerpb.UnimplementedSecretManagerServiceServer
	secrets map[string]string
}

func (f *fakeSecretServer) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	value, ok := f.secrets[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "secret not found")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func TestSecretManager(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	server := grpc.NewServer()
	secretmanagerpb.RegisterSecretManagerServiceServer(server, &fakeSecretServer{secrets: map[string]string{
		"projects/proj/secrets/google-refresh-token/versions/latest": "stored-refresh",
	}})
	go func() { _ = server.Serve(lis) }()
	defer server.Stop()

	ctx := context.Background()
	sm, err := NewSecretManager(ctx, "proj",
		option.WithEndpoint(lis.Addr().String()),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("NewSecretManager() error = %v", err)
	}
	defer func() { _ = sm.Close() }()

	got, err := sm.Secret(ctx, secretRefreshToken)
	if err != nil {
		t.Fatalf("Secret() error = %v", err)
	}
	if got != "stored-refresh" {
		t.Errorf("Secret() = %q, want stored-refresh", got)
	}

	if _, err := sm.Secret(ctx, "missing"); status.Code(err) != codes.NotFound {
		t.Errorf("Secret(missing) error = %v, want NotFound", err)
	}
}
