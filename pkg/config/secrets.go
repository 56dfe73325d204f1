package config

import (
	"context"
	"fmt"
	"log/slog"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

const (
	secretClientID     = "google-client-id"
	secretClientSecret = "google-client-secret"
	secretRefreshToken = "google-refresh-token"
)

type SecretSource interface {
	Secret(ctx context.Context, name string) (string, error)
}

type SecretManager struct {
	client  *secretmanager.Client
	project string
}

func NewSecretManager(ctx context.Context, project string, opts ...option.ClientOption) (*SecretManager, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}
	return &SecretManager{client: client, project: project}, nil
}

func (s *SecretManager) Close() error {
	return s.client.Close()
}

// Secret returns the latest version of the named secret.
func (s *SecretManager) Secret(ctx context.Context, name string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, name),
	})
	if err != nil {
		return "", fmt.Errorf("access secret %s: %w", name, err)
	}
	return string(resp.GetPayload().GetData()), nil
}

// loadSecrets fills credentials the environment left empty. Lookup failures
// are logged and leave the field empty.
func loadSecrets(ctx context.Context, cfg *Config, src SecretSource) {
	fields := []struct {
		name  string
		value *string
	}{
		{secretClientID, &cfg.GoogleClientID},
		{secretClientSecret, &cfg.GoogleClientSecret},
		{secretRefreshToken, &cfg.GoogleRefreshToken},
	}

	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		value, err := src.Secret(ctx, f.name)
		if err != nil {
			slog.Warn("Secret lookup failed", "secret", f.name, "error", err)
			continue
		}
		*f.value = value
	}
}
