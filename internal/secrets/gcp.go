package secrets

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"

	"github.com/amedina/team-assistant-v1-sub000/internal/platform/logger"
)

// GCPStore reads secrets from Google Secret Manager. The project is taken
// from GOOGLE_CLOUD_PROJECT; credentials come from application default
// credentials, same as the rest of the google-cloud clients.
type GCPStore struct {
	client  *secretmanager.Client
	project string
	log     *logger.Logger
}

func NewGCPStore(ctx context.Context, project string, log *logger.Logger) (*GCPStore, error) {
	if strings.TrimSpace(project) == "" {
		return nil, fmt.Errorf("secrets: gcp project required")
	}
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secrets: init secretmanager client: %w", err)
	}
	return &GCPStore{
		client:  client,
		project: project,
		log:     log.With("client", "GCPSecretStore"),
	}, nil
}

func (s *GCPStore) GetSecret(ctx context.Context, name string) (string, error) {
	resp, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.project, name),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: access %q: %w", name, err)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (s *GCPStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// StaticStore is an in-memory Store used by tests and the validate command.
type StaticStore map[string]string

func (s StaticStore) GetSecret(_ context.Context, name string) (string, error) {
	v, ok := s[name]
	if !ok {
		return "", fmt.Errorf("secrets: %q not found", name)
	}
	return v, nil
}
