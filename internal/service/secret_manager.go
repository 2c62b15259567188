package service

import (
	"context"
	"errors"
	"fmt"

	"portal/internal/config"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

// SecretManagerService reads deployment secrets such as the token signing
// key and the object store secret.
type SecretManagerService interface {
	GetSecret(ctx context.Context, name string) (string, error)
	Close() error
}

type secretManagerService struct {
	client    *secretmanager.Client
	projectID string
}

func NewSecretManagerService(ctx context.Context, projectID string, opts ...option.ClientOption) (SecretManagerService, error) {
	if projectID == "" {
		return nil, fmt.Errorf("GCP Project ID is not set")
	}

	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Secret Manager client: %w", err)
	}

	return &secretManagerService{
		client:    client,
		projectID: projectID,
	}, nil
}

// GetSecret returns the latest version of the named secret.
func (s *secretManagerService) GetSecret(ctx context.Context, name string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", s.projectID, name)

	result, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: resourceName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to access secret %s: %w", name, err)
	}

	return string(result.Payload.Data), nil
}

func (s *secretManagerService) Close() error {
	return s.client.Close()
}

// ResolveSecret returns value when set, otherwise the named secret from sm.
// It returns "" when neither is configured.
func ResolveSecret(ctx context.Context, sm SecretManagerService, value, name string) (string, error) {
	if value != "" || name == "" {
		return value, nil
	}
	if sm == nil {
		return "", fmt.Errorf("secret %s requested but Secret Manager is not configured", name)
	}
	return sm.GetSecret(ctx, name)
}

// ResolveConfigSecrets fills cfg.JWTSecret and cfg.S3SecretKey from Secret
// Manager when only their secret names are configured.
func ResolveConfigSecrets(ctx context.Context, cfg *config.Config) error {
	needJWT := cfg.JWTSecret == "" && cfg.JWTSecretName != ""
	needS3 := cfg.S3SecretKey == "" && cfg.S3SecretKeyName != ""

	var sm SecretManagerService
	if needJWT || needS3 {
		var err error
		sm, err = NewSecretManagerService(ctx, cfg.GCPProjectID)
		if err != nil {
			return err
		}
		defer sm.Close()
	}

	var err error
	if cfg.JWTSecret, err = ResolveSecret(ctx, sm, cfg.JWTSecret, cfg.JWTSecretName); err != nil {
		return err
	}
	if cfg.S3SecretKey, err = ResolveSecret(ctx, sm, cfg.S3SecretKey, cfg.S3SecretKeyName); err != nil {
		return err
	}
	if cfg.JWTSecret == "" {
		return errors.New("JWT_SECRET or JWT_SECRET_NAME must be set")
	}
	return nil
}
