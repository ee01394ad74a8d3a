package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/apresai/pdfcast/internal/observability"
)

// SecretsAPI is the part of the Secrets Manager client LoadSecrets needs.
type SecretsAPI interface {
	GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadSecrets fills credentials that are still empty from Secrets Manager
// under c.SecretPrefix. It does nothing without a prefix. Missing secrets
// are logged and skipped.
func (c *Config) LoadSecrets(ctx context.Context, logger *slog.Logger) error {
	if c.SecretPrefix == "" {
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	observability.InstrumentAWS(&awsCfg)
	c.loadSecretsFrom(ctx, secretsmanager.NewFromConfig(awsCfg), logger)
	return nil
}

func (c *Config) loadSecretsFrom(ctx context.Context, client SecretsAPI, logger *slog.Logger) {
	secrets := map[string]*string{
		"ANTHROPIC_API_KEY":       &c.AnthropicAPIKey,
		"GOOGLE_CREDENTIALS_JSON": &c.GoogleCredentialsJSON,
	}

	for name, dst := range secrets {
		// Skip if already set in environment
		if *dst != "" {
			continue
		}
		secretID := c.SecretPrefix + name
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if v := aws.ToString(result.SecretString); v != "" {
			*dst = v
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}
}
