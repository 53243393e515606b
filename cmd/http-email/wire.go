package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shineum/http-email/internal/config"
	"github.com/shineum/http-email/internal/credential"
	"github.com/shineum/http-email/internal/credential/keyvault"
	"github.com/shineum/http-email/internal/directory"
	"github.com/shineum/http-email/internal/directory/azurefile"
	"github.com/shineum/http-email/internal/directory/s3"
	"github.com/shineum/http-email/internal/provider"
	smtpprovider "github.com/shineum/http-email/internal/provider/smtp"
	"github.com/shineum/http-email/internal/provider/stdout"
	smtptls "github.com/shineum/http-email/internal/tls"
)

// selectSource chooses where the sender directory is fetched from.
func selectSource(ctx context.Context, cfg *config.Config) (directory.Source, error) {
	switch cfg.Directory.Source {
	case config.SourceFile:
		slog.Info("using file directory", "path", cfg.Directory.Path)
		return directory.FileSource{Path: cfg.Directory.Path}, nil

	case config.SourceAzureFile:
		slog.Info("using Azure File Share directory",
			"share", cfg.Directory.ShareName,
			"path", cfg.Directory.FilePath,
		)
		src, err := azurefile.New(azurefile.SourceConfig{
			ConnectionString: cfg.Directory.StorageConnectionString,
			ShareName:        cfg.Directory.ShareName,
			FilePath:         cfg.Directory.FilePath,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Azure File Share source: %w", err)
		}
		return src, nil

	case config.SourceS3:
		slog.Info("using S3 directory",
			"bucket", cfg.Directory.S3.Bucket,
			"key", cfg.Directory.S3.Key,
		)
		src, err := s3.New(ctx, s3.SourceConfig{
			Region:          cfg.Directory.S3.Region,
			Bucket:          cfg.Directory.S3.Bucket,
			Key:             cfg.Directory.S3.Key,
			AccessKeyID:     cfg.Directory.S3.AccessKeyID,
			SecretAccessKey: cfg.Directory.S3.SecretAccessKey,
			Endpoint:        cfg.Directory.S3.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 source: %w", err)
		}
		return src, nil

	default:
		return nil, fmt.Errorf("unknown directory source %q", cfg.Directory.Source)
	}
}

// selectCredentials chooses the credential store.
func selectCredentials(cfg *config.Config) (credential.Resolver, error) {
	switch cfg.Credentials.Store {
	case config.StoreKeyVault:
		slog.Info("using Key Vault credentials", "vault_uri", cfg.Credentials.VaultURI)
		r, err := keyvault.New(cfg.Credentials.VaultURI)
		if err != nil {
			return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
		}
		return r, nil

	case config.StoreEnv:
		slog.Info("using environment credentials", "prefix", cfg.Credentials.EnvPrefix)
		return credential.NewEnvResolver(cfg.Credentials.EnvPrefix), nil

	default:
		return nil, fmt.Errorf("unknown credential store %q", cfg.Credentials.Store)
	}
}

// selectProvider chooses the delivery backend.
func selectProvider(cfg *config.Config) (provider.Provider, error) {
	switch cfg.SMTP.Provider {
	case config.ProviderSMTP:
		tlsConfig, err := smtptls.ClientConfig(cfg.SMTP.CAFile, cfg.SMTP.InsecureSkipVerify)
		if err != nil {
			return nil, fmt.Errorf("failed to setup TLS: %w", err)
		}
		if cfg.SMTP.InsecureSkipVerify {
			slog.Warn("SMTP certificate verification is disabled")
		}
		slog.Info("using SMTP provider", "dial_timeout", cfg.SMTP.DialTimeout)
		return smtpprovider.New(smtpprovider.ProviderConfig{
			LocalName:   cfg.SMTP.LocalName,
			DialTimeout: cfg.SMTP.DialTimeout,
			TLSConfig:   tlsConfig,
		}), nil

	case config.ProviderStdout:
		slog.Info("using stdout provider")
		return stdout.New(), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.SMTP.Provider)
	}
}
