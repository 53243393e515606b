// Package keyvault implements a credential Resolver backed by Azure Key Vault.
package keyvault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/security/keyvault/azsecrets"

	"github.com/shineum/http-email/internal/credential"
)

// GetSecretAPI is the interface for the Key Vault GetSecret operation.
// Used for testing with mock implementations.
type GetSecretAPI interface {
	GetSecret(ctx context.Context, name string, version string, options *azsecrets.GetSecretOptions) (azsecrets.GetSecretResponse, error)
}

// Resolver reads the latest version of a secret on every call.
type Resolver struct {
	vaultURL string
	client   GetSecretAPI
}

// New creates a Resolver for the vault at vaultURL. The identity comes from
// the ambient Azure configuration (AZURE_CLIENT_ID, AZURE_CLIENT_SECRET,
// AZURE_TENANT_ID, managed identity, ...).
func New(vaultURL string) (*Resolver, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}

	client, err := azsecrets.NewClient(vaultURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Key Vault client: %w", err)
	}

	return NewWithClient(vaultURL, client), nil
}

// NewWithClient creates a Resolver with a custom client, used for testing.
func NewWithClient(vaultURL string, client GetSecretAPI) *Resolver {
	return &Resolver{
		vaultURL: vaultURL,
		client:   client,
	}
}

// Resolve fetches the secret named ref. Every failure is reported as a
// *credential.UnavailableError.
func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", &credential.UnavailableError{Ref: ref, Err: errors.New("empty secret name")}
	}

	resp, err := r.client.GetSecret(ctx, ref, "", nil)
	if err != nil {
		attrs := []any{"secret", ref, "vault", r.vaultURL}
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			attrs = append(attrs, "status", respErr.StatusCode, "code", respErr.ErrorCode)
		}
		slog.Warn("failed to read secret from Key Vault", attrs...)
		return "", &credential.UnavailableError{Ref: ref, Err: err}
	}

	if resp.Value == nil || *resp.Value == "" {
		return "", &credential.UnavailableError{Ref: ref, Err: errors.New("secret has no value")}
	}

	return *resp.Value, nil
}
