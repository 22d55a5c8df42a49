package worker

import (
	"context"
	"errors"

	"github.com/mediaforge/api/internal/auth"
	"github.com/mediaforge/api/internal/client"
	"github.com/mediaforge/api/internal/store"
)

// CredentialResolver resolves the upstream API key for an owner. A missing
// or undecryptable credential is a terminal auth failure; jobs must not burn
// retries on it.
type CredentialResolver struct {
	store       store.Store
	cipher      *auth.KeyCipher
	fallbackKey string
}

// NewCredentialResolver creates a resolver. fallbackKey is the optional
// service-level key used for owners without a stored credential.
func NewCredentialResolver(s store.Store, cipher *auth.KeyCipher, fallbackKey string) *CredentialResolver {
	return &CredentialResolver{store: s, cipher: cipher, fallbackKey: fallbackKey}
}

// Resolve returns the API key to use for ownerID.
func (r *CredentialResolver) Resolve(ctx context.Context, ownerID string) (string, error) {
	cred, err := r.store.GetCredential(ctx, ownerID)
	if errors.Is(err, store.ErrNotFound) {
		if r.fallbackKey != "" {
			return r.fallbackKey, nil
		}
		return "", &client.GenerationError{
			Kind:    client.KindAuthError,
			Message: "no API credential configured for owner",
		}
	}
	if err != nil {
		return "", err
	}

	if r.cipher == nil {
		return "", &client.GenerationError{
			Kind:    client.KindAuthError,
			Message: "credential decryption is not configured",
		}
	}
	key, err := r.cipher.Decrypt(cred.Ciphertext)
	if err != nil {
		return "", &client.GenerationError{
			Kind:    client.KindAuthError,
			Message: "stored credential could not be decrypted",
		}
	}
	return key, nil
}
