package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/api/internal/auth"
	"github.com/mediaforge/api/internal/client"
	"github.com/mediaforge/api/internal/model"
	"github.com/mediaforge/api/internal/worker"
)

func TestCredentialResolverStoredKey(t *testing.T) {
	env := setupWorkerEnv(t)
	ctx := context.Background()

	cipher, err := auth.NewKeyCipher("master-secret")
	require.NoError(t, err)
	sealed, err := cipher.Encrypt("sk-owner-key")
	require.NoError(t, err)
	require.NoError(t, env.store.PutCredential(ctx, &model.Credential{OwnerID: "owner-1", Ciphertext: sealed}))

	r := worker.NewCredentialResolver(env.store, cipher, "svc-fallback")
	key, err := r.Resolve(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "sk-owner-key", key)
}

func TestCredentialResolverFallback(t *testing.T) {
	env := setupWorkerEnv(t)

	r := worker.NewCredentialResolver(env.store, nil, "svc-fallback")
	key, err := r.Resolve(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "svc-fallback", key)
}

func TestCredentialResolverMissingIsAuthError(t *testing.T) {
	env := setupWorkerEnv(t)

	r := worker.NewCredentialResolver(env.store, nil, "")
	_, err := r.Resolve(context.Background(), "owner-1")
	require.Error(t, err)

	var genErr *client.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, client.KindAuthError, genErr.Kind)
	assert.False(t, genErr.Retryable)
}

func TestCredentialResolverUndecryptableIsAuthError(t *testing.T) {
	env := setupWorkerEnv(t)
	ctx := context.Background()

	// sealed under a different master secret
	other, err := auth.NewKeyCipher("old-secret")
	require.NoError(t, err)
	sealed, err := other.Encrypt("sk-owner-key")
	require.NoError(t, err)
	require.NoError(t, env.store.PutCredential(ctx, &model.Credential{OwnerID: "owner-1", Ciphertext: sealed}))

	cipher, err := auth.NewKeyCipher("new-secret")
	require.NoError(t, err)
	r := worker.NewCredentialResolver(env.store, cipher, "svc-fallback")

	_, err = r.Resolve(ctx, "owner-1")
	require.Error(t, err)

	var genErr *client.GenerationError
	require.True(t, errors.As(err, &genErr))
	assert.Equal(t, client.KindAuthError, genErr.Kind)
}
