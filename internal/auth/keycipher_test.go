package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediaforge/api/internal/auth"
)

func TestKeyCipherRoundTrip(t *testing.T) {
	c, err := auth.NewKeyCipher("master-secret")
	require.NoError(t, err)

	sealed, err := c.Encrypt("sk-upstream-key")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "sk-upstream-key")

	plain, err := c.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "sk-upstream-key", plain)
}

func TestKeyCipherWrongSecret(t *testing.T) {
	c1, err := auth.NewKeyCipher("secret-one")
	require.NoError(t, err)
	c2, err := auth.NewKeyCipher("secret-two")
	require.NoError(t, err)

	sealed, err := c1.Encrypt("sk-upstream-key")
	require.NoError(t, err)

	_, err = c2.Decrypt(sealed)
	assert.ErrorIs(t, err, auth.ErrUndecryptable)
}

func TestKeyCipherRejectsGarbage(t *testing.T) {
	c, err := auth.NewKeyCipher("master-secret")
	require.NoError(t, err)

	_, err = c.Decrypt([]byte("short"))
	assert.ErrorIs(t, err, auth.ErrUndecryptable)

	_, err = auth.NewKeyCipher("")
	assert.Error(t, err)
}
