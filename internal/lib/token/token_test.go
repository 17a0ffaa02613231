package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/credential-engine/internal/lib/token"
)

func TestFingerprint(t *testing.T) {
	fp1 := token.Fingerprint("some-refresh-token")
	fp2 := token.Fingerprint("some-refresh-token")
	fp3 := token.Fingerprint("another-refresh-token")

	assert.Equal(t, fp1, fp2, "fingerprint must be deterministic")
	assert.NotEqual(t, fp1, fp3)
	assert.Len(t, fp1, 64, "sha-256 hex is 64 characters")
	assert.NotContains(t, fp1, "some-refresh-token")
}

func TestNewOpaque(t *testing.T) {
	first, err := token.NewOpaque()
	require.NoError(t, err)
	second, err := token.NewOpaque()
	require.NoError(t, err)

	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)
}
