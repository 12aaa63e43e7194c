package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "conforma/pkg/domain-errors"
)

func TestGenerate(t *testing.T) {
	first, err := Generate()
	require.NoError(t, err)
	second, err := Generate()
	require.NoError(t, err)

	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestHashAndVerify(t *testing.T) {
	secret, err := Generate()
	require.NoError(t, err)

	hash, err := Hash(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, hash)

	require.NoError(t, Verify(secret, hash))

	err = Verify("wrong-secret", hash)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeInvalidInput, "invalid secret"))
}

func TestHashRejectsEmptySecret(t *testing.T) {
	_, err := Hash("")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeInvalidInput, "secret cannot be empty"))
}
