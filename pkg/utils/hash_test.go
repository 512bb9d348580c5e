package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword("correct horse", hash))
	assert.False(t, CheckPassword("correct h0rse", hash))

	_, err = HashPassword("short")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	_, err = HashPassword(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}
