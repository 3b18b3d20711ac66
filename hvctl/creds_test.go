package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomToken(t *testing.T) {
	a, err := randomToken()
	require.NoError(t, err)
	assert.Len(t, a, 64)

	b, err := randomToken()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "********", redact(""))
	assert.Equal(t, "********", redact("short"))
	assert.Equal(t, "********", redact("12345678"))
	assert.Equal(t, "abcd********wxyz", redact("abcdefghijklmnopqrstuvwxyz"))
}
