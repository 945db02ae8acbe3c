package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAccessTokenSignerGenerateAndParse(t *testing.T) {
	signer := NewAccessTokenSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("sess-1", "content/exam.png")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	sessionID, path, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "sess-1", sessionID)
	require.Equal(t, "content/exam.png", path)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestAccessTokenSignerExpired(t *testing.T) {
	signer := NewAccessTokenSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("sess-1", "content/exam.png")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	sessionID, path, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "sess-1", sessionID)
	require.Equal(t, "content/exam.png", path)
}

func TestAccessTokenSignerTamperedSignature(t *testing.T) {
	signer := NewAccessTokenSigner("secret", time.Hour)
	token, _, err := signer.Generate("sess-1", "content/exam.png")
	require.NoError(t, err)

	other := NewAccessTokenSigner("other-secret", time.Hour)
	_, _, _, err = other.Parse(token, false)
	require.Error(t, err)
}
