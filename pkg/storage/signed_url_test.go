package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerSignAndVerify(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Sign("doc-1", "firm-1/decl-1/file.pdf")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 2*time.Second)

	docID, key, err := signer.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "doc-1", docID)
	require.Equal(t, "firm-1/decl-1/file.pdf", key)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Sign("doc-1", "a/b.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, _, err = signer.Verify(token)
	require.ErrorIs(t, err, ErrSignatureExpired)
}

func TestSignedURLSignerTampered(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	token, _, err := signer.Sign("doc-1", "a/b.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "doc-2"
	_, _, err = signer.Verify(strings.Join(parts, "."))
	require.ErrorIs(t, err, ErrBadSignature)

	_, _, err = NewSignedURLSigner("other", time.Minute).Verify(token)
	require.ErrorIs(t, err, ErrBadSignature)

	_, _, err = signer.Verify("garbage")
	require.ErrorIs(t, err, ErrMalformedSignature)
}
