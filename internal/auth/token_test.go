package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, issued, err := signer.Issue("user-1", "Avery", "editor")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(issued.JTI, "jti_"))

	claims, err := signer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, issued, claims)
	assert.Equal(t, "editor", claims.Role)
}

func TestParseRejectsExpired(t *testing.T) {
	signer := NewSigner("secret", time.Minute)
	signer.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, _, err := signer.Issue("user-1", "Avery", "editor")
	require.NoError(t, err)

	signer.now = time.Now
	_, err = signer.Parse(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseRejectsTampering(t *testing.T) {
	signer := NewSigner("secret", time.Hour)
	token, _, err := signer.Issue("user-1", "Avery", "viewer")
	require.NoError(t, err)

	other := NewSigner("other", time.Hour)
	_, err = other.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	forged, _, err := other.Issue("user-1", "Avery", "admin")
	require.NoError(t, err)
	payload, _, _ := strings.Cut(forged, ".")
	_, signature, _ := strings.Cut(token, ".")
	_, err = signer.Parse(payload + "." + signature)
	assert.ErrorIs(t, err, ErrInvalidToken)

	for _, bad := range []string{"", "abc", "a.b.c", "!!!." + signature} {
		_, err = signer.Parse(bad)
		assert.ErrorIs(t, err, ErrInvalidToken, bad)
	}
}
