package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"call-lab/domain"
	"call-lab/errors"
)

const testSecret = "test_secret_for_signing_tokens"

func TestVerifier_Round_Trip(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(testSecret, "alice", "Alice", time.Hour)
	req.NoError(err)

	identity, err := NewJWTVerifier(testSecret).Verify(token)
	req.NoError(err)
	req.Equal(domain.IdentityID("alice"), identity.ID)
	req.Equal("Alice", identity.DisplayName)
}

func TestVerifier_Wrong_Secret(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(testSecret, "alice", "Alice", time.Hour)
	req.NoError(err)

	_, err = NewJWTVerifier("another_secret_entirely").Verify(token)
	req.ErrorIs(err, errors.ErrAuth)
}

func TestVerifier_Expired_Token(t *testing.T) {
	req := require.New(t)

	token, err := GenerateToken(testSecret, "alice", "Alice", -time.Minute)
	req.NoError(err)

	_, err = NewJWTVerifier(testSecret).Verify(token)
	req.ErrorIs(err, errors.ErrAuth)
}

func TestVerifier_Missing_Token(t *testing.T) {
	req := require.New(t)

	_, err := NewJWTVerifier(testSecret).Verify("")
	req.ErrorIs(err, errors.ErrAuth)
}

func TestVerifier_Garbage_Token(t *testing.T) {
	req := require.New(t)

	_, err := NewJWTVerifier(testSecret).Verify("not.a.jwt")
	req.ErrorIs(err, errors.ErrAuth)
}
