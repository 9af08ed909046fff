package services

import (
	"testing"
	"time"

	"livecast/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	svc := NewAuthService("secret", time.Minute, time.Hour)
	identity := svc.IdentityForLogin("alice")

	pair, err := svc.IssueTokens(identity)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, pair.ExpiresIn)

	claims, err := svc.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, identity, claims.Identity())
	assert.Equal(t, AccessToken, claims.Kind)
}

func TestAuthService_IdentityForLoginIsStable(t *testing.T) {
	svc := NewAuthService("secret", time.Minute, time.Hour)

	assert.Equal(t, svc.IdentityForLogin("alice"), svc.IdentityForLogin("alice"))
	assert.NotEqual(t, svc.IdentityForLogin("alice").UserID, svc.IdentityForLogin("bob").UserID)
}

func TestAuthService_RefreshTokenIsNotAnAccessToken(t *testing.T) {
	svc := NewAuthService("secret", time.Minute, time.Hour)
	pair, err := svc.IssueTokens(domain.Identity{UserID: "u1", Username: "alice"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrWrongTokenKind)

	_, err = svc.Refresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrWrongTokenKind)

	next, err := svc.Refresh(pair.RefreshToken)
	require.NoError(t, err)
	claims, err := svc.ValidateToken(next.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), claims.UserID)
}

func TestAuthService_Expired(t *testing.T) {
	svc := NewAuthService("secret", time.Minute, time.Hour).(*authService)
	issuedAt := time.Now().Add(-2 * time.Minute)
	svc.now = func() time.Time { return issuedAt }
	pair, err := svc.IssueTokens(domain.Identity{UserID: "u1"})
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestAuthService_RejectsForeignTokens(t *testing.T) {
	svc := NewAuthService("secret", time.Minute, time.Hour)
	other := NewAuthService("other-secret", time.Minute, time.Hour)

	pair, err := other.IssueTokens(domain.Identity{UserID: "u1"})
	require.NoError(t, err)
	_, err = svc.ValidateToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1", Kind: AccessToken})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = svc.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
