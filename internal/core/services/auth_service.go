package services

import (
	"errors"
	"fmt"
	"time"

	"livecast/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrExpiredToken   = errors.New("token expired")
	ErrWrongTokenKind = errors.New("wrong token type")
)

const tokenIssuer = "livecast"

type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

// userNamespace seeds stable user ids derived from login names.
var userNamespace = uuid.MustParse("6f0c2a8e-3c1e-4b8e-9d2a-5a1f7e4c9b10")

type AuthService interface {
	IssueTokens(identity domain.Identity) (TokenPair, error)
	Refresh(refreshToken string) (TokenPair, error)
	ValidateToken(tokenString string) (*Claims, error)
	IdentityForLogin(login string) domain.Identity
}

type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"-"`
}

type Claims struct {
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
	Kind     TokenKind     `json:"token_type"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() domain.Identity {
	return domain.Identity{UserID: c.UserID, Username: c.Username}
}

type authService struct {
	jwtSecret       []byte
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
	now             func() time.Time
}

func NewAuthService(jwtSecret string, accessTokenTTL, refreshTokenTTL time.Duration) AuthService {
	return &authService{
		jwtSecret:       []byte(jwtSecret),
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
		now:             time.Now,
	}
}

// IdentityForLogin maps a login name to the same user id every time.
func (s *authService) IdentityForLogin(login string) domain.Identity {
	return domain.Identity{
		UserID:   domain.UserID(uuid.NewSHA1(userNamespace, []byte(login)).String()),
		Username: login,
	}
}

func (s *authService) IssueTokens(identity domain.Identity) (TokenPair, error) {
	access, err := s.sign(identity, AccessToken, s.accessTokenTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := s.sign(identity, RefreshToken, s.refreshTokenTTL)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: s.accessTokenTTL}, nil
}

// Refresh exchanges a valid refresh token for a new pair.
func (s *authService) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := s.parse(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Kind != RefreshToken {
		return TokenPair{}, ErrWrongTokenKind
	}
	return s.IssueTokens(claims.Identity())
}

// ValidateToken accepts access tokens only.
func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != AccessToken {
		return nil, ErrWrongTokenKind
	}
	return claims, nil
}

func (s *authService) sign(identity domain.Identity, kind TokenKind, ttl time.Duration) (string, error) {
	now := s.now()
	claims := &Claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		Kind:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   string(identity.UserID),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
}

func (s *authService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
