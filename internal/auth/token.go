// Package auth issues and validates the JWT tokens and password hashes used
// by the HTTP layer. Tokens carry a scope claim so that an access token can
// never be replayed as a refresh token or as an email link and vice versa.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token scopes. Each issued token is valid for exactly one purpose.
const (
	ScopeAccess        = "access"
	ScopeRefresh       = "refresh"
	ScopeEmailConfirm  = "email_confirm"
	ScopePasswordReset = "password_reset"
)

// ErrInvalidToken is returned when a token fails signature, expiry or scope
// validation. The caller gets no further detail on purpose.
var ErrInvalidToken = errors.New("invalid token")

// Claims are the token claims: the account id plus the purpose scope.
type Claims struct {
	UserID int64  `json:"uid"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates HMAC-signed JWTs.
type TokenManager struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	emailTTL   time.Duration
}

// NewTokenManager constructs a manager with the provided secret and
// per-scope lifetimes.
func NewTokenManager(secret, issuer string, accessTTL, refreshTTL, emailTTL time.Duration) *TokenManager {
	return &TokenManager{
		secret:     []byte(secret),
		issuer:     issuer,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		emailTTL:   emailTTL,
	}
}

// Generate creates a signed token for the user, valid for the lifetime
// configured for the scope.
func (m *TokenManager) Generate(userID int64, scope string) (string, error) {
	var ttl time.Duration
	switch scope {
	case ScopeAccess:
		ttl = m.accessTTL
	case ScopeRefresh:
		ttl = m.refreshTTL
	case ScopeEmailConfirm, ScopePasswordReset:
		ttl = m.emailTTL
	default:
		return "", errors.New("unknown token scope: " + scope)
	}

	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Scope:  scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses the token and returns the user id when the signature is
// good, the token has not expired, and the scope matches the expected one.
func (m *TokenManager) Validate(tokenString, wantScope string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	})
	if err != nil {
		return 0, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Scope != wantScope {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
