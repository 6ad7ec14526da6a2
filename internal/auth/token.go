package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken reports a bearer token that failed verification.
var ErrInvalidToken = errors.New("auth: invalid token")

// TokenVerifier validates HS256 access tokens issued by the identity provider.
type TokenVerifier struct {
	secret   []byte
	audience string
	issuer   string
	leeway   time.Duration
}

type identityClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewTokenVerifier constructs a TokenVerifier. Empty audience or issuer disables that check.
func NewTokenVerifier(secret, audience, issuer string) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: token secret must be configured")
	}
	return &TokenVerifier{
		secret:   []byte(secret),
		audience: audience,
		issuer:   issuer,
		leeway:   30 * time.Second,
	}, nil
}

// Verify parses and validates a raw token.
func (v *TokenVerifier) Verify(raw string) (*Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	claims := &identityClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not an identity id", ErrInvalidToken)
	}
	return &Identity{ID: subject.String(), Email: claims.Email}, nil
}

// ResolveSession implements IdentityProvider for Authorization: Bearer headers. Invalid or
// expired tokens resolve to no session.
func (v *TokenVerifier) ResolveSession(_ context.Context, r *http.Request) (*Identity, error) {
	raw, ok := BearerToken(r)
	if !ok {
		return nil, nil
	}
	identity, err := v.Verify(raw)
	if err != nil {
		return nil, nil
	}
	return identity, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

var _ IdentityProvider = (*TokenVerifier)(nil)
