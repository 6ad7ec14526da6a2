package auth

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SessionStore keeps cookie sessions in Redis. A session maps an opaque id to the identity
// it was issued for.
type SessionStore struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	now        func() time.Time
}

type sessionPayload struct {
	IdentityID string    `json:"identity_id"`
	Email      string    `json:"email"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// NewSessionStore constructs a SessionStore.
func NewSessionStore(client *redis.Client, cookieName string, ttl time.Duration, secure bool) *SessionStore {
	return &SessionStore{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		now:        time.Now,
	}
}

// Issue creates a session for identity and writes the session cookie.
func (s *SessionStore) Issue(ctx context.Context, w http.ResponseWriter, identity Identity) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	expiresAt := s.now().Add(s.ttl).UTC()
	data, err := json.Marshal(sessionPayload{IdentityID: identity.ID, Email: identity.Email, ExpiresAt: expiresAt})
	if err != nil {
		return "", err
	}
	if err := s.client.Set(ctx, s.redisKey(id.String()), data, s.ttl).Err(); err != nil {
		return "", err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    id.String(),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	})
	return id.String(), nil
}

// ResolveSession implements IdentityProvider.
func (s *SessionStore) ResolveSession(ctx context.Context, r *http.Request) (*Identity, error) {
	id, ok := s.sessionID(r)
	if !ok {
		return nil, nil
	}
	payload, err := s.client.Get(ctx, s.redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var stored sessionPayload
	if err := json.Unmarshal(payload, &stored); err != nil {
		return nil, nil
	}
	if stored.IdentityID == "" || !s.now().Before(stored.ExpiresAt) {
		return nil, nil
	}
	return &Identity{ID: stored.IdentityID, Email: stored.Email}, nil
}

// Destroy deletes the session behind the request, if any, and clears the cookie.
func (s *SessionStore) Destroy(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	if id, ok := s.sessionID(r); ok {
		if err := s.client.Del(ctx, s.redisKey(id)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// TTL exposes the configured session lifetime.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}

// CookieName returns the cookie identifier used for sessions.
func (s *SessionStore) CookieName() string {
	return s.cookieName
}

func (s *SessionStore) sessionID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return "", false
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func (s *SessionStore) redisKey(id string) string {
	return "session:" + id
}

var _ IdentityProvider = (*SessionStore)(nil)
