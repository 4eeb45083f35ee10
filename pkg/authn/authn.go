// Package authn resolves the ambient authenticated session for mandate
// calls. It owns tokens and lookups; the mandate subsystem only ever sees the
// resolved user id.
package authn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrUnauthorized = errors.New("unauthorized")

// Session is the identity attached to an authenticated request.
type Session struct {
	UserID string
}

// SessionStore resolves a hashed bearer token to a session. Implementations
// must return ErrUnauthorized for unknown, expired, or revoked tokens.
type SessionStore interface {
	LookupSession(ctx context.Context, tokenHash string) (Session, error)
}

// Authenticate extracts the bearer token from an Authorization header and
// resolves it against the store.
func Authenticate(ctx context.Context, store SessionStore, authorization string) (Session, error) {
	token, ok := parseBearerToken(authorization)
	if !ok {
		return Session{}, ErrUnauthorized
	}
	return store.LookupSession(ctx, HashToken(token))
}

// PGSessionStore looks sessions up in Postgres.
type PGSessionStore struct {
	DB *pgxpool.Pool
}

func (s *PGSessionStore) LookupSession(ctx context.Context, tokenHash string) (Session, error) {
	var out Session
	err := s.DB.QueryRow(ctx, `
SELECT user_id
FROM sessions
WHERE token_hash=$1
  AND revoked_at IS NULL
  AND (expires_at IS NULL OR expires_at > now())
`, tokenHash).Scan(&out.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, ErrUnauthorized
		}
		return Session{}, err
	}
	return out, nil
}

// MemorySessionStore holds sessions in memory. It backs local development and
// tests, mirroring the in-memory fallback of the store layer.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]memorySession
}

type memorySession struct {
	userID    string
	expiresAt time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: map[string]memorySession{}}
}

// AddToken registers a raw token for a user. A zero expiry means no expiry.
func (s *MemorySessionStore) AddToken(token, userID string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[HashToken(token)] = memorySession{userID: userID, expiresAt: expiresAt}
}

func (s *MemorySessionStore) LookupSession(_ context.Context, tokenHash string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return Session{}, ErrUnauthorized
	}
	if !sess.expiresAt.IsZero() && time.Now().After(sess.expiresAt) {
		return Session{}, ErrUnauthorized
	}
	return Session{UserID: sess.userID}, nil
}

func parseBearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", false
	}
	return token, true
}

func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
