package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session is one refresh-token lineage for the operator. Rotation keeps
// FamilyID stable while the token hash changes, so a replayed old token
// still identifies which family to kill.
type Session struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	FamilyID  string    `json:"family_id"`
	TokenHash string    `json:"-"` // never serialised
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// HashToken computes the SHA-256 hex digest of a raw token. Raw tokens
// are never stored, only their hashes.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// SessionStore holds refresh sessions in memory, keyed by token hash.
// Consumed tokens stay in the map, marked revoked, until they expire:
// a replay must keep tripping reuse detection for as long as the token
// would otherwise have been valid.
type SessionStore struct {
	mu     sync.Mutex
	byHash map[string]*Session
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{byHash: make(map[string]*Session)}
}

// Issue creates a fresh session family after a successful login and
// returns the raw refresh token to hand to the client.
func (s *SessionStore) Issue(username string, ttl time.Duration) (*Session, string, error) {
	raw, err := GenerateRefreshToken()
	if err != nil {
		return nil, "", err
	}

	now := time.Now()
	sess := &Session{
		ID:        "rt-" + uuid.NewString()[:16],
		Username:  username,
		FamilyID:  uuid.NewString(),
		TokenHash: HashToken(raw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	s.mu.Lock()
	s.byHash[sess.TokenHash] = sess
	s.mu.Unlock()

	return sess, raw, nil
}

// Rotate redeems a raw refresh token: the presented session is revoked
// and a new one is created in the same family. Presenting an already
// revoked token counts as theft and revokes the entire family.
func (s *SessionStore) Rotate(raw string, ttl time.Duration) (*Session, string, error) {
	hash := HashToken(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byHash[hash]
	if !ok {
		return nil, "", ErrTokenInvalid
	}
	if old.Revoked {
		s.revokeFamilyLocked(old.FamilyID)
		return nil, "", ErrTokenReuse
	}
	if time.Now().After(old.ExpiresAt) {
		return nil, "", ErrTokenExpired
	}

	newRaw, err := GenerateRefreshToken()
	if err != nil {
		return nil, "", err
	}

	old.Revoked = true
	now := time.Now()
	next := &Session{
		ID:        "rt-" + uuid.NewString()[:16],
		Username:  old.Username,
		FamilyID:  old.FamilyID,
		TokenHash: HashToken(newRaw),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	s.byHash[next.TokenHash] = next

	return next, newRaw, nil
}

// Revoke invalidates the session matching a raw token, for logout.
func (s *SessionStore) Revoke(raw string) error {
	hash := HashToken(raw)

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.byHash[hash]
	if !ok {
		return ErrTokenInvalid
	}
	sess.Revoked = true
	return nil
}

// RevokeAll invalidates every session, for example after the operator
// password hash changes.
func (s *SessionStore) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.byHash {
		sess.Revoked = true
	}
}

// PruneExpired drops sessions whose expiry has passed and returns how
// many were removed. Revoked sessions survive until expiry on purpose.
func (s *SessionStore) PruneExpired() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for hash, sess := range s.byHash {
		if now.After(sess.ExpiresAt) {
			delete(s.byHash, hash)
			removed++
		}
	}
	return removed
}

// ActiveCount returns the number of non-revoked, unexpired sessions.
func (s *SessionStore) ActiveCount() int {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, sess := range s.byHash {
		if !sess.Revoked && now.Before(sess.ExpiresAt) {
			n++
		}
	}
	return n
}

func (s *SessionStore) revokeFamilyLocked(familyID string) {
	for _, sess := range s.byHash {
		if sess.FamilyID == familyID {
			sess.Revoked = true
		}
	}
}
