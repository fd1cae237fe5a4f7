package api

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/connectmesh-bridge/internal/audit"
	"github.com/nerrad567/connectmesh-bridge/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// loginRequest is the request body for POST /auth/login. Username is
// optional and defaults to the configured operator account.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// tokenResponse is the response body for POST /auth/login and /auth/refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin verifies the operator's password against the configured
// argon2id hash and issues an access token plus a refresh session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	username := req.Username
	if username == "" {
		username = s.secCfg.Operator.Username
	}

	// Username mismatch and password mismatch share one error so the
	// response does not reveal which part was wrong.
	ok := username == s.secCfg.Operator.Username
	if ok {
		var err error
		ok, err = auth.VerifyPassword(req.Password, s.secCfg.Operator.PasswordHash)
		if err != nil {
			s.logger.Error("password verification failed", "error", err)
			writeInternalError(w, "failed to verify credentials")
			return
		}
	}
	if !ok {
		s.recordAudit(audit.ActionLogin, "auth", username, "", map[string]any{"result": "denied", "ip": clientIP(r)})
		writeUnauthorized(w, "invalid credentials")
		return
	}

	refreshTTL := time.Duration(s.secCfg.JWT.RefreshTokenTTL) * time.Minute
	session, refreshToken, err := s.sessions.Issue(username, refreshTTL)
	if err != nil {
		s.logger.Error("failed to issue refresh session", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	access, err := auth.GenerateAccessToken(username, session.ID, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("failed to generate access token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}
	if ttl <= 0 {
		ttl = 15
	}

	s.recordAudit(audit.ActionLogin, "auth", username, username, map[string]any{"result": "ok", "session_id": session.ID, "ip": clientIP(r)})
	s.logger.Info("operator logged in", "username", username, "session_id", session.ID)

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60, // seconds
	})
}

// handleRefresh rotates a refresh token and mints a fresh access token.
// The refresh token itself is the credential, so this route is public.
// Replaying a consumed token revokes its whole family.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	refreshTTL := time.Duration(s.secCfg.JWT.RefreshTokenTTL) * time.Minute
	session, refreshToken, err := s.sessions.Rotate(req.RefreshToken, refreshTTL)
	if err != nil {
		if errors.Is(err, auth.ErrTokenReuse) {
			s.logger.Warn("refresh token replay detected, session family revoked", "ip", clientIP(r))
			s.recordAudit(audit.ActionLogin, "auth", s.secCfg.Operator.Username, "", map[string]any{"result": "replay_detected", "ip": clientIP(r)})
		}
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	ttl := s.secCfg.JWT.AccessTokenTTL
	access, err := auth.GenerateAccessToken(session.Username, session.ID, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		s.logger.Error("failed to generate access token", "error", err)
		writeInternalError(w, "failed to generate token")
		return
	}
	if ttl <= 0 {
		ttl = 15
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  access,
		RefreshToken: refreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60,
	})
}

// handleLogout revokes the presented refresh token. The access token
// stays valid until expiry; only the refresh chain is cut.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	if err := s.sessions.Revoke(req.RefreshToken); err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	s.logger.Info("operator logged out", "username", usernameFrom(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// handleAuthMe echoes the authenticated operator's claims.
func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		writeUnauthorized(w, "not authenticated")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"username":   claims.Username,
		"session_id": claims.SessionID,
		"issued_at":  claims.IssuedAt.UTC().Format(time.RFC3339),
		"expires_at": claims.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

type ticketEntry struct {
	username  string
	sessionID string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue creates a ticket bound to the operator's identity.
func (t *ticketStore) issue(username, sessionID string) string {
	ticket := generateTicket()
	t.mu.Lock()
	t.tickets[ticket] = ticketEntry{
		username:  username,
		sessionID: sessionID,
		expiresAt: time.Now().Add(ticketTTL),
	}
	t.mu.Unlock()
	return ticket
}

// consume validates a ticket and removes it (single-use).
func (t *ticketStore) consume(ticket string) (ticketEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}
	delete(t.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// cleanExpired removes expired tickets from the store.
func (t *ticketStore) cleanExpired() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for ticket, entry := range t.tickets {
		if now.After(entry.expiresAt) {
			delete(t.tickets, ticket)
		}
	}
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	if claims == nil {
		writeUnauthorized(w, "not authenticated")
		return
	}

	ticket := s.wsTickets.issue(claims.Username, claims.SessionID)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// generateTicket returns a 64-hex-digit single-use WebSocket ticket.
func generateTicket() string {
	const n = 32
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
