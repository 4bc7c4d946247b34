package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/maxpark/access-controller/internal"
)

// Session is one live admin login. Tokens are opaque random strings held
// only in process memory; a restart logs everyone out.
type Session struct {
	Username  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Service owns the single admin identity and the live session map.
//
// The stored password digest is legacy unsalted SHA-256 hex for
// compatibility with existing deployments; digests with the bcrypt "$2"
// prefix are verified with bcrypt instead. Existing digests are never
// rewritten.
type Service struct {
	mu           sync.Mutex
	username     string
	passwordHash string
	apiKey       string
	apiKeyOn     bool
	ttl          time.Duration
	sessions     map[string]Session

	basicEnabled func() bool
	logger       *slog.Logger
	now          func() time.Time
}

func NewService(username, passwordHash, apiKey string, apiKeyRequired bool, ttl time.Duration, basicEnabled func() bool, logger *slog.Logger) *Service {
	if basicEnabled == nil {
		basicEnabled = func() bool { return false }
	}
	return &Service{
		username:     username,
		passwordHash: passwordHash,
		apiKey:       apiKey,
		apiKeyOn:     apiKeyRequired,
		ttl:          ttl,
		sessions:     make(map[string]Session),
		basicEnabled: basicEnabled,
		logger:       logger,
		now:          time.Now,
	}
}

func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// VerifyPassword checks a candidate password against the stored digest,
// constant-time for the legacy scheme.
func (s *Service) VerifyPassword(password string) bool {
	s.mu.Lock()
	stored := s.passwordHash
	s.mu.Unlock()

	if strings.HasPrefix(stored, "$2") {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(password)) == nil
	}
	candidate := hashPassword(password)
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(stored)) == 1
}

func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // the kernel CSPRNG does not fail on this platform
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Login verifies credentials and issues a session token. The error is the
// same whichever part of the credentials was wrong.
func (s *Service) Login(username, password string) (string, error) {
	if username != s.username || !s.VerifyPassword(password) {
		return "", internal.ErrInvalidCredentials
	}

	token := newToken()
	now := s.now()

	s.mu.Lock()
	s.sessions[token] = Session{
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	s.mu.Unlock()

	s.logger.Info("admin login", "username", username)
	return token, nil
}

// Logout removes a session; unknown tokens are a no-op.
func (s *Service) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Validate returns the session for a token. An expired token is removed
// on discovery.
func (s *Service) Validate(token string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[token]
	if !ok {
		return Session{}, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, token)
		return Session{}, false
	}
	return sess, true
}

// VerifyBasic authenticates HTTP Basic credentials against the admin
// identity. Username comparison is case-sensitive.
func (s *Service) VerifyBasic(username, password string) bool {
	if !s.basicEnabled() {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) != 1 {
		return false
	}
	return s.VerifyPassword(password)
}

// VerifyAPIKey checks the legacy shared-secret header value.
func (s *Service) VerifyAPIKey(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.apiKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(s.apiKey)) == 1
}

// APIKeyRequired reports whether mutating routes must also carry the
// legacy shared secret.
func (s *Service) APIKeyRequired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKeyOn
}

// SetPassword replaces the in-memory digest with the legacy scheme, as
// the dashboard's security page has always done. The durable copy stays
// in the environment.
func (s *Service) SetPassword(newPassword string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passwordHash = hashPassword(newPassword)
}

func (s *Service) SetAPIKey(newKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = newKey
}

// Sweep drops expired sessions and returns how many were removed.
func (s *Service) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for token, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, token)
			removed++
		}
	}
	return removed
}

// ActiveCount reports live (possibly expired but unswept) sessions.
func (s *Service) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// RunSweeper removes expired sessions every interval until ctx ends.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Info("expired sessions removed", "count", n)
			}
		}
	}
}
