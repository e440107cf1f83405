package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	// ErrMissingCredential reports that no usable backend credential is held.
	ErrMissingCredential = errors.New("auth: credential required")
	// ErrExpiredCredential reports a JWT credential whose exp claim has passed.
	ErrExpiredCredential = errors.New("auth: credential expired")
)

// SessionConfig describes how a Session is built.
type SessionConfig struct {
	Token       string
	Clock       func() time.Time
	OnTerminate func(reason string)
	Logger      *zap.Logger
}

// Session holds the backend bearer credential of the operator. The backend is the only
// verifier: the session never checks signatures, it only refuses tokens that are absent or
// carry an exp claim in the past. Opaque tokens are accepted as-is.
type Session struct {
	mu          sync.Mutex
	token       string
	terminated  bool
	clock       func() time.Time
	onTerminate func(reason string)
	logger      *zap.Logger
}

// NewSession constructs a session around the configured token.
func NewSession(cfg SessionConfig) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		token:       strings.TrimSpace(cfg.Token),
		clock:       clock,
		onTerminate: cfg.OnTerminate,
		logger:      logger,
	}
}

// Token returns the bearer credential.
func (s *Session) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminated || s.token == "" {
		return "", ErrMissingCredential
	}
	expiry, ok := tokenExpiry(s.token)
	if ok && !s.clock().Before(expiry) {
		return "", ErrExpiredCredential
	}
	return s.token, nil
}

// Valid reports whether Token would succeed.
func (s *Session) Valid() bool {
	_, err := s.Token()
	return err == nil
}

// Replace installs a new credential and re-arms the termination callback.
func (s *Session) Replace(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = strings.TrimSpace(token)
	s.terminated = false
	s.logger.Info("session credential replaced")
}

// Terminate discards the credential. The termination callback fires once per credential,
// however many callers observe the rejection.
func (s *Session) Terminate(reason string) {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return
	}
	s.terminated = true
	s.token = ""
	callback := s.onTerminate
	s.mu.Unlock()

	s.logger.Warn("session terminated", zap.String("reason", reason))
	if callback != nil {
		callback(reason)
	}
}

func tokenExpiry(token string) (time.Time, bool) {
	if strings.Count(token, ".") != 2 {
		return time.Time{}, false
	}
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
