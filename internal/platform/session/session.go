package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"reviewsync/internal/domain/catalog"
)

// Claims is the portal's bearer-token payload. The client never verifies the
// signature (only the backend holds the secret); claims are decoded for
// display and KPI applicability filtering.
type Claims struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Band   string `json:"band"`
	Stream string `json:"stream"`
	jwt.RegisteredClaims
}

// Session is the explicit login-scoped state object: token, decoded claims,
// and a lifecycle context that cancels all in-flight work on logout or
// expiry. It replaces the old portal's module-scoped auth caches.
type Session struct {
	token  string
	claims Claims
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	expired   bool
	onExpired func()
}

// New decodes the bearer token and starts a session. onExpired fires at most
// once, when the backend first answers 401.
func New(token string, onExpired func()) (*Session, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		token:     token,
		claims:    claims,
		ctx:       ctx,
		cancel:    cancel,
		onExpired: onExpired,
	}, nil
}

func (s *Session) Token() string { return s.token }

func (s *Session) Claims() Claims { return s.claims }

// Context is cancelled on Close or Expire; all engine fetches derive from it.
func (s *Session) Context() context.Context { return s.ctx }

// Profile returns the classification fields used for KPI filtering.
func (s *Session) Profile() catalog.Profile {
	return catalog.Profile{Band: s.claims.Band, Stream: s.claims.Stream}
}

// Adapter picks the role adapter for this user's own monthly self-review.
func (s *Session) Adapter() catalog.RoleAdapter {
	if s.claims.Role == "Manager" {
		return catalog.ManagerSelfAdapter(s.Profile())
	}
	return catalog.EmployeeAdapter(s.Profile())
}

// Expire marks the session dead and cancels its context. Idempotent.
func (s *Session) Expire() {
	s.mu.Lock()
	if s.expired {
		s.mu.Unlock()
		return
	}
	s.expired = true
	cb := s.onExpired
	s.mu.Unlock()
	s.cancel()
	if cb != nil {
		cb()
	}
}

func (s *Session) Expired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expired
}

// Close tears the session down on logout without firing onExpired.
func (s *Session) Close() {
	s.mu.Lock()
	s.expired = true
	s.mu.Unlock()
	s.cancel()
}
