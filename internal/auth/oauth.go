// Package auth maintains the short-lived bearer tokens used by the FCM v1 and
// WNS dispatchers. A token source caches one token plus its expiry; refresh
// failures are logged and leave the previous token untouched so a Push call
// never fails harder than "no credential".
package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// expirySlack is subtracted from the reported token lifetime so a token is
// refreshed before the provider starts rejecting it.
const expirySlack = 30 * time.Second

// FetchFunc obtains a fresh bearer token and its lifetime from the provider.
type FetchFunc func(ctx context.Context) (token string, ttl time.Duration, err error)

// TokenSource caches a bearer token until shortly before expiry. Safe for use
// by multiple dispatchers concurrently; the refresh-and-store step runs under
// a mutex since refresh is rare relative to dispatch volume.
type TokenSource struct {
	fetch  FetchFunc
	logger *slog.Logger

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func NewTokenSource(fetch FetchFunc, logger *slog.Logger) *TokenSource {
	return &TokenSource{
		fetch:  fetch,
		logger: logger.With("component", "TokenSource"),
		now:    time.Now,
	}
}

// Token returns the cached bearer token, refreshing it first when absent or
// past its usable window. A failed refresh logs a warning and returns whatever
// was cached before, possibly the empty string.
func (s *TokenSource) Token(ctx context.Context) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && s.now().Before(s.expires) {
		return s.token
	}

	// A source seeded via SetToken has no fetcher. Keep returning the static
	// token rather than failing the push.
	if s.fetch == nil {
		return s.token
	}

	token, ttl, err := s.fetch(ctx)
	if err != nil {
		s.logger.Warn("Fetching OAuth token failed", "error", err.Error())
		return s.token
	}

	s.token = token
	s.expires = s.now().Add(ttl - expirySlack)
	return s.token
}

// SetToken seeds the cache directly. Intended for static tokens and tests.
func (s *TokenSource) SetToken(token string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.expires = s.now().Add(ttl)
}
