package session

import (
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session carries the authenticated user's token and detected locale.
// It is passed explicitly into every store and engine constructor so
// nothing in the core reads ambient process-wide state.
type Session struct {
	mu      sync.RWMutex
	token   string
	country string
	region  string
	now     func() time.Time
}

func New(token, country, region string) *Session {
	return &Session{
		token:   strings.TrimSpace(token),
		country: strings.TrimSpace(country),
		region:  strings.TrimSpace(region),
		now:     time.Now,
	}
}

// Token returns the current auth token, empty when signed out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Country() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.country
}

func (s *Session) Region() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.region
}

// SetToken installs a new auth token after login or refresh.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

// SetLocale records the detected country and region.
func (s *Session) SetLocale(country, region string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.country = strings.TrimSpace(country)
	s.region = strings.TrimSpace(region)
}

// Clear signs the session out.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
}

// Authenticated reports whether a usable token is present. Tokens that
// parse as JWTs are additionally checked for expiry; opaque tokens are
// trusted as long as they are non-empty.
func (s *Session) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" {
		return false
	}
	expiry, ok := tokenExpiry(s.token)
	if !ok {
		return true
	}
	nowFn := s.now
	if nowFn == nil {
		nowFn = time.Now
	}
	return expiry.After(nowFn())
}

func tokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
