package middleware

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/99minutos/courier-tracking/internal/core/domain"
)

const defaultServiceTokenTTL = time.Hour

// ServiceToken mints the service-role JWT the engine presents to the
// tracking store. A token is reused until a tenth of its lifetime is left.
type ServiceToken struct {
	secret  []byte
	subject string
	ttl     time.Duration
	now     func() time.Time

	mu      sync.Mutex
	current string
	expires time.Time
}

func NewServiceToken(secret, subject string, ttl time.Duration) *ServiceToken {
	if ttl <= 0 {
		ttl = defaultServiceTokenTTL
	}
	return &ServiceToken{secret: []byte(secret), subject: subject, ttl: ttl, now: time.Now}
}

// Token returns a valid signed token.
func (s *ServiceToken) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.current != "" && now.Before(s.expires.Add(-s.ttl/10)) {
		return s.current, nil
	}

	expires := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: domain.RoleService,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	s.current, s.expires = signed, expires
	return signed, nil
}
