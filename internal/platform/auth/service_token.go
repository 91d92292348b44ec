package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenSource supplies bearer tokens for outbound calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

const (
	defaultServiceTokenTTL = 5 * time.Minute
	refreshMargin          = 30 * time.Second
)

// ServiceTokenSource mints short-lived HS256 tokens identifying this
// service to the analysis backend. A minted token is reused until it is
// within refreshMargin of expiry.
type ServiceTokenSource struct {
	secret   []byte
	issuer   string
	audience string
	subject  string
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type ServiceTokenConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	Subject  string
	TTL      time.Duration
}

func NewServiceTokenSource(cfg ServiceTokenConfig) (*ServiceTokenSource, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("service token secret is required")
	}
	ttl := cfg.TTL
	if ttl <= refreshMargin {
		ttl = defaultServiceTokenTTL
	}
	subject := cfg.Subject
	if subject == "" {
		subject = cfg.Issuer
	}
	return &ServiceTokenSource{
		secret:   cfg.Secret,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		subject:  subject,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

func (s *ServiceTokenSource) Token(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.token != "" && now.Add(refreshMargin).Before(s.expiresAt) {
		return s.token, nil
	}

	expiresAt := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   s.subject,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        uuid.NewString(),
	}
	if s.audience != "" {
		claims.Audience = jwt.ClaimStrings{s.audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	s.token = signed
	s.expiresAt = expiresAt
	return signed, nil
}
