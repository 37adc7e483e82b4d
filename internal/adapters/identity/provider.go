// Package identity resolves request actors from signed bearer tokens.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/evanschultz/barter/internal/app"
	"github.com/evanschultz/barter/internal/domain"
	"github.com/golang-jwt/jwt/v4"
)

// Header names accepted when header identity is enabled.
const (
	HeaderActorID    = "X-Actor-ID"
	HeaderActorName  = "X-Actor-Name"
	HeaderActorEmail = "X-Actor-Email"
)

// ErrMissingSecret is returned when no signing secret is configured.
var ErrMissingSecret = errors.New("token secret is required")

// Config holds configuration for provider.
type Config struct {
	Secret string
	Issuer string
	TTL    time.Duration
	// AllowHeaderIdentity trusts X-Actor-* headers. Local development only.
	AllowHeaderIdentity bool
}

// Claims carries the actor display fields next to the registered claims.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Provider issues and verifies HS256 actor tokens.
type Provider struct {
	secret       []byte
	issuer       string
	ttl          time.Duration
	allowHeaders bool
	now          func() time.Time
}

// NewProvider constructs a new value for this package.
func NewProvider(cfg Config) (*Provider, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrMissingSecret
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	return &Provider{
		secret:       []byte(cfg.Secret),
		issuer:       strings.TrimSpace(cfg.Issuer),
		ttl:          cfg.TTL,
		allowHeaders: cfg.AllowHeaderIdentity,
		now:          time.Now,
	}, nil
}

// Issue signs a token for actor and returns it with its expiry.
func (p *Provider) Issue(actor domain.Actor) (string, time.Time, error) {
	if actor.Anonymous() {
		return "", time.Time{}, app.ErrUnauthenticated
	}
	now := p.now().UTC()
	expires := now.Add(p.ttl)
	claims := Claims{
		Name:  strings.TrimSpace(actor.DisplayName),
		Email: strings.TrimSpace(actor.Email),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strings.TrimSpace(actor.ID),
			Issuer:    p.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a signed token into an actor.
func (p *Provider) Verify(raw string) (domain.Actor, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil {
		return domain.Actor{}, fmt.Errorf("%w: %v", app.ErrUnauthenticated, err)
	}
	if p.issuer != "" && !claims.VerifyIssuer(p.issuer, true) {
		return domain.Actor{}, fmt.Errorf("%w: unexpected issuer %q", app.ErrUnauthenticated, claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Actor{}, fmt.Errorf("%w: token has no subject", app.ErrUnauthenticated)
	}
	return domain.Actor{
		ID:          strings.TrimSpace(claims.Subject),
		DisplayName: claims.Name,
		Email:       claims.Email,
	}, nil
}

// ResolveToken verifies a raw token. An empty token resolves to the anonymous actor.
func (p *Provider) ResolveToken(raw string) (domain.Actor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Actor{}, nil
	}
	return p.Verify(raw)
}

// ResolveRequest reads the actor from an Authorization bearer token, or from
// X-Actor-* headers when enabled. Requests with neither are anonymous.
func (p *Provider) ResolveRequest(r *http.Request) (domain.Actor, error) {
	if header := strings.TrimSpace(r.Header.Get("Authorization")); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return domain.Actor{}, fmt.Errorf("%w: unsupported authorization scheme", app.ErrUnauthenticated)
		}
		return p.Verify(strings.TrimSpace(token))
	}
	if p.allowHeaders {
		return domain.Actor{
			ID:          strings.TrimSpace(r.Header.Get(HeaderActorID)),
			DisplayName: strings.TrimSpace(r.Header.Get(HeaderActorName)),
			Email:       strings.TrimSpace(r.Header.Get(HeaderActorEmail)),
		}, nil
	}
	return domain.Actor{}, nil
}
