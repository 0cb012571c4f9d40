package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALLER AUTHENTICATION
// Two ways in: an HS256 bearer token carrying the user id and role, or a
// service key for trusted backends which then name the acting user in
// X-Actor-ID / X-Actor-Role.
// ══════════════════════════════════════════════════════════════════════════════

// Header names used by service callers.
const (
	HeaderAPIKey    = "X-API-Key"
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// Claims are the bearer token claims.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthConfig configures an Authenticator.
type AuthConfig struct {
	// JWTSecret signs bearer tokens. Empty disables bearer auth.
	JWTSecret string

	// JWTIssuer is checked when set.
	JWTIssuer string

	// ServiceKeys are "name:bcrypt-hash" entries.
	ServiceKeys []string

	// Now defaults to time.Now.
	Now func() time.Time
}

type serviceKey struct {
	name string
	hash []byte
}

// Authenticator resolves the acting user of a request.
type Authenticator struct {
	secret []byte
	issuer string
	keys   []serviceKey
	now    func() time.Time
}

// NewAuthenticator parses the service key entries.
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	a := &Authenticator{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.JWTIssuer,
		now:    cfg.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}

	for _, entry := range cfg.ServiceKeys {
		name, hash, ok := strings.Cut(strings.TrimSpace(entry), ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("auth: service key entry must be name:hash")
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("auth: service key %q: %w", name, err)
		}
		a.keys = append(a.keys, serviceKey{name: name, hash: []byte(hash)})
	}
	return a, nil
}

// HashServiceKey returns the bcrypt hash to put in a service key entry.
func HashServiceKey(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash service key: %w", err)
	}
	return string(hash), nil
}

// IssueToken signs a bearer token for actor.
func (a *Authenticator) IssueToken(actor thesis.Actor, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("auth: bearer tokens are disabled")
	}
	if err := actor.Validate(); err != nil {
		return "", err
	}
	now := a.now()
	claims := Claims{
		UserID: actor.ID.String(),
		Role:   string(actor.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   actor.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken verifies a bearer token and returns its claims.
func (a *Authenticator) ParseToken(token string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, unauthorized("bearer tokens are disabled")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, shared.WrapError("auth", "ParseToken", shared.ErrUnauthorized, "invalid bearer token", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, unauthorized("invalid token claims")
	}
	return claims, nil
}

// Authenticate returns the acting user of r.
func (a *Authenticator) Authenticate(r *http.Request) (thesis.Actor, error) {
	if token, ok := bearerToken(r.Header.Get("Authorization")); ok {
		claims, err := a.ParseToken(token)
		if err != nil {
			return thesis.Actor{}, err
		}
		return actorOf(claims.UserID, claims.Role)
	}

	if key := r.Header.Get(HeaderAPIKey); key != "" {
		if _, ok := a.matchServiceKey(key); !ok {
			return thesis.Actor{}, unauthorized("invalid service key")
		}
		return actorOf(r.Header.Get(HeaderActorID), r.Header.Get(HeaderActorRole))
	}

	return thesis.Actor{}, unauthorized("credentials are required")
}

func (a *Authenticator) matchServiceKey(key string) (string, bool) {
	for _, k := range a.keys {
		if bcrypt.CompareHashAndPassword(k.hash, []byte(key)) == nil {
			return k.name, true
		}
	}
	return "", false
}

func actorOf(id, role string) (thesis.Actor, error) {
	actor := thesis.Actor{ID: shared.UserID(strings.TrimSpace(id)), Role: thesis.Role(strings.ToLower(strings.TrimSpace(role)))}
	if err := actor.Validate(); err != nil {
		return thesis.Actor{}, unauthorized("caller identity is incomplete")
	}
	return actor, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(msg string) error {
	return shared.NewDomainError("auth", "Authenticate", shared.ErrUnauthorized, msg)
}

// ──────────────────────────────────────────────────────────────────────────────
// Context
// ──────────────────────────────────────────────────────────────────────────────

type actorKey struct{}

// WithActor stores the acting user in ctx.
func WithActor(ctx context.Context, actor thesis.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the acting user stored by WithActor.
func ActorFromContext(ctx context.Context) (thesis.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(thesis.Actor)
	return actor, ok
}
