package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

var now = time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)

func newAuthenticator(t *testing.T, keys ...string) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(AuthConfig{
		JWTSecret:   "secret",
		JWTIssuer:   "thesis-lifecycle",
		ServiceKeys: keys,
		Now:         func() time.Time { return now },
	})
	require.NoError(t, err)
	return a
}

func TestAuthenticator_BearerRoundTrip(t *testing.T) {
	a := newAuthenticator(t)
	actor := thesis.Actor{ID: "prof-1", Role: thesis.RoleSupervisor}

	tok, err := a.IssueToken(actor, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "bearer "+tok)

	got, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, actor, got)
}

func TestAuthenticator_RejectsForeignTokens(t *testing.T) {
	a := newAuthenticator(t)
	claims := Claims{
		UserID: "admin-1",
		Role:   "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "thesis-lifecycle",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}

	tests := []struct {
		name  string
		token func() string
	}{
		{"other secret", func() string {
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other"))
			return s
		}},
		{"other issuer", func() string {
			c := claims
			c.Issuer = "someone-else"
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("secret"))
			return s
		}},
		{"no expiry", func() string {
			c := claims
			c.ExpiresAt = nil
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("secret"))
			return s
		}},
		{"unknown role", func() string {
			c := claims
			c.Role = "dean"
			s, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte("secret"))
			return s
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tt.token())
			_, err := a.Authenticate(req)
			assert.ErrorIs(t, err, shared.ErrUnauthorized)
		})
	}
}

func TestAuthenticator_ServiceKey(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	a := newAuthenticator(t, "portal:"+string(hash))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "s3cret")
	req.Header.Set(HeaderActorID, "student-7")
	req.Header.Set(HeaderActorRole, "Student")

	got, err := a.Authenticate(req)
	require.NoError(t, err)
	assert.Equal(t, thesis.Actor{ID: "student-7", Role: thesis.RoleStudent}, got)

	req.Header.Set(HeaderAPIKey, "wrong")
	_, err = a.Authenticate(req)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestNewAuthenticator_RejectsBadEntries(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{ServiceKeys: []string{"no-separator"}})
	assert.Error(t, err)

	_, err = NewAuthenticator(AuthConfig{ServiceKeys: []string{"portal:not-a-hash"}})
	assert.Error(t, err)
}

func TestAuthenticator_BearerDisabledWithoutSecret(t *testing.T) {
	a, err := NewAuthenticator(AuthConfig{})
	require.NoError(t, err)

	_, err = a.IssueToken(thesis.Actor{ID: "u", Role: thesis.RoleAdmin}, time.Minute)
	assert.Error(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer abc")
	_, err = a.Authenticate(req)
	assert.ErrorIs(t, err, shared.ErrUnauthorized)
}

func TestProbeSet(t *testing.T) {
	status := NewProbeSet("1.0.0", 0).Check(context.Background())
	assert.Equal(t, HealthOK, status.Status)
	assert.Empty(t, status.Probes)

	store := Probe{Name: "store", Critical: true, Ping: func(context.Context) error { return nil }}
	calendar := Probe{Name: "calendar", Ping: func(context.Context) error { return errors.New("timeout") }}

	status = NewProbeSet("1.0.0", 0, store, calendar).Check(context.Background())
	assert.True(t, status.Healthy())
	assert.Equal(t, HealthDegraded, status.Status)
	assert.Equal(t, []string{"calendar"}, status.Failing)
	require.Len(t, status.Probes, 2)
	assert.Equal(t, "calendar", status.Probes[0].Name)
	assert.False(t, status.Probes[0].Critical)
	assert.Equal(t, "timeout", status.Probes[0].Error)

	redis := Probe{Name: "redis", Critical: true, Ping: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}
	status = NewProbeSet("1.0.0", 10*time.Millisecond, store, calendar, redis).Check(context.Background())
	assert.False(t, status.Healthy())
	assert.Equal(t, HealthDown, status.Status)
	assert.Equal(t, []string{"calendar", "redis"}, status.Failing)
}

func TestDeadline(t *testing.T) {
	var deadline time.Time
	h := Deadline(time.Second)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, _ = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, deadline.IsZero())

	passthrough := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
	assert.NotNil(t, Deadline(0)(passthrough))
}

func TestSecurityHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}
