package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/deskinspect/thesis-lifecycle/internal/application/command"
	"github.com/deskinspect/thesis-lifecycle/internal/application/guidance"
	"github.com/deskinspect/thesis-lifecycle/internal/application/query"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/persistence/memory"
	"github.com/deskinspect/thesis-lifecycle/internal/interface/http/handlers"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

type staticSource []schedule.SchedulingEvent

func (s staticSource) ListEvents(_ context.Context, department string) ([]schedule.SchedulingEvent, error) {
	return schedule.ForDepartment(s, department), nil
}

type nopPublisher struct{}

func (nopPublisher) Publish(shared.Event) error { return nil }

func newDeps(t *testing.T) (Deps, *memory.Store) {
	t.Helper()
	source := staticSource{
		{ID: "cs-spring", Category: schedule.CategorySubmission, Title: "Spring submission", Department: "cs", DueDate: now.AddDate(0, 0, 5), Readiness: true},
		{ID: "math-spring", Category: schedule.CategorySubmission, Department: "math", DueDate: now.AddDate(0, 0, 30), Readiness: true},
	}
	clock := timeutil.NewFixedClock(now)
	policy := eligibility.DefaultPolicy()
	store := memory.NewStore()

	auth, err := handlers.NewAuthenticator(handlers.AuthConfig{JWTSecret: "secret", Now: clock.Now})
	require.NoError(t, err)

	return Deps{
		Events:           source,
		Policy:           policy,
		GetThesis:        query.NewGetThesisHandler(store, nil, nil),
		CheckEligibility: query.NewCheckEligibilityHandler(source, policy, guidance.Default(), clock, nil),
		Auth:             auth,
		Clock:            clock,
	}, store
}

func run(t *testing.T, deps Deps, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := Run(context.Background(), args, &out, deps)
	return out.String(), err
}

func TestRun_Events(t *testing.T) {
	deps, _ := newDeps(t)

	out, err := run(t, deps, "events")
	require.NoError(t, err)
	assert.Contains(t, out, "cs-spring")
	assert.Contains(t, out, "math-spring")

	out, err = run(t, deps, "events", "-department", "math")
	require.NoError(t, err)
	assert.NotContains(t, out, "cs-spring")
	assert.Contains(t, out, "opens in 16d")
}

func TestRun_Eligibility(t *testing.T) {
	deps, _ := newDeps(t)

	out, err := run(t, deps, "eligibility", "-department", "cs")
	require.NoError(t, err)
	assert.Contains(t, out, "ALLOWED")
	assert.Contains(t, out, "Spring submission (cs-spring)")

	out, err = run(t, deps, "eligibility", "-department", "math", "-lang", "ru")
	require.NoError(t, err)
	assert.Contains(t, out, "DENIED")
	assert.Contains(t, out, eligibility.ReasonWindowNotOpenYet.String())

	out, err = run(t, deps, "eligibility", "-department", "cs", "-category", "defense")
	require.NoError(t, err, "categories outside the built-in two are valid")
	assert.Contains(t, out, "defense")
	assert.Contains(t, out, "DENIED")
	assert.Contains(t, out, eligibility.ReasonNoActiveEvent.String())

	_, err = run(t, deps, "eligibility", "-department", "cs", "extra")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRun_Status(t *testing.T) {
	deps, store := newDeps(t)

	out, err := run(t, deps, "status", "-student", "student-1")
	require.NoError(t, err)
	assert.Contains(t, out, "no thesis found")

	submit := command.NewSubmitThesisHandler(command.Deps{
		Repo:      store,
		Locker:    memory.NewLocker(),
		Publisher: nopPublisher{},
		Events:    deps.Events,
		Clock:     deps.Clock,
	})
	_, err = submit.Handle(context.Background(), command.SubmitThesisCommand{
		StudentID:    "student-1",
		SupervisorID: "prof-1",
		Department:   "cs",
		FileRef:      "s3://thesis/v1.pdf",
		Actor:        thesis.Actor{ID: "student-1", Role: thesis.RoleStudent},
	})
	require.NoError(t, err)

	out, err = run(t, deps, "status", "-student", "student-1")
	require.NoError(t, err)
	assert.Contains(t, out, string(thesis.StatusUnderReview))
	assert.Contains(t, out, "s3://thesis/v1.pdf")

	_, err = run(t, deps, "status")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestRun_Token(t *testing.T) {
	deps, _ := newDeps(t)

	out, err := run(t, deps, "token", "-user", "prof-1", "-role", "Supervisor", "-ttl", "2h")
	require.NoError(t, err)

	claims, err := deps.Auth.ParseToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "prof-1", claims.UserID)
	assert.Equal(t, "supervisor", claims.Role)
	assert.WithinDuration(t, now.Add(2*time.Hour), claims.ExpiresAt.Time, time.Second)

	_, err = run(t, deps, "token", "-user", "x", "-role", "dean")
	assert.Error(t, err)
}

func TestRun_HashKey(t *testing.T) {
	out, err := run(t, Deps{}, "hash-key", "-name", "portal", "-secret", "s3cret")
	require.NoError(t, err)

	entry := strings.TrimPrefix(strings.TrimSpace(out), "AUTH_SERVICE_KEYS=portal:")
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(entry), []byte("s3cret")))

	_, err = run(t, Deps{}, "hash-key", "-name", "portal")
	assert.ErrorIs(t, err, ErrUsage)
}

func TestRun_UsageErrors(t *testing.T) {
	_, err := run(t, Deps{})
	assert.ErrorIs(t, err, ErrUsage)

	_, err = run(t, Deps{}, "frobnicate")
	assert.ErrorIs(t, err, ErrUsage)

	_, err = run(t, Deps{}, "events", "extra")
	assert.ErrorIs(t, err, ErrUsage)

	assert.True(t, NeedsInfra("status"))
	assert.False(t, NeedsInfra("hash-key"))
}
