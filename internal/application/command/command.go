// Package command contains write operations (CQRS - Commands).
//
// Every command runs the same shell around the pure lifecycle core: lock the
// lineage, load it, fetch scheduling events fresh, authorize, apply the
// transition, save it against the expected revision, then publish events.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/telemetry"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// DefaultLockTTL bounds how long one command may hold a lineage.
const DefaultLockTTL = 15 * time.Second

// lineageNamespace seeds deterministic lineage ids.
var lineageNamespace = uuid.MustParse("5b0f6b1e-9a4c-4d1e-8f43-6c2a7d9e1b35")

// LineageIDForStudent returns the lineage id a student's first submission creates.
// Every student has at most one lineage, so the id is derived from the student id.
func LineageIDForStudent(studentID shared.UserID) shared.LineageID {
	return shared.LineageID(uuid.NewSHA1(lineageNamespace, []byte(studentID)).String())
}

// CacheInvalidator drops cached read views after a write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, lineageID string) error
}

// Deps groups the collaborators shared by all command handlers.
type Deps struct {
	Repo      thesis.Repository
	Locker    thesis.LineageLocker
	Machine   *thesis.Machine
	Publisher shared.EventPublisher

	// Events must not be a cached source: transitions re-check eligibility
	// against the calendar as it is right now.
	Events schedule.EventSource

	// Cache is optional.
	Cache CacheInvalidator

	Clock   timeutil.Clock
	Logger  *logger.Logger
	Metrics *metrics.Metrics
	LockTTL time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = timeutil.SystemClock{}
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Machine == nil {
		d.Machine = thesis.NewMachine(eligibility.DefaultPolicy())
	}
	if d.LockTTL <= 0 {
		d.LockTTL = DefaultLockTTL
	}
	return d
}

// Result is returned by every command.
type Result struct {
	LineageID     string
	Status        thesis.Status
	PreviousState thesis.Status
	VersionNumber int
	ProgressStep  int
	Revision      int64
	Decision      *eligibility.Decision
	Events        []shared.Event
	At            time.Time
}

func resultOf(tr *thesis.Transition, at time.Time) *Result {
	return &Result{
		LineageID:     tr.Thesis.Lineage.ID.String(),
		Status:        tr.To,
		PreviousState: tr.From,
		VersionNumber: tr.Thesis.State.CurrentVersion,
		ProgressStep:  tr.Thesis.ProgressStep(),
		Revision:      tr.Thesis.Revision,
		Decision:      tr.Decision,
		Events:        tr.Events,
		At:            at,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EXECUTOR
// ══════════════════════════════════════════════════════════════════════════════

// applyFunc runs the domain transition against a loaded lineage.
type applyFunc func(ctx context.Context, now time.Time) (*thesis.Transition, error)

// executor holds the shell common to all commands.
type executor struct {
	deps Deps
	log  *logger.Logger
}

func newExecutor(deps Deps, name string) executor {
	deps = deps.withDefaults()
	return executor{deps: deps, log: deps.Logger.With(logger.Component("command"), logger.Operation(name))}
}

// run locks the lineage, applies the transition and commits it.
func (e executor) run(ctx context.Context, op thesis.Operation, id shared.LineageID, apply applyFunc) (res *Result, err error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "command."+op.String(), id.String())
	defer func() {
		telemetry.EndSpan(span, err)
		e.deps.Metrics.RecordTransition(op.String(), outcomeOf(err))
	}()

	unlock, err := e.deps.Locker.Lock(ctx, id, e.deps.LockTTL)
	if err != nil {
		if errors.Is(err, shared.ErrLineageLocked) {
			e.deps.Metrics.RecordLockContention()
		}
		return nil, err
	}
	defer func() {
		if uerr := unlock(context.WithoutCancel(ctx)); uerr != nil {
			e.log.Warn("lineage unlock failed", logger.LineageID(id.String()), logger.Err(uerr))
		}
	}()

	now := e.deps.Clock.Now()
	tr, err := apply(ctx, now)
	if err != nil {
		e.logFailure(id, err)
		return nil, err
	}

	if err := e.deps.Repo.Save(ctx, tr); err != nil {
		e.logFailure(id, err)
		return nil, fmt.Errorf("%s: save: %w", op, err)
	}

	e.commit(ctx, tr)

	e.log.Info("thesis transition applied",
		logger.LineageID(id.String()),
		logger.String("from", tr.From.String()),
		logger.Status(tr.To.String()),
		logger.VersionNumber(tr.Thesis.State.CurrentVersion),
		logger.Latency(time.Since(start)),
	)
	return resultOf(tr, now), nil
}

// commit runs the post-save side effects. The transition is already durable,
// so failures here are logged and never returned.
func (e executor) commit(ctx context.Context, tr *thesis.Transition) {
	id := tr.Thesis.Lineage.ID.String()
	if e.deps.Cache != nil {
		if err := e.deps.Cache.Invalidate(ctx, id); err != nil {
			e.log.Warn("thesis cache invalidation failed", logger.LineageID(id), logger.Err(err))
		}
	}
	if e.deps.Publisher == nil {
		return
	}
	for _, event := range tr.Events {
		if err := e.deps.Publisher.Publish(event); err != nil {
			e.log.Error("event publish failed",
				logger.LineageID(id),
				logger.String("event_type", string(event.EventType())),
				logger.Err(err),
			)
		}
	}
}

func (e executor) logFailure(id shared.LineageID, err error) {
	fields := []logger.Field{logger.LineageID(id.String()), logger.Err(err)}
	switch {
	case shared.IsDefect(err):
		e.log.Error("thesis transition defect", fields...)
	case shared.IsConflict(err):
		e.log.Warn("thesis transition conflict", fields...)
	default:
		e.log.Debug("thesis transition refused", fields...)
	}
}

// activeEvent fetches events fresh and selects the active one. A nil event
// means no window is open; the machine turns that into a denial.
func (e executor) activeEvent(ctx context.Context, department string, category schedule.Category, now time.Time) (*schedule.SchedulingEvent, error) {
	events, err := e.deps.Events.ListEvents(ctx, department)
	if err != nil {
		return nil, shared.WrapError("schedule", "List", shared.ErrServiceUnavailable, "scheduling events are unavailable", err)
	}
	event, ok := schedule.SelectActiveEvent(schedule.ForDepartment(events, department), category, now)
	if !ok {
		e.deps.Metrics.RecordEligibility(category.String(), eligibility.ReasonNoActiveEvent.String())
		return nil, nil
	}
	decision := e.deps.Machine.Policy().Evaluate(now, &event)
	e.deps.Metrics.RecordEligibility(category.String(), decision.Reason.String())
	return &event, nil
}

// outcomeOf maps an error to a metrics label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, shared.ErrEligibilityDenied):
		return "denied"
	case errors.Is(err, shared.ErrStateTransition):
		return "invalid_transition"
	case shared.IsConflict(err):
		return "conflict"
	case shared.IsNotFound(err):
		return "not_found"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	case shared.IsValidation(err):
		return "invalid"
	default:
		return "error"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHORIZATION
// ══════════════════════════════════════════════════════════════════════════════

func forbidden(op thesis.Operation, msg string) error {
	return shared.NewDomainError("thesis", string(op), shared.ErrForbidden, msg)
}

// authorizeOwner allows the owning student and administrators.
func authorizeOwner(op thesis.Operation, actor thesis.Actor, studentID shared.UserID) error {
	if actor.Role == thesis.RoleAdmin {
		return nil
	}
	if actor.Role != thesis.RoleStudent || actor.ID != studentID {
		return forbidden(op, "only the owning student may do this")
	}
	return nil
}

// authorizeReviewer allows the bound supervisor and administrators.
func authorizeReviewer(op thesis.Operation, actor thesis.Actor, lineage thesis.Lineage) error {
	if actor.Role == thesis.RoleAdmin {
		return nil
	}
	if actor.Role != thesis.RoleSupervisor || !lineage.IsSupervisedBy(actor.ID) {
		return forbidden(op, "only the assigned supervisor may do this")
	}
	return nil
}
