package thesis

import (
	"fmt"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// TransitionError - операция недопустима из текущего статуса.
type TransitionError struct {
	From Status
	Op   Operation
}

// Error реализует интерфейс error.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("thesis: operation %q is not allowed from status %q", e.Op, e.From)
}

// Is сопоставляет ошибку с shared.ErrStateTransition.
func (e *TransitionError) Is(target error) bool {
	return target == shared.ErrStateTransition
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION
// ══════════════════════════════════════════════════════════════════════════════

// Transition - результат успешной операции: новое состояние и всё, что
// вызывающая сторона должна сохранить и опубликовать.
type Transition struct {
	Op   Operation
	From Status
	To   Status

	// Thesis - новое состояние агрегата. Исходный агрегат не меняется.
	Thesis *Thesis

	// Version - новая версия для submit/resubmit, иначе nil.
	Version *Version

	// Entry - новая запись истории.
	Entry HistoryEntry

	Events []shared.Event

	// ExpectedRevision - ревизия, с которой было прочитано состояние.
	ExpectedRevision int64

	// Decision - результат проверки допустимости для submit/resubmit.
	Decision *eligibility.Decision
}

// ══════════════════════════════════════════════════════════════════════════════
// MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// Machine проверяет и применяет переходы. Не хранит состояния между вызовами
// и безопасна для параллельного использования.
type Machine struct {
	policy eligibility.Policy
}

// NewMachine создаёт машину состояний с заданной политикой окна.
func NewMachine(policy eligibility.Policy) *Machine {
	return &Machine{policy: policy}
}

// Policy возвращает политику окна.
func (m *Machine) Policy() eligibility.Policy {
	return m.policy
}

// SubmitParams - параметры первой подачи.
type SubmitParams struct {
	FileRef      string
	SupervisorID shared.UserID
	Actor        Actor
	Now          time.Time

	// Event - активное событие категории submission, nil если его нет.
	Event *schedule.SchedulingEvent
}

// Submit выполняет первую подачу: not_submitted -> under_review.
func (m *Machine) Submit(t *Thesis, p SubmitParams) (*Transition, error) {
	to, err := m.begin(t, p.Actor, OpSubmit)
	if err != nil {
		return nil, err
	}
	if !p.SupervisorID.IsValid() {
		return nil, shared.NewDomainError("thesis", "Submit", shared.ErrInvalidInput, "supervisor is required")
	}
	decision, err := m.checkEligibility(p.Now, p.Event)
	if err != nil {
		return nil, err
	}

	ledger, version, err := t.Ledger.Append(t.Lineage.ID, p.FileRef, false, p.Now)
	if err != nil {
		return nil, err
	}

	next := t.Clone()
	next.Lineage.SupervisorID = p.SupervisorID
	next.Ledger = ledger
	next.State = LifecycleState{
		Status:         to,
		CurrentVersion: version.Number,
		UpdatedAt:      p.Now,
	}
	entry := next.record(StatusSubmitted, p.Now, "", p.Actor.ID, version.Number)

	event := shared.NewThesisSubmittedEvent(
		next.Lineage.ID.String(), next.Lineage.StudentID.String(), p.SupervisorID.String(),
		version.Number, version.FileRef, p.Event.ID, p.Now,
	)
	return m.finish(t, next, OpSubmit, &version, entry, &decision, event), nil
}

// Approve принимает работу: under_review -> approved.
func (m *Machine) Approve(t *Thesis, actor Actor, comments string, now time.Time) (*Transition, error) {
	to, err := m.begin(t, actor, OpApprove)
	if err != nil {
		return nil, err
	}
	next := t.Clone()
	next.State.Status = to
	next.State.UpdatedAt = now
	entry := next.record(to, now, strings.TrimSpace(comments), actor.ID, next.State.CurrentVersion)

	event := shared.NewThesisApprovedEvent(
		next.Lineage.ID.String(), next.Lineage.StudentID.String(), actor.ID.String(),
		next.State.CurrentVersion, entry.Comments, now,
	)
	return m.finish(t, next, OpApprove, nil, entry, nil, event), nil
}

// Reject отклоняет работу: under_review -> rejected.
func (m *Machine) Reject(t *Thesis, actor Actor, comments string, now time.Time) (*Transition, error) {
	to, err := m.begin(t, actor, OpReject)
	if err != nil {
		return nil, err
	}
	next := t.Clone()
	next.State.Status = to
	next.State.UpdatedAt = now
	entry := next.record(to, now, strings.TrimSpace(comments), actor.ID, next.State.CurrentVersion)

	event := shared.NewThesisRejectedEvent(
		next.Lineage.ID.String(), next.Lineage.StudentID.String(), actor.ID.String(),
		next.State.CurrentVersion, entry.Comments, now,
	)
	return m.finish(t, next, OpReject, nil, entry, nil, event), nil
}

// RequestResubmission запрашивает доработку: under_review -> resubmission_requested.
// Причина обязательна и попадает в комментарий записи истории.
func (m *Machine) RequestResubmission(t *Thesis, actor Actor, reason string, now time.Time) (*Transition, error) {
	to, err := m.begin(t, actor, OpRequestResubmission)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, shared.NewDomainError("thesis", "RequestResubmission", shared.ErrEmptyValue, "reason is required")
	}

	next := t.Clone()
	requestedAt := now
	next.State.Status = to
	next.State.ResubmissionReason = reason
	next.State.ResubmissionRequestedAt = &requestedAt
	next.State.UpdatedAt = now
	entry := next.record(to, now, reason, actor.ID, next.State.CurrentVersion)

	event := shared.NewResubmissionRequestedEvent(
		next.Lineage.ID.String(), next.Lineage.StudentID.String(), actor.ID.String(),
		next.State.CurrentVersion, reason, now,
	)
	return m.finish(t, next, OpRequestResubmission, nil, entry, nil, event), nil
}

// ResubmitParams - параметры повторной подачи.
type ResubmitParams struct {
	FileRef string
	Actor   Actor
	Now     time.Time

	// Event - активное событие категории resubmission, nil если его нет.
	Event *schedule.SchedulingEvent
}

// Resubmit добавляет новую версию: resubmission_requested -> under_review.
// Прошлые версии остаются в журнале без изменений.
func (m *Machine) Resubmit(t *Thesis, p ResubmitParams) (*Transition, error) {
	to, err := m.begin(t, p.Actor, OpResubmit)
	if err != nil {
		return nil, err
	}
	decision, err := m.checkEligibility(p.Now, p.Event)
	if err != nil {
		return nil, err
	}

	ledger, version, err := t.Ledger.Append(t.Lineage.ID, p.FileRef, true, p.Now)
	if err != nil {
		return nil, err
	}

	previous := t.State.CurrentVersion
	next := t.Clone()
	next.Ledger = ledger
	next.State = LifecycleState{
		Status:         to,
		CurrentVersion: version.Number,
		UpdatedAt:      p.Now,
	}
	entry := next.record(StatusResubmitted, p.Now, "", p.Actor.ID, version.Number)

	event := shared.NewThesisResubmittedEvent(
		next.Lineage.ID.String(), next.Lineage.StudentID.String(),
		version.Number, previous, version.FileRef, p.Event.ID, p.Now,
	)
	return m.finish(t, next, OpResubmit, &version, entry, &decision, event), nil
}

// begin проверяет актора и допустимость перехода до любых других проверок.
func (m *Machine) begin(t *Thesis, actor Actor, op Operation) (Status, error) {
	if t == nil {
		return "", shared.NewDomainError("thesis", string(op), shared.ErrInvalidInput, "thesis is required")
	}
	if err := actor.Validate(); err != nil {
		return "", err
	}
	to, ok := NextStatus(t.State.Status, op)
	if !ok {
		return "", &TransitionError{From: t.State.Status, Op: op}
	}
	return to, nil
}

// checkEligibility выполняет окончательную проверку окна. Вызывается
// строго до изменения состояния.
func (m *Machine) checkEligibility(now time.Time, event *schedule.SchedulingEvent) (eligibility.Decision, error) {
	decision := m.policy.Evaluate(now, event)
	if !decision.Allowed {
		return decision, decision.Err()
	}
	return decision, nil
}

func (m *Machine) finish(prev, next *Thesis, op Operation, v *Version, entry HistoryEntry, d *eligibility.Decision, events ...shared.Event) *Transition {
	next.Revision = prev.Revision + 1
	return &Transition{
		Op:               op,
		From:             prev.State.Status,
		To:               next.State.Status,
		Thesis:           next,
		Version:          v,
		Entry:            entry,
		Events:           events,
		ExpectedRevision: prev.Revision,
		Decision:         d,
	}
}

// record добавляет запись истории в агрегат и возвращает её.
func (t *Thesis) record(status Status, at time.Time, comments string, actor shared.UserID, version int) HistoryEntry {
	entry := HistoryEntry{
		LineageID:     t.Lineage.ID,
		Status:        status,
		Timestamp:     at,
		Comments:      comments,
		ActorID:       actor,
		VersionNumber: version,
	}
	t.History = append(t.History, entry)
	return entry
}
