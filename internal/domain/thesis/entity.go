package thesis

import (
	"fmt"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINEAGE
// ══════════════════════════════════════════════════════════════════════════════

// Lineage - идентичность одной диссертации через все её версии.
type Lineage struct {
	ID        shared.LineageID `json:"lineage_id"`
	StudentID shared.UserID    `json:"student_id"`

	// SupervisorID пуст до первой подачи.
	SupervisorID shared.UserID `json:"supervisor_id,omitempty"`

	Department string    `json:"department"`
	CreatedAt  time.Time `json:"created_at"`
}

// IsSupervisedBy проверяет, что пользователь - назначенный руководитель.
func (l Lineage) IsSupervisedBy(id shared.UserID) bool {
	return !l.SupervisorID.IsEmpty() && l.SupervisorID == id
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE STATE
// ══════════════════════════════════════════════════════════════════════════════

// LifecycleState - текущее состояние линии.
type LifecycleState struct {
	Status         Status `json:"status"`
	CurrentVersion int    `json:"current_version_number"`

	// ResubmissionReason заполнен только в статусе resubmission_requested.
	ResubmissionReason      string     `json:"resubmission_reason,omitempty"`
	ResubmissionRequestedAt *time.Time `json:"resubmission_requested_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HistoryEntry - запись аудита. Только добавляется, не меняется и не удаляется.
type HistoryEntry struct {
	LineageID     shared.LineageID `json:"lineage_id"`
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Comments      string           `json:"comments,omitempty"`
	ActorID       shared.UserID    `json:"actor_id,omitempty"`
	VersionNumber int              `json:"version_number"`
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE: THESIS
// ══════════════════════════════════════════════════════════════════════════════

// Thesis - агрегат: линия, состояние, журнал версий и история.
type Thesis struct {
	Lineage Lineage
	State   LifecycleState
	Ledger  Ledger
	History []HistoryEntry

	// Revision - номер ревизии для оптимистической блокировки.
	// 0 означает, что агрегат ещё не сохранён.
	Revision int64
}

// NewDraftParams - параметры для создания черновика.
type NewDraftParams struct {
	ID         string
	StudentID  string
	Department string
	CreatedAt  time.Time
}

// NewDraft создаёт линию в статусе not_submitted. Черновик не сохраняется
// до первой успешной подачи.
func NewDraft(params NewDraftParams) (*Thesis, error) {
	id, err := shared.NewLineageID(params.ID)
	if err != nil {
		return nil, err
	}
	studentID, err := shared.NewUserID(params.StudentID)
	if err != nil {
		return nil, err
	}
	if params.CreatedAt.IsZero() {
		return nil, shared.NewDomainError("thesis", "NewDraft", shared.ErrEmptyValue, "created_at is required")
	}

	return &Thesis{
		Lineage: Lineage{
			ID:         id,
			StudentID:  studentID,
			Department: strings.TrimSpace(params.Department),
			CreatedAt:  params.CreatedAt,
		},
		State: LifecycleState{
			Status:    StatusNotSubmitted,
			UpdatedAt: params.CreatedAt,
		},
	}, nil
}

// RestoreParams - сохранённое состояние линии.
type RestoreParams struct {
	Lineage  Lineage
	State    LifecycleState
	Versions []Version
	History  []HistoryEntry
	Revision int64
}

// Restore собирает агрегат из хранилища и проверяет инварианты.
// Нарушение возвращается как ErrInvariantViolation.
func Restore(params RestoreParams) (*Thesis, error) {
	ledger, err := NewLedger(params.Lineage.ID, params.Versions)
	if err != nil {
		return nil, err
	}
	history := make([]HistoryEntry, len(params.History))
	copy(history, params.History)

	t := &Thesis{
		Lineage:  params.Lineage,
		State:    params.State,
		Ledger:   ledger,
		History:  history,
		Revision: params.Revision,
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate проверяет согласованность состояния и журнала.
func (t *Thesis) Validate() error {
	s := t.State
	switch {
	case !s.Status.IsPersistent():
		return invariantError(fmt.Sprintf("status %q cannot be stored", s.Status))
	case (s.Status == StatusNotSubmitted) != (s.CurrentVersion == 0):
		return invariantError(fmt.Sprintf("status %q with current version %d", s.Status, s.CurrentVersion))
	case s.CurrentVersion != t.Ledger.Len():
		return invariantError(fmt.Sprintf("current version %d but ledger has %d", s.CurrentVersion, t.Ledger.Len()))
	case (s.Status == StatusResubmissionRequested) != (s.ResubmissionReason != ""):
		return invariantError("resubmission reason must be present exactly while resubmission is requested")
	case s.CurrentVersion > 0 && t.Lineage.SupervisorID.IsEmpty():
		return invariantError("submitted thesis has no supervisor")
	}
	return nil
}

// CurrentVersion возвращает текущую версию, если она есть.
func (t *Thesis) CurrentVersion() (Version, bool) {
	return t.Ledger.Current()
}

// ProgressStep возвращает шаг индикатора для текущего статуса.
func (t *Thesis) ProgressStep() int {
	return ProgressStep(t.State.Status)
}

// Clone возвращает глубокую копию агрегата.
func (t *Thesis) Clone() *Thesis {
	c := *t
	c.History = make([]HistoryEntry, len(t.History))
	copy(c.History, t.History)
	if t.State.ResubmissionRequestedAt != nil {
		at := *t.State.ResubmissionRequestedAt
		c.State.ResubmissionRequestedAt = &at
	}
	return &c
}

func invariantError(msg string) error {
	return shared.NewDomainError("thesis", "Validate", shared.ErrInvariantViolation, msg)
}
