package thesis

import (
	"strings"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status определяет текущий статус диссертации.
type Status string

const (
	// StatusNotSubmitted - версий ещё нет.
	StatusNotSubmitted Status = "not_submitted"
	// StatusUnderReview - текущая версия на проверке у руководителя.
	StatusUnderReview Status = "under_review"
	// StatusApproved - работа принята (терминальный).
	StatusApproved Status = "approved"
	// StatusRejected - работа отклонена (терминальный).
	StatusRejected Status = "rejected"
	// StatusResubmissionRequested - руководитель запросил доработку.
	StatusResubmissionRequested Status = "resubmission_requested"

	// StatusSubmitted - метка первой подачи. Сразу переходит в under_review
	// и встречается только в истории.
	StatusSubmitted Status = "submitted"
	// StatusResubmitted - метка повторной подачи, аналогично StatusSubmitted.
	StatusResubmitted Status = "resubmitted"
)

// IsValid проверяет, что статус корректен (включая метки истории).
func (s Status) IsValid() bool {
	switch s {
	case StatusNotSubmitted, StatusUnderReview, StatusApproved, StatusRejected,
		StatusResubmissionRequested, StatusSubmitted, StatusResubmitted:
		return true
	default:
		return false
	}
}

// IsPersistent возвращает true для статусов, в которых может находиться линия.
func (s Status) IsPersistent() bool {
	switch s {
	case StatusNotSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusResubmissionRequested:
		return true
	default:
		return false
	}
}

// IsTerminal возвращает true, если из статуса нет переходов.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// ParseStatus разбирает статус из строки.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", shared.NewDomainError("thesis", "ParseStatus", shared.ErrInvalidInput, "unknown status "+s)
	}
	return st, nil
}

// ProgressStep отображает статус в четырёхшаговый индикатор прогресса (0..3).
// Только для отображения, на переходы не влияет.
// rejected намеренно совпадает с not_submitted.
func ProgressStep(s Status) int {
	switch s {
	case StatusSubmitted, StatusResubmitted, StatusResubmissionRequested:
		return 1
	case StatusUnderReview:
		return 2
	case StatusApproved:
		return 3
	default:
		return 0
	}
}

// ProgressSteps - количество шагов индикатора.
const ProgressSteps = 4

// ══════════════════════════════════════════════════════════════════════════════
// OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Operation определяет операцию, меняющую статус.
type Operation string

const (
	OpSubmit              Operation = "submit"
	OpApprove             Operation = "approve"
	OpReject              Operation = "reject"
	OpRequestResubmission Operation = "request_resubmission"
	OpResubmit            Operation = "resubmit"
)

// String возвращает строковое представление операции.
func (o Operation) String() string {
	return string(o)
}

// operationOrder фиксирует порядок для AllowedOperations.
var operationOrder = []Operation{OpSubmit, OpApprove, OpReject, OpRequestResubmission, OpResubmit}

// transitions - таблица допустимых переходов: статус -> операция -> новый статус.
var transitions = map[Status]map[Operation]Status{
	StatusNotSubmitted: {
		OpSubmit: StatusUnderReview,
	},
	StatusUnderReview: {
		OpApprove:             StatusApproved,
		OpReject:              StatusRejected,
		OpRequestResubmission: StatusResubmissionRequested,
	},
	StatusResubmissionRequested: {
		OpResubmit: StatusUnderReview,
	},
	StatusApproved: {},
	StatusRejected: {},
}

// NextStatus возвращает целевой статус для операции или false,
// если операция недопустима из from.
func NextStatus(from Status, op Operation) (Status, bool) {
	to, ok := transitions[from][op]
	return to, ok
}

// AllowedOperations возвращает операции, допустимые из статуса.
func AllowedOperations(from Status) []Operation {
	out := make([]Operation, 0, 3)
	for _, op := range operationOrder {
		if _, ok := transitions[from][op]; ok {
			out = append(out, op)
		}
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTOR
// ══════════════════════════════════════════════════════════════════════════════

// Role определяет роль действующего пользователя.
type Role string

const (
	RoleStudent    Role = "student"
	RoleSupervisor Role = "supervisor"
	RoleAdmin      Role = "admin"
)

// IsValid проверяет, что роль известна.
func (r Role) IsValid() bool {
	return r == RoleStudent || r == RoleSupervisor || r == RoleAdmin
}

// Actor - пользователь, выполняющий операцию. Ядро не проверяет права,
// но требует актора, чтобы слой авторизации мог быть построен вокруг него.
type Actor struct {
	ID   shared.UserID
	Role Role
}

// Validate проверяет, что актор указан.
func (a Actor) Validate() error {
	if !a.ID.IsValid() || !a.Role.IsValid() {
		return shared.ErrMissingActor
	}
	return nil
}

// IsPrivileged возвращает true для ролей, которым разрешены операции проверки.
func (a Actor) IsPrivileged() bool {
	return a.Role == RoleSupervisor || a.Role == RoleAdmin
}
