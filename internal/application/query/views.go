// Package query contains read operations (CQRS - Queries).
// Queries never change state and may be served from caches.
package query

import (
	"context"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// ══════════════════════════════════════════════════════════════════════════════
// READ VIEWS
// ══════════════════════════════════════════════════════════════════════════════

// ViewCache stores ThesisView values by lineage id.
type ViewCache interface {
	Get(ctx context.Context, lineageID string, dest any) (bool, error)
	Set(ctx context.Context, lineageID string, view any) error
}

// ThesisView is the read model of one lineage.
type ThesisView struct {
	LineageID    string `json:"lineage_id"`
	StudentID    string `json:"student_id"`
	SupervisorID string `json:"supervisor_id,omitempty"`
	Department   string `json:"department"`

	Status         string `json:"status"`
	CurrentVersion int    `json:"current_version_number"`
	ProgressStep   int    `json:"progress_step"`
	ProgressSteps  int    `json:"progress_steps"`

	ResubmissionReason      string     `json:"resubmission_reason,omitempty"`
	ResubmissionRequestedAt *time.Time `json:"resubmission_requested_at,omitempty"`

	AllowedOperations []string `json:"allowed_operations"`

	Versions []VersionView `json:"versions"`
	History  []HistoryView `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Revision  int64     `json:"revision"`
}

// VersionView is one entry of the version ledger.
type VersionView struct {
	Number           int       `json:"version_number"`
	FileRef          string    `json:"file_ref"`
	IsResubmission   bool      `json:"is_resubmission"`
	StatusAtCreation string    `json:"status_at_creation"`
	CreatedAt        time.Time `json:"created_at"`
}

// HistoryView is one audit trail entry.
type HistoryView struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Comments      string    `json:"comments,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	VersionNumber int       `json:"version_number"`
}

// NewThesisView builds the read model from the aggregate.
func NewThesisView(t *thesis.Thesis) ThesisView {
	view := ThesisView{
		LineageID:               t.Lineage.ID.String(),
		StudentID:               t.Lineage.StudentID.String(),
		SupervisorID:            t.Lineage.SupervisorID.String(),
		Department:              t.Lineage.Department,
		Status:                  t.State.Status.String(),
		CurrentVersion:          t.State.CurrentVersion,
		ProgressStep:            t.ProgressStep(),
		ProgressSteps:           thesis.ProgressSteps,
		ResubmissionReason:      t.State.ResubmissionReason,
		ResubmissionRequestedAt: t.State.ResubmissionRequestedAt,
		CreatedAt:               t.Lineage.CreatedAt,
		UpdatedAt:               t.State.UpdatedAt,
		Revision:                t.Revision,
	}

	ops := thesis.AllowedOperations(t.State.Status)
	view.AllowedOperations = make([]string, 0, len(ops))
	for _, op := range ops {
		view.AllowedOperations = append(view.AllowedOperations, op.String())
	}

	versions := t.Ledger.Versions()
	view.Versions = make([]VersionView, 0, len(versions))
	for _, v := range versions {
		view.Versions = append(view.Versions, newVersionView(v))
	}

	view.History = make([]HistoryView, 0, len(t.History))
	for _, h := range t.History {
		view.History = append(view.History, HistoryView{
			Status:        h.Status.String(),
			Timestamp:     h.Timestamp,
			Comments:      h.Comments,
			ActorID:       h.ActorID.String(),
			VersionNumber: h.VersionNumber,
		})
	}
	return view
}

func newVersionView(v thesis.Version) VersionView {
	return VersionView{
		Number:           v.Number,
		FileRef:          v.FileRef,
		IsResubmission:   v.IsResubmission,
		StatusAtCreation: v.StatusAtCreation.String(),
		CreatedAt:        v.CreatedAt,
	}
}

// canRead allows the owner, the bound supervisor and administrators.
func canRead(actor thesis.Actor, studentID, supervisorID string) error {
	if err := actor.Validate(); err != nil {
		return err
	}
	switch {
	case actor.Role == thesis.RoleAdmin:
		return nil
	case actor.Role == thesis.RoleStudent && actor.ID.String() == studentID:
		return nil
	case actor.Role == thesis.RoleSupervisor && supervisorID != "" && actor.ID.String() == supervisorID:
		return nil
	}
	return shared.NewDomainError("thesis", "Read", shared.ErrForbidden, "not allowed to read this thesis")
}
