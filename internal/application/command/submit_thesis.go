package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT THESIS COMMAND
// First submission of a student's thesis. Creates the lineage, binds the
// supervisor and appends version 1.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitThesisCommand contains the data for a first submission.
type SubmitThesisCommand struct {
	// StudentID is the owner of the new lineage.
	StudentID string

	// SupervisorID is the reviewer bound to the lineage.
	SupervisorID string

	// Department selects which scheduling events apply.
	Department string

	// FileRef points at the uploaded document. Storage is external.
	FileRef string

	// Actor is the authenticated caller.
	Actor thesis.Actor
}

// Validate validates the command.
func (c SubmitThesisCommand) Validate() error {
	if strings.TrimSpace(c.StudentID) == "" {
		return shared.NewDomainError("thesis", "Submit", shared.ErrInvalidInput, "student_id is required")
	}
	if strings.TrimSpace(c.SupervisorID) == "" {
		return shared.NewDomainError("thesis", "Submit", shared.ErrInvalidInput, "supervisor_id is required")
	}
	if strings.TrimSpace(c.FileRef) == "" {
		return shared.ErrEmptyFileRef
	}
	return c.Actor.Validate()
}

// SubmitThesisHandler handles SubmitThesisCommand.
type SubmitThesisHandler struct {
	executor
}

// NewSubmitThesisHandler creates a new SubmitThesisHandler.
func NewSubmitThesisHandler(deps Deps) *SubmitThesisHandler {
	return &SubmitThesisHandler{executor: newExecutor(deps, "submit_thesis")}
}

// Handle executes the submission.
func (h *SubmitThesisHandler) Handle(ctx context.Context, cmd SubmitThesisCommand) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	studentID := shared.UserID(strings.TrimSpace(cmd.StudentID))
	if err := authorizeOwner(thesis.OpSubmit, cmd.Actor, studentID); err != nil {
		return nil, err
	}

	id := LineageIDForStudent(studentID)
	return h.run(ctx, thesis.OpSubmit, id, func(ctx context.Context, now time.Time) (*thesis.Transition, error) {
		current, err := h.load(ctx, id, cmd, now)
		if err != nil {
			return nil, err
		}

		// An existing lineage is refused by the machine before events are read.
		if _, ok := thesis.NextStatus(current.State.Status, thesis.OpSubmit); !ok {
			return nil, &thesis.TransitionError{From: current.State.Status, Op: thesis.OpSubmit}
		}

		event, err := h.activeEvent(ctx, current.Lineage.Department, schedule.CategorySubmission, now)
		if err != nil {
			return nil, err
		}
		return h.deps.Machine.Submit(current, thesis.SubmitParams{
			FileRef:      strings.TrimSpace(cmd.FileRef),
			SupervisorID: shared.UserID(strings.TrimSpace(cmd.SupervisorID)),
			Actor:        cmd.Actor,
			Now:          now,
			Event:        event,
		})
	})
}

// load returns the stored lineage or a fresh draft.
func (h *SubmitThesisHandler) load(ctx context.Context, id shared.LineageID, cmd SubmitThesisCommand, now time.Time) (*thesis.Thesis, error) {
	current, err := h.deps.Repo.Get(ctx, id)
	if err == nil {
		return current, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}
	return thesis.NewDraft(thesis.NewDraftParams{
		ID:         id.String(),
		StudentID:  cmd.StudentID,
		Department: cmd.Department,
		CreatedAt:  now,
	})
}
