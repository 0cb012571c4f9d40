package command

import (
	"context"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT REVISION COMMAND
// The student answers a change request with a new version inside the
// resubmission window. Earlier versions stay untouched.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitRevisionCommand contains the revised document.
type SubmitRevisionCommand struct {
	LineageID string
	FileRef   string
	Actor     thesis.Actor
}

// Validate validates the command.
func (c SubmitRevisionCommand) Validate() error {
	if _, err := shared.NewLineageID(c.LineageID); err != nil {
		return err
	}
	if strings.TrimSpace(c.FileRef) == "" {
		return shared.ErrEmptyFileRef
	}
	return c.Actor.Validate()
}

// SubmitRevisionHandler handles SubmitRevisionCommand.
type SubmitRevisionHandler struct {
	executor
	workflow *thesis.Workflow
}

// NewSubmitRevisionHandler creates a new SubmitRevisionHandler.
func NewSubmitRevisionHandler(deps Deps) *SubmitRevisionHandler {
	ex := newExecutor(deps, "submit_revision")
	return &SubmitRevisionHandler{executor: ex, workflow: thesis.NewWorkflow(ex.deps.Machine)}
}

// Handle executes the resubmission.
func (h *SubmitRevisionHandler) Handle(ctx context.Context, cmd SubmitRevisionCommand) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	// Locks and store keys use the canonical form only.
	id, err := shared.NewLineageID(cmd.LineageID)
	if err != nil {
		return nil, err
	}

	return h.run(ctx, thesis.OpResubmit, id, func(ctx context.Context, now time.Time) (*thesis.Transition, error) {
		current, err := h.deps.Repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorizeOwner(thesis.OpResubmit, cmd.Actor, current.Lineage.StudentID); err != nil {
			return nil, err
		}
		if _, ok := thesis.NextStatus(current.State.Status, thesis.OpResubmit); !ok {
			return nil, &thesis.TransitionError{From: current.State.Status, Op: thesis.OpResubmit}
		}

		event, err := h.activeEvent(ctx, current.Lineage.Department, schedule.CategoryResubmission, now)
		if err != nil {
			return nil, err
		}
		return h.workflow.SubmitRevision(current, strings.TrimSpace(cmd.FileRef), cmd.Actor, now, event)
	})
}
