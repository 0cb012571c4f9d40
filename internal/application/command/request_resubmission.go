package command

import (
	"context"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST RESUBMISSION COMMAND
// The supervisor sends the current version back with a reason.
// ══════════════════════════════════════════════════════════════════════════════

// RequestResubmissionCommand contains the change request.
type RequestResubmissionCommand struct {
	LineageID string
	Reason    string
	Actor     thesis.Actor
}

// Validate validates the command.
func (c RequestResubmissionCommand) Validate() error {
	if _, err := shared.NewLineageID(c.LineageID); err != nil {
		return err
	}
	if strings.TrimSpace(c.Reason) == "" {
		return shared.NewDomainError("thesis", "RequestResubmission", shared.ErrEmptyValue, "reason is required")
	}
	return c.Actor.Validate()
}

// RequestResubmissionHandler handles RequestResubmissionCommand.
type RequestResubmissionHandler struct {
	executor
	workflow *thesis.Workflow
}

// NewRequestResubmissionHandler creates a new RequestResubmissionHandler.
func NewRequestResubmissionHandler(deps Deps) *RequestResubmissionHandler {
	ex := newExecutor(deps, "request_resubmission")
	return &RequestResubmissionHandler{executor: ex, workflow: thesis.NewWorkflow(ex.deps.Machine)}
}

// Handle executes the change request.
func (h *RequestResubmissionHandler) Handle(ctx context.Context, cmd RequestResubmissionCommand) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	// Locks and store keys use the canonical form only.
	id, err := shared.NewLineageID(cmd.LineageID)
	if err != nil {
		return nil, err
	}

	return h.run(ctx, thesis.OpRequestResubmission, id, func(ctx context.Context, now time.Time) (*thesis.Transition, error) {
		current, err := h.deps.Repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorizeReviewer(thesis.OpRequestResubmission, cmd.Actor, current.Lineage); err != nil {
			return nil, err
		}
		return h.workflow.RequestChanges(current, cmd.Reason, cmd.Actor, now)
	})
}
