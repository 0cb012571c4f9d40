package command

import (
	"context"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW THESIS COMMAND
// Final decision on the current version: approve or reject.
// ══════════════════════════════════════════════════════════════════════════════

// Decision is the reviewer's verdict.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ReviewThesisCommand contains the reviewer's decision.
type ReviewThesisCommand struct {
	LineageID string
	Decision  Decision
	Comments  string
	Actor     thesis.Actor
}

// Validate validates the command.
func (c ReviewThesisCommand) Validate() error {
	if _, err := shared.NewLineageID(c.LineageID); err != nil {
		return err
	}
	if c.Decision != DecisionApprove && c.Decision != DecisionReject {
		return shared.NewDomainError("thesis", "Review", shared.ErrInvalidInput, "decision must be approve or reject")
	}
	return c.Actor.Validate()
}

func (c ReviewThesisCommand) operation() thesis.Operation {
	if c.Decision == DecisionApprove {
		return thesis.OpApprove
	}
	return thesis.OpReject
}

// ReviewThesisHandler handles ReviewThesisCommand.
type ReviewThesisHandler struct {
	executor
}

// NewReviewThesisHandler creates a new ReviewThesisHandler.
func NewReviewThesisHandler(deps Deps) *ReviewThesisHandler {
	return &ReviewThesisHandler{executor: newExecutor(deps, "review_thesis")}
}

// Handle executes the review.
func (h *ReviewThesisHandler) Handle(ctx context.Context, cmd ReviewThesisCommand) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	// Locks and store keys use the canonical form only.
	id, err := shared.NewLineageID(cmd.LineageID)
	if err != nil {
		return nil, err
	}
	op := cmd.operation()

	return h.run(ctx, op, id, func(ctx context.Context, now time.Time) (*thesis.Transition, error) {
		current, err := h.deps.Repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := authorizeReviewer(op, cmd.Actor, current.Lineage); err != nil {
			return nil, err
		}
		comments := strings.TrimSpace(cmd.Comments)
		if op == thesis.OpApprove {
			return h.deps.Machine.Approve(current, cmd.Actor, comments, now)
		}
		return h.deps.Machine.Reject(current, cmd.Actor, comments, now)
	})
}
