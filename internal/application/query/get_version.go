package query

import (
	"context"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// GetVersionQuery selects one version of a lineage.
type GetVersionQuery struct {
	LineageID string
	Number    int
	Actor     thesis.Actor
}

// Validate validates the query.
func (q GetVersionQuery) Validate() error {
	if _, err := shared.NewLineageID(q.LineageID); err != nil {
		return err
	}
	if q.Number < 1 {
		return shared.NewDomainError("thesis", "GetVersion", shared.ErrInvalidInput, "version number starts at 1")
	}
	return q.Actor.Validate()
}

// GetVersionHandler handles GetVersionQuery. It always reads the store.
type GetVersionHandler struct {
	repo thesis.Repository
}

// NewGetVersionHandler creates the handler.
func NewGetVersionHandler(repo thesis.Repository) *GetVersionHandler {
	return &GetVersionHandler{repo: repo}
}

// Handle executes the query.
func (h *GetVersionHandler) Handle(ctx context.Context, q GetVersionQuery) (*VersionView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	id, err := shared.NewLineageID(q.LineageID)
	if err != nil {
		return nil, err
	}
	t, err := h.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canRead(q.Actor, t.Lineage.StudentID.String(), t.Lineage.SupervisorID.String()); err != nil {
		return nil, err
	}
	v, err := t.Ledger.Get(q.Number)
	if err != nil {
		return nil, err
	}
	view := newVersionView(v)
	return &view, nil
}
