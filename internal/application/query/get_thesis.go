package query

import (
	"context"
	"strings"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET THESIS QUERY
// Returns state, progress step, versions and history of one lineage.
// ══════════════════════════════════════════════════════════════════════════════

// GetThesisQuery selects a lineage by id or by student.
type GetThesisQuery struct {
	LineageID string
	StudentID string
	Actor     thesis.Actor
}

// Validate checks that exactly one selector is set.
func (q GetThesisQuery) Validate() error {
	hasID := strings.TrimSpace(q.LineageID) != ""
	hasStudent := strings.TrimSpace(q.StudentID) != ""
	if hasID == hasStudent {
		return shared.NewDomainError("thesis", "Get", shared.ErrInvalidInput, "exactly one of lineage_id or student_id is required")
	}
	if hasID {
		if _, err := shared.NewLineageID(q.LineageID); err != nil {
			return err
		}
	}
	return q.Actor.Validate()
}

// GetThesisHandler handles GetThesisQuery.
type GetThesisHandler struct {
	repo   thesis.Repository
	cache  ViewCache
	logger *logger.Logger
}

// NewGetThesisHandler creates the handler. cache may be nil.
func NewGetThesisHandler(repo thesis.Repository, cache ViewCache, log *logger.Logger) *GetThesisHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetThesisHandler{repo: repo, cache: cache, logger: log.With(logger.Component("query"), logger.Operation("get_thesis"))}
}

// Handle executes the query.
func (h *GetThesisHandler) Handle(ctx context.Context, q GetThesisQuery) (*ThesisView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	var id shared.LineageID
	if strings.TrimSpace(q.LineageID) != "" {
		var err error
		if id, err = shared.NewLineageID(q.LineageID); err != nil {
			return nil, err
		}
		if view, ok := h.cached(ctx, id.String()); ok {
			if err := canRead(q.Actor, view.StudentID, view.SupervisorID); err != nil {
				return nil, err
			}
			return view, nil
		}
	}

	var (
		t   *thesis.Thesis
		err error
	)
	if id != "" {
		t, err = h.repo.Get(ctx, id)
	} else {
		t, err = h.repo.GetByStudent(ctx, shared.UserID(strings.TrimSpace(q.StudentID)))
	}
	if err != nil {
		return nil, err
	}

	view := NewThesisView(t)
	if err := canRead(q.Actor, view.StudentID, view.SupervisorID); err != nil {
		return nil, err
	}
	if h.cache != nil {
		if err := h.cache.Set(ctx, view.LineageID, view); err != nil {
			h.logger.Warn("thesis view cache write failed", logger.LineageID(view.LineageID), logger.Err(err))
		}
	}
	return &view, nil
}

func (h *GetThesisHandler) cached(ctx context.Context, id string) (*ThesisView, bool) {
	if h.cache == nil {
		return nil, false
	}
	var view ThesisView
	ok, err := h.cache.Get(ctx, id, &view)
	if err != nil {
		h.logger.Warn("thesis view cache read failed", logger.LineageID(id), logger.Err(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	return &view, true
}
