package query

import (
	"context"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/thesis"
)

// ListByStatusQuery lists lineages in one status, newest update first.
type ListByStatusQuery struct {
	Status   string
	Page     int
	PageSize int
	Actor    thesis.Actor
}

// ListByStatusResult is one page of views.
type ListByStatusResult struct {
	Items    []ThesisView `json:"items"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
	HasMore  bool         `json:"has_more"`
}

// ListByStatusHandler handles ListByStatusQuery. Supervisors only see the
// lineages bound to them; administrators see all.
type ListByStatusHandler struct {
	repo thesis.Repository
}

// NewListByStatusHandler creates the handler.
func NewListByStatusHandler(repo thesis.Repository) *ListByStatusHandler {
	return &ListByStatusHandler{repo: repo}
}

// Handle executes the query.
func (h *ListByStatusHandler) Handle(ctx context.Context, q ListByStatusQuery) (*ListByStatusResult, error) {
	if err := q.Actor.Validate(); err != nil {
		return nil, err
	}
	if !q.Actor.IsPrivileged() {
		return nil, shared.NewDomainError("thesis", "List", shared.ErrForbidden, "listing requires a reviewer role")
	}
	status, err := thesis.ParseStatus(q.Status)
	if err != nil {
		return nil, err
	}
	if !status.IsPersistent() {
		return nil, shared.NewDomainError("thesis", "List", shared.ErrInvalidInput, "status "+status.String()+" is never stored")
	}

	page := shared.NewPagination(q.Page, q.PageSize)
	// Supervisor filtering happens here, so pages are cut after filtering.
	offset := page.Offset()

	items := make([]ThesisView, 0, page.Limit())
	hasMore := false
	for batch := 1; ; batch++ {
		rows, err := h.repo.ListByStatus(ctx, status, shared.Pagination{Page: batch, PageSize: shared.MaxPageSize})
		if err != nil {
			return nil, err
		}
		for _, t := range rows {
			if q.Actor.Role == thesis.RoleSupervisor && !t.Lineage.IsSupervisedBy(q.Actor.ID) {
				continue
			}
			if offset > 0 {
				offset--
				continue
			}
			if len(items) == page.Limit() {
				hasMore = true
				break
			}
			items = append(items, NewThesisView(t))
		}
		if hasMore || len(rows) < shared.MaxPageSize {
			break
		}
	}

	return &ListByStatusResult{Items: items, Page: page.Page, PageSize: page.Limit(), HasMore: hasMore}, nil
}
