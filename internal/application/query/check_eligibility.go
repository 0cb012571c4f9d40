package query

import (
	"context"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/deskinspect/thesis-lifecycle/internal/application/guidance"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/eligibility"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/internal/infrastructure/metrics"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CHECK ELIGIBILITY QUERY
// Advisory check for UIs: is a submission possible right now, and if not,
// why. The answer may come from cached events; commands re-check fresh.
// ══════════════════════════════════════════════════════════════════════════════

// CheckEligibilityQuery contains the parameters.
type CheckEligibilityQuery struct {
	Department string
	Category   string

	// Language is an Accept-Language value or a bare tag.
	Language string
}

// EligibilityView is the advisory answer.
type EligibilityView struct {
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason,omitempty"`
	Category string `json:"category"`

	EventID    string     `json:"event_id,omitempty"`
	EventTitle string     `json:"event_title,omitempty"`
	DueDate    *time.Time `json:"due_date,omitempty"`

	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	WindowDays  int        `json:"window_days,omitempty"`

	// DaysUntil counts calendar days to the window opening when it is not
	// open yet, and to the due date otherwise.
	DaysUntil int `json:"days_until"`

	Guidance string `json:"guidance"`
	Locale   string `json:"locale"`

	CheckedAt time.Time `json:"checked_at"`
}

// CheckEligibilityHandler handles CheckEligibilityQuery.
type CheckEligibilityHandler struct {
	source  schedule.EventSource
	policy  eligibility.Policy
	guide   *guidance.Guide
	clock   timeutil.Clock
	metrics *metrics.Metrics
}

// NewCheckEligibilityHandler creates the handler.
func NewCheckEligibilityHandler(source schedule.EventSource, policy eligibility.Policy, guide *guidance.Guide, clock timeutil.Clock, m *metrics.Metrics) *CheckEligibilityHandler {
	if guide == nil {
		guide = guidance.Default()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &CheckEligibilityHandler{source: source, policy: policy, guide: guide, clock: clock, metrics: m}
}

// Handle executes the query.
func (h *CheckEligibilityHandler) Handle(ctx context.Context, q CheckEligibilityQuery) (*EligibilityView, error) {
	category := schedule.CategorySubmission
	if strings.TrimSpace(q.Category) != "" {
		c, err := schedule.ParseCategory(q.Category)
		if err != nil {
			return nil, err
		}
		category = c
	}
	department := strings.TrimSpace(q.Department)

	events, err := h.source.ListEvents(ctx, department)
	if err != nil {
		return nil, shared.WrapError("schedule", "List", shared.ErrServiceUnavailable, "scheduling events are unavailable", err)
	}

	now := h.clock.Now()
	tag := h.guide.Match(q.Language)
	view := &EligibilityView{Category: category.String(), Locale: tag.String(), CheckedAt: now}

	var active *schedule.SchedulingEvent
	if e, ok := schedule.SelectActiveEvent(schedule.ForDepartment(events, department), category, now); ok {
		active = &e
	}
	decision := h.policy.Evaluate(now, active)
	h.metrics.RecordEligibility(category.String(), decision.Reason.String())

	view.Allowed = decision.Allowed
	view.Reason = decision.Reason.String()
	if active != nil {
		due := active.DueDate
		from, to := decision.Window.From, decision.Window.To
		view.EventID = active.ID
		view.EventTitle = active.Title
		view.DueDate = &due
		view.WindowStart = &from
		view.WindowEnd = &to
		view.WindowDays = h.policy.WindowFor(*active)
		view.DaysUntil = daysUntil(now, decision)
	}
	view.Guidance = h.guide.ForDecision(tag, category, decision, active)
	return view, nil
}

// Locale returns the tag the guide would use for an Accept-Language value.
func (h *CheckEligibilityHandler) Locale(accept string) language.Tag {
	return h.guide.Match(accept)
}

func daysUntil(now time.Time, d eligibility.Decision) int {
	if d.Reason == eligibility.ReasonWindowNotOpenYet {
		return timeutil.DaysUntil(now, d.Window.From)
	}
	return timeutil.DaysUntil(now, d.Window.To)
}
