// Package schedule contains academic scheduling events consumed by the
// submission lifecycle and the resolver that picks the active one.
// This is a pure domain layer with zero external dependencies.
package schedule

import (
	"context"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// Category groups scheduling events by the kind of deadline they carry.
type Category string

const (
	// CategorySubmission is the deadline for a first submission.
	CategorySubmission Category = "submission"

	// CategoryResubmission is the deadline for revisions after a change request.
	CategoryResubmission Category = "resubmission"
)

// IsValid checks if the category is non-empty. Categories other than the two
// known ones are allowed; they are carried through and simply never selected
// by the lifecycle.
func (c Category) IsValid() bool {
	return strings.TrimSpace(string(c)) != ""
}

// String returns the string representation of Category.
func (c Category) String() string {
	return string(c)
}

// ParseCategory normalizes and validates a category string.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", shared.ErrInvalidCategory
	}
	return c, nil
}

// SchedulingEvent is a read-only deadline authored by an administrative system.
type SchedulingEvent struct {
	ID         string    `json:"id" yaml:"id"`
	Category   Category  `json:"category" yaml:"category"`
	Title      string    `json:"title,omitempty" yaml:"title"`
	Department string    `json:"department,omitempty" yaml:"department"`
	DueDate    time.Time `json:"due_date" yaml:"due_date"`

	// Readiness reports whether supporting storage is provisioned for the event.
	Readiness bool `json:"readiness" yaml:"readiness"`

	// WindowDays overrides the eligibility window length. Zero means default.
	WindowDays int `json:"window_days,omitempty" yaml:"window_days"`
}

// Validate checks the fields required for window resolution.
func (e SchedulingEvent) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return shared.NewDomainError("schedule", "Validate", shared.ErrEmptyValue, "event id is required")
	}
	if !e.Category.IsValid() {
		return shared.ErrInvalidCategory
	}
	if e.DueDate.IsZero() {
		return shared.NewDomainError("schedule", "Validate", shared.ErrEmptyValue, "event due date is required")
	}
	if e.WindowDays < 0 {
		return shared.NewDomainError("schedule", "Validate", shared.ErrInvalidInput, "window days cannot be negative")
	}
	return nil
}

// AppliesTo reports whether the event is visible to the department.
// Events without a department apply everywhere.
func (e SchedulingEvent) AppliesTo(department string) bool {
	if e.Department == "" || department == "" {
		return true
	}
	return strings.EqualFold(e.Department, department)
}

// ForDepartment returns the events visible to a department, preserving order.
func ForDepartment(events []SchedulingEvent, department string) []SchedulingEvent {
	out := make([]SchedulingEvent, 0, len(events))
	for _, e := range events {
		if e.AppliesTo(department) {
			out = append(out, e)
		}
	}
	return out
}

// EventSource provides scheduling events from an external collaborator.
type EventSource interface {
	// ListEvents returns all events visible to the department.
	// An empty department returns every event.
	ListEvents(ctx context.Context, department string) ([]SchedulingEvent, error)
}
