// Package shared holds the types every domain package speaks: errors, events
// and value objects.
package shared

import "time"

// EventType names a domain event on the bus and on the wire.
type EventType string

const (
	EventThesisSubmitted             EventType = "thesis.submitted"
	EventThesisApproved              EventType = "thesis.approved"
	EventThesisRejected              EventType = "thesis.rejected"
	EventThesisResubmissionRequested EventType = "thesis.resubmission_requested"
	EventThesisResubmitted           EventType = "thesis.resubmitted"

	EventSubmissionWindowOpened EventType = "schedule.window_opened"
	EventScheduleRefreshed      EventType = "schedule.refreshed"
)

// Event is published after a transition commits, never before.
// Payload is the flat form relayed between processes; values are strings,
// numbers and RFC 3339 times so that a decoded payload reads the same.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
	Payload() map[string]any
}

// EventHandler consumes one event.
type EventHandler func(event Event) error

// EventPublisher is what command handlers and jobs publish through.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber registers handlers by type, or for every type.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

// EventBus publishes and subscribes.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// Meta carries what every event has. Embed it to satisfy the first three
// methods of Event.
type Meta struct {
	Type      EventType `json:"type"`
	At        time.Time `json:"occurred_at"`
	Aggregate string    `json:"aggregate_id"`
}

func (m Meta) EventType() EventType  { return m.Type }
func (m Meta) OccurredAt() time.Time { return m.At }
func (m Meta) AggregateID() string   { return m.Aggregate }

func meta(t EventType, aggregate string, at time.Time) Meta {
	return Meta{Type: t, At: at.UTC(), Aggregate: aggregate}
}

// ══════════════════════════════════════════════════════════════════════════════
// THESIS LIFECYCLE
// Aggregate is the lineage id.
// ══════════════════════════════════════════════════════════════════════════════

// ThesisSubmittedEvent: version 1 of a lineage was accepted.
type ThesisSubmittedEvent struct {
	Meta
	StudentID     string `json:"student_id"`
	SupervisorID  string `json:"supervisor_id"`
	VersionNumber int    `json:"version_number"`
	FileRef       string `json:"file_ref"`
	EventID       string `json:"event_id"`
}

func NewThesisSubmittedEvent(lineageID, studentID, supervisorID string, versionNumber int, fileRef, eventID string, at time.Time) ThesisSubmittedEvent {
	return ThesisSubmittedEvent{
		Meta:          meta(EventThesisSubmitted, lineageID, at),
		StudentID:     studentID,
		SupervisorID:  supervisorID,
		VersionNumber: versionNumber,
		FileRef:       fileRef,
		EventID:       eventID,
	}
}

func (e ThesisSubmittedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":     e.StudentID,
		"supervisor_id":  e.SupervisorID,
		"version_number": e.VersionNumber,
		"file_ref":       e.FileRef,
		"event_id":       e.EventID,
	}
}

// ThesisReviewedEvent is either an approval or a rejection; Type tells which.
type ThesisReviewedEvent struct {
	Meta
	StudentID     string `json:"student_id"`
	ReviewerID    string `json:"reviewer_id"`
	VersionNumber int    `json:"version_number"`
	Comments      string `json:"comments,omitempty"`
}

func NewThesisApprovedEvent(lineageID, studentID, reviewerID string, versionNumber int, comments string, at time.Time) ThesisReviewedEvent {
	return reviewed(EventThesisApproved, lineageID, studentID, reviewerID, versionNumber, comments, at)
}

func NewThesisRejectedEvent(lineageID, studentID, reviewerID string, versionNumber int, comments string, at time.Time) ThesisReviewedEvent {
	return reviewed(EventThesisRejected, lineageID, studentID, reviewerID, versionNumber, comments, at)
}

func reviewed(t EventType, lineageID, studentID, reviewerID string, versionNumber int, comments string, at time.Time) ThesisReviewedEvent {
	return ThesisReviewedEvent{
		Meta:          meta(t, lineageID, at),
		StudentID:     studentID,
		ReviewerID:    reviewerID,
		VersionNumber: versionNumber,
		Comments:      comments,
	}
}

func (e ThesisReviewedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":     e.StudentID,
		"reviewer_id":    e.ReviewerID,
		"version_number": e.VersionNumber,
		"comments":       e.Comments,
	}
}

// ResubmissionRequestedEvent: the supervisor asked for a revision.
type ResubmissionRequestedEvent struct {
	Meta
	StudentID     string `json:"student_id"`
	SupervisorID  string `json:"supervisor_id"`
	VersionNumber int    `json:"version_number"`
	Reason        string `json:"reason"`
}

func NewResubmissionRequestedEvent(lineageID, studentID, supervisorID string, versionNumber int, reason string, at time.Time) ResubmissionRequestedEvent {
	return ResubmissionRequestedEvent{
		Meta:          meta(EventThesisResubmissionRequested, lineageID, at),
		StudentID:     studentID,
		SupervisorID:  supervisorID,
		VersionNumber: versionNumber,
		Reason:        reason,
	}
}

func (e ResubmissionRequestedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":     e.StudentID,
		"supervisor_id":  e.SupervisorID,
		"version_number": e.VersionNumber,
		"reason":         e.Reason,
	}
}

// ThesisResubmittedEvent: a revision was appended to the ledger.
type ThesisResubmittedEvent struct {
	Meta
	StudentID       string `json:"student_id"`
	VersionNumber   int    `json:"version_number"`
	PreviousVersion int    `json:"previous_version"`
	FileRef         string `json:"file_ref"`
	EventID         string `json:"event_id"`
}

func NewThesisResubmittedEvent(lineageID, studentID string, versionNumber, previousVersion int, fileRef, eventID string, at time.Time) ThesisResubmittedEvent {
	return ThesisResubmittedEvent{
		Meta:            meta(EventThesisResubmitted, lineageID, at),
		StudentID:       studentID,
		VersionNumber:   versionNumber,
		PreviousVersion: previousVersion,
		FileRef:         fileRef,
		EventID:         eventID,
	}
}

func (e ThesisResubmittedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":       e.StudentID,
		"version_number":   e.VersionNumber,
		"previous_version": e.PreviousVersion,
		"file_ref":         e.FileRef,
		"event_id":         e.EventID,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULING
// ══════════════════════════════════════════════════════════════════════════════

// WindowOpenedEvent is published once per lineage and scheduling event, the
// first time the poller finds the lineage eligible. A department-wide
// announcement has an empty aggregate and StudentID.
type WindowOpenedEvent struct {
	Meta
	StudentID   string    `json:"student_id"`
	EventID     string    `json:"event_id"`
	Category    string    `json:"category"`
	WindowStart time.Time `json:"window_start"`
	DueDate     time.Time `json:"due_date"`
}

func NewWindowOpenedEvent(lineageID, studentID, eventID, category string, windowStart, dueDate, at time.Time) WindowOpenedEvent {
	return WindowOpenedEvent{
		Meta:        meta(EventSubmissionWindowOpened, lineageID, at),
		StudentID:   studentID,
		EventID:     eventID,
		Category:    category,
		WindowStart: windowStart,
		DueDate:     dueDate,
	}
}

func (e WindowOpenedEvent) Payload() map[string]any {
	return map[string]any{
		"student_id":   e.StudentID,
		"event_id":     e.EventID,
		"category":     e.Category,
		"window_start": e.WindowStart.Format(time.RFC3339),
		"due_date":     e.DueDate.Format(time.RFC3339),
	}
}

// ScheduleRefreshedEvent follows a replacement of the cached event list for
// one department.
type ScheduleRefreshedEvent struct {
	Meta
	Department string `json:"department"`
	EventCount int    `json:"event_count"`
}

func NewScheduleRefreshedEvent(department string, count int) ScheduleRefreshedEvent {
	return ScheduleRefreshedEvent{
		Meta:       meta(EventScheduleRefreshed, department, time.Now()),
		Department: department,
		EventCount: count,
	}
}

func (e ScheduleRefreshedEvent) Payload() map[string]any {
	return map[string]any{
		"department":  e.Department,
		"event_count": e.EventCount,
	}
}
