package eventhandler

import (
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
	"github.com/deskinspect/thesis-lifecycle/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON WINDOW OPENED HANDLER
// Доставка напоминаний вне этого сервиса: обработчик передаёт событие
// получателю (Notifier) и пишет его в журнал.
// ═══════════════════════════════════════════════════════════════════════════

// Reminder - напоминание об открытом окне подачи.
type Reminder struct {
	LineageID   string
	StudentID   string
	EventID     string
	Category    string
	WindowStart time.Time
	DueDate     time.Time
}

// Broadcast возвращает true для объявлений на всю кафедру.
func (r Reminder) Broadcast() bool {
	return r.LineageID == ""
}

// Notifier доставляет напоминания. Реализации вне сервиса.
type Notifier interface {
	Notify(r Reminder) error
}

// OnWindowOpenedHandler обрабатывает schedule.window_opened.
type OnWindowOpenedHandler struct {
	notifier Notifier
	clock    timeutil.Clock
	logger   *logger.Logger
}

// NewOnWindowOpenedHandler создаёт обработчик. notifier может быть nil,
// тогда напоминания только пишутся в журнал.
func NewOnWindowOpenedHandler(notifier Notifier, clock timeutil.Clock, log *logger.Logger) *OnWindowOpenedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	return &OnWindowOpenedHandler{
		notifier: notifier,
		clock:    clock,
		logger:   log.With(logger.Component("eventhandler"), logger.String("handler", "on_window_opened")),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnWindowOpenedHandler) Handle(event shared.Event) error {
	r, ok := reminderFrom(event)
	if !ok {
		h.logger.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}

	h.logger.Info("submission window open",
		logger.LineageID(r.LineageID),
		logger.StudentID(r.StudentID),
		logger.EventID(r.EventID),
		logger.String("category", r.Category),
		logger.Bool("broadcast", r.Broadcast()),
		logger.String("closes", timeutil.FormatRelative(h.clock.Now(), r.DueDate)),
	)

	if h.notifier == nil {
		return nil
	}
	return h.notifier.Notify(r)
}

// reminderFrom accepts both local events and events reconstructed from the
// Redis bus, whose payload carries RFC 3339 strings.
func reminderFrom(event shared.Event) (Reminder, bool) {
	if e, ok := event.(shared.WindowOpenedEvent); ok {
		return Reminder{
			LineageID:   e.AggregateID(),
			StudentID:   e.StudentID,
			EventID:     e.EventID,
			Category:    e.Category,
			WindowStart: e.WindowStart,
			DueDate:     e.DueDate,
		}, true
	}
	if event.EventType() != shared.EventSubmissionWindowOpened {
		return Reminder{}, false
	}

	p := event.Payload()
	r := Reminder{
		LineageID: event.AggregateID(),
		StudentID: stringOf(p["student_id"]),
		EventID:   stringOf(p["event_id"]),
		Category:  stringOf(p["category"]),
	}
	r.WindowStart, _ = time.Parse(time.RFC3339, stringOf(p["window_start"]))
	r.DueDate, _ = time.Parse(time.RFC3339, stringOf(p["due_date"]))
	return r, true
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
