// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на уже зафиксированные переходы: пишут журнал
// аудита, сбрасывают кеши и передают напоминания подписчикам доставки.
package eventhandler

import (
	"context"
	"fmt"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
	"github.com/deskinspect/thesis-lifecycle/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON THESIS EVENT HANDLER
// Пишет строку аудита на каждый переход и сбрасывает кеш представления.
// ═══════════════════════════════════════════════════════════════════════════

// CacheInvalidator сбрасывает закешированное представление линии.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, lineageID string) error
}

// ThesisEventTypes - события переходов, на которые подписывается обработчик.
var ThesisEventTypes = []shared.EventType{
	shared.EventThesisSubmitted,
	shared.EventThesisApproved,
	shared.EventThesisRejected,
	shared.EventThesisResubmissionRequested,
	shared.EventThesisResubmitted,
}

// OnThesisEventHandler обрабатывает события переходов.
type OnThesisEventHandler struct {
	cache  CacheInvalidator
	logger *logger.Logger
}

// NewOnThesisEventHandler создаёт обработчик. cache может быть nil.
func NewOnThesisEventHandler(cache CacheInvalidator, log *logger.Logger) *OnThesisEventHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &OnThesisEventHandler{
		cache:  cache,
		logger: log.With(logger.Component("eventhandler"), logger.String("handler", "on_thesis_event")),
	}
}

// Handle реализует shared.EventHandler.
func (h *OnThesisEventHandler) Handle(event shared.Event) error {
	lineageID := event.AggregateID()
	if lineageID == "" {
		return fmt.Errorf("on_thesis_event: %s has no lineage", event.EventType())
	}

	fields := []logger.Field{
		logger.String("event_type", string(event.EventType())),
		logger.LineageID(lineageID),
		logger.Time("occurred_at", event.OccurredAt()),
	}
	for k, v := range event.Payload() {
		fields = append(fields, logger.Any(k, v))
	}
	h.logger.Info("thesis audit", fields...)

	// Кеш общий для всех экземпляров; повторный сброс безопасен.
	if h.cache != nil {
		if err := h.cache.Invalidate(context.Background(), lineageID); err != nil {
			return fmt.Errorf("on_thesis_event: invalidate %s: %w", lineageID, err)
		}
	}
	return nil
}
