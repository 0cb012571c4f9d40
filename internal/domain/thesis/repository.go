package thesis

import (
	"context"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Интерфейсы определены в домене, реализуются в infrastructure.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет хранилище линий.
type Repository interface {
	// Get возвращает линию со всеми версиями и историей.
	// Возвращает ErrThesisNotFound, если линия не найдена.
	Get(ctx context.Context, id shared.LineageID) (*Thesis, error)

	// GetByStudent возвращает линию студента.
	// Возвращает ErrThesisNotFound, если студент ещё ничего не подавал.
	GetByStudent(ctx context.Context, studentID shared.UserID) (*Thesis, error)

	// Save атомарно сохраняет результат перехода: состояние, новую версию
	// и запись истории. Возвращает ErrStaleRevision, если сохранённая
	// ревизия не равна tr.ExpectedRevision.
	Save(ctx context.Context, tr *Transition) error

	// ListByStatus возвращает линии в указанном статусе.
	ListByStatus(ctx context.Context, status Status, page shared.Pagination) ([]*Thesis, error)
}

// LineageLocker сериализует писателей одной линии.
type LineageLocker interface {
	// Lock захватывает линию на ttl. Возвращает ErrLineageLocked, если
	// линия уже захвачена. unlock освобождает только собственный захват.
	Lock(ctx context.Context, id shared.LineageID, ttl time.Duration) (unlock func(context.Context) error, err error)
}
