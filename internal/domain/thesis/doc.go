// Package thesis содержит доменную модель жизненного цикла диссертации.
//
// Это ядро системы: чистые функции и значения без ввода-вывода. Пакет определяет:
//
//   - Сущности: Lineage, Thesis (агрегат), LifecycleState, HistoryEntry
//   - Журнал версий: Version, Ledger (только добавление)
//   - Машину состояний: Machine и таблицу переходов
//   - Сценарий доработки: Workflow (запрос изменений и повторная подача)
//   - Порты: Repository, LineageLocker
//
// # Архитектурные принципы
//
//  1. Нулевые внешние зависимости - только стандартная библиотека Go
//  2. Текущее время всегда передаётся аргументом, часы не читаются
//  3. Операция либо применяется целиком, либо не меняет ничего
//
// # Переходы
//
//	not_submitted          --submit-->               under_review
//	under_review           --approve-->              approved
//	under_review           --reject-->               rejected
//	under_review           --request_resubmission--> resubmission_requested
//	resubmission_requested --resubmit-->             under_review
//
// approved и rejected - терминальные статусы.
//
// # Пример
//
//	machine := NewMachine(eligibility.DefaultPolicy())
//	draft, _ := NewDraft(NewDraftParams{ID: id, StudentID: "s-1", Department: "cs", CreatedAt: now})
//	tr, err := machine.Submit(draft, SubmitParams{
//	    FileRef:      "files/v1.pdf",
//	    SupervisorID: "p-7",
//	    Actor:        Actor{ID: "s-1", Role: RoleStudent},
//	    Now:          now,
//	    Event:        &activeEvent,
//	})
//
// Машина не выполняет блокировок: вызывающая сторона обязана обеспечить
// не более одного писателя на линию (см. LineageLocker и Thesis.Revision).
package thesis
