package thesis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VERSION
// ══════════════════════════════════════════════════════════════════════════════

// Version - неизменяемая запись о загруженном файле.
type Version struct {
	LineageID        shared.LineageID `json:"lineage_id"`
	Number           int              `json:"version_number"`
	FileRef          string           `json:"file_ref"`
	CreatedAt        time.Time        `json:"created_at"`
	IsResubmission   bool             `json:"is_resubmission"`
	StatusAtCreation Status           `json:"status_at_creation"`
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Ledger - упорядоченный журнал версий одной линии. Значение неизменяемо:
// Append возвращает новый журнал, старый остаётся прежним.
//
// Инвариант: номера версий ровно 1..N без пропусков.
type Ledger struct {
	versions []Version
}

// NewLedger восстанавливает журнал из сохранённых версий.
// Возвращает ErrInvalidVersionSequence при пропусках, дубликатах,
// чужой линии или неверном флаге повторной подачи.
func NewLedger(lineageID shared.LineageID, versions []Version) (Ledger, error) {
	sorted := make([]Version, len(versions))
	copy(sorted, versions)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Number < sorted[j].Number })

	for i, v := range sorted {
		if v.LineageID != lineageID {
			return Ledger{}, sequenceError(fmt.Sprintf("version %d belongs to lineage %q", v.Number, v.LineageID))
		}
		if v.Number != i+1 {
			return Ledger{}, sequenceError(fmt.Sprintf("expected version %d, found %d", i+1, v.Number))
		}
		if v.IsResubmission != (i > 0) {
			return Ledger{}, sequenceError(fmt.Sprintf("version %d has wrong resubmission flag", v.Number))
		}
	}
	return Ledger{versions: sorted}, nil
}

// Append добавляет версию и возвращает новый журнал.
// Первая версия должна быть isResubmission=false, все последующие - true.
func (l Ledger) Append(lineageID shared.LineageID, fileRef string, isResubmission bool, now time.Time) (Ledger, Version, error) {
	if strings.TrimSpace(fileRef) == "" {
		return l, Version{}, shared.ErrEmptyFileRef
	}
	if len(l.versions) > 0 && !isResubmission {
		return l, Version{}, sequenceError("lineage already has an initial version")
	}
	if len(l.versions) == 0 && isResubmission {
		return l, Version{}, sequenceError("cannot resubmit before the initial version")
	}

	status := StatusSubmitted
	if isResubmission {
		status = StatusResubmitted
	}
	v := Version{
		LineageID:        lineageID,
		Number:           l.maxNumber() + 1,
		FileRef:          fileRef,
		CreatedAt:        now,
		IsResubmission:   isResubmission,
		StatusAtCreation: status,
	}

	next := make([]Version, len(l.versions), len(l.versions)+1)
	copy(next, l.versions)
	next = append(next, v)
	return Ledger{versions: next}, v, nil
}

// Len возвращает количество версий.
func (l Ledger) Len() int {
	return len(l.versions)
}

// IsEmpty возвращает true, если версий нет.
func (l Ledger) IsEmpty() bool {
	return len(l.versions) == 0
}

// Current возвращает версию с наибольшим номером.
func (l Ledger) Current() (Version, bool) {
	if len(l.versions) == 0 {
		return Version{}, false
	}
	return l.versions[len(l.versions)-1], true
}

// Get возвращает версию по номеру или ErrVersionNotFound.
func (l Ledger) Get(number int) (Version, error) {
	if number < 1 || number > len(l.versions) {
		return Version{}, shared.ErrVersionNotFound
	}
	return l.versions[number-1], nil
}

// Versions возвращает копию всех версий по возрастанию номера.
func (l Ledger) Versions() []Version {
	out := make([]Version, len(l.versions))
	copy(out, l.versions)
	return out
}

// Extends проверяет, что журнал начинается ровно с версий prev.
// Так проверяется, что повторная подача не переписала прошлые версии.
func (l Ledger) Extends(prev Ledger) bool {
	if len(l.versions) < len(prev.versions) {
		return false
	}
	for i, v := range prev.versions {
		if l.versions[i] != v {
			return false
		}
	}
	return true
}

func (l Ledger) maxNumber() int {
	max := 0
	for _, v := range l.versions {
		if v.Number > max {
			max = v.Number
		}
	}
	return max
}

func sequenceError(msg string) error {
	return shared.WrapError("thesis", "Ledger", shared.ErrInvariantViolation, msg, shared.ErrInvalidVersionSequence)
}
