package thesis

import (
	"time"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/schedule"
)

// Workflow объединяет запрос доработки руководителем и повторную подачу
// студентом поверх Machine.
type Workflow struct {
	machine *Machine
}

// NewWorkflow создаёт сценарий доработки.
func NewWorkflow(machine *Machine) *Workflow {
	return &Workflow{machine: machine}
}

// RequestChanges переводит работу на доработку с указанной причиной.
func (w *Workflow) RequestChanges(t *Thesis, reason string, supervisor Actor, now time.Time) (*Transition, error) {
	return w.machine.RequestResubmission(t, supervisor, reason, now)
}

// SubmitRevision подаёт исправленную версию в окне события event.
// Прошлая версия сохраняется, сдвигается только указатель текущей версии.
func (w *Workflow) SubmitRevision(t *Thesis, fileRef string, student Actor, now time.Time, event *schedule.SchedulingEvent) (*Transition, error) {
	if t != nil {
		if _, ok := NextStatus(t.State.Status, OpResubmit); !ok {
			return nil, &TransitionError{From: t.State.Status, Op: OpResubmit}
		}
	}
	if decision := w.machine.Policy().Evaluate(now, event); !decision.Allowed {
		return nil, decision.Err()
	}

	tr, err := w.machine.Resubmit(t, ResubmitParams{
		FileRef: fileRef,
		Actor:   student,
		Now:     now,
		Event:   event,
	})
	if err != nil {
		return nil, err
	}
	if !tr.Thesis.Ledger.Extends(t.Ledger) {
		return nil, sequenceError("revision rewrote an earlier version")
	}
	return tr, nil
}
