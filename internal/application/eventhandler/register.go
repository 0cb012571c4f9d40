package eventhandler

import (
	"fmt"

	"github.com/deskinspect/thesis-lifecycle/internal/domain/shared"
)

// Handlers groups the handlers wired onto a bus.
type Handlers struct {
	Thesis       *OnThesisEventHandler
	WindowOpened *OnWindowOpenedHandler
}

// Register subscribes the handlers. Nil handlers are skipped.
func Register(bus shared.EventSubscriber, h Handlers) error {
	if h.Thesis != nil {
		for _, t := range ThesisEventTypes {
			if err := bus.Subscribe(t, h.Thesis.Handle); err != nil {
				return fmt.Errorf("subscribe %s: %w", t, err)
			}
		}
	}
	if h.WindowOpened != nil {
		if err := bus.Subscribe(shared.EventSubmissionWindowOpened, h.WindowOpened.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", shared.EventSubmissionWindowOpened, err)
		}
	}
	return nil
}
