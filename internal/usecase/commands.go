package usecase

import (
	"pttype/internal/domain"
)

// command is one unit of work for the orchestrator loop. apply reports
// whether the loop must exit.
type command interface {
	apply(o *Orchestrator) bool
}

type toggleCommand struct{}

func (toggleCommand) apply(o *Orchestrator) bool {
	o.handleToggle()
	return false
}

type recognitionCommand struct {
	runID string
	event domain.RecognitionEvent
}

func (c recognitionCommand) apply(o *Orchestrator) bool {
	o.handleRecognition(c.runID, c.event)
	return false
}

type injectionDoneCommand struct {
	sessionID string
	ok        bool
}

func (c injectionDoneCommand) apply(o *Orchestrator) bool {
	o.handleInjectionDone(c.sessionID, c.ok)
	return false
}

type shutdownCommand struct {
	done chan struct{}
}

func (c shutdownCommand) apply(o *Orchestrator) bool {
	o.teardown()
	close(c.done)
	return true
}
