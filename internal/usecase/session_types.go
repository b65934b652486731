package usecase

import (
	"time"

	"pttype/internal/ports"
)

// activeRun tracks the recognition run bound to the current session.
type activeRun struct {
	run        ports.RecognitionRun
	terminated bool
}

func (r *activeRun) id() string {
	return r.run.ID()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}
