// Package permissions decides whether a recording may start.
package permissions

import (
	"sync"

	"pttype/internal/logging"
)

// Check probes one prerequisite. A nil error means it is granted.
type Check struct {
	Name  string
	Probe func() error
}

func Microphone(probe func() error) Check {
	return Check{Name: "Microphone", Probe: probe}
}

func SpeechRecognition(probe func() error) Check {
	return Check{Name: "Speech Recognition", Probe: probe}
}

func Accessibility(probe func() error) Check {
	return Check{Name: "Accessibility", Probe: probe}
}

// Result is the outcome of one check.
type Result struct {
	Name    string `json:"name"`
	Granted bool   `json:"granted"`
	Detail  string `json:"detail,omitempty"`
}

// Gate runs a fixed set of checks.
type Gate struct {
	checks []Check

	// serializes probes, some of which initialize native libraries
	mu sync.Mutex
}

func NewGate(checks ...Check) *Gate {
	return &Gate{checks: checks}
}

// CheckAll runs every check synchronously.
func (g *Gate) CheckAll() bool {
	for _, result := range g.Report() {
		if !result.Granted {
			return false
		}
	}
	return true
}

// RequestAll runs the checks off the caller's goroutine, logs what is
// missing and calls callback once.
func (g *Gate) RequestAll(callback func(granted bool)) {
	go func() {
		granted := true
		for _, result := range g.Report() {
			if result.Granted {
				continue
			}
			granted = false
			logging.Warnw("permission missing", "permission", result.Name, "detail", result.Detail)
		}
		if callback != nil {
			callback(granted)
		}
	}()
}

// Report returns the status of each check in declaration order.
func (g *Gate) Report() []Result {
	g.mu.Lock()
	defer g.mu.Unlock()

	results := make([]Result, 0, len(g.checks))
	for _, check := range g.checks {
		result := Result{Name: check.Name, Granted: true}
		if check.Probe != nil {
			if err := check.Probe(); err != nil {
				result.Granted = false
				result.Detail = err.Error()
			}
		}
		results = append(results, result)
	}
	return results
}
