package harness

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/tsflow/internal/engine"
	"github.com/roach88/tsflow/internal/ts"
)

// Epoch is the fixed simulation start for every scenario run. Pinning it
// keeps canonical traces byte-stable across machines and runs.
var Epoch = ts.FromTime(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when the run outcome and every assertion matched.
	Pass bool

	// Trace holds the watched ticks in evaluation order.
	Trace []engine.TraceEvent

	// Canonical is the trace rendered one canonical JSON document per
	// line, the form golden files pin.
	Canonical []byte

	// Errors lists assertion failures. Empty when Pass is true.
	Errors []string

	// RunErr is the error the run itself ended with, nil on a clean
	// finish. A scenario with expect_error passes only when RunErr
	// matches.
	RunErr error
}

func (r *Result) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Pass = false
}

// Run executes a scenario in simulation with the given registry (nil
// means the default registry) and evaluates its assertions. The returned
// error covers scenario-level failures such as an unbuildable graph; an
// assertion miss is reported through Result, not as an error.
func Run(s *Scenario, reg *engine.Registry) (*Result, error) {
	if reg == nil {
		reg = engine.DefaultRegistry()
	}

	tr := engine.NewTraceObserver(s.Watch...)
	g, err := engine.Build(s.Graph, reg, engine.NewSimulationClock(Epoch), engine.WithObserver(tr))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	end := ts.MaxTime
	if s.Cycles > 0 {
		end = Epoch + ts.EngineTime(s.Cycles-1)*ts.MinTD
	}

	result := &Result{Pass: true}
	result.RunErr = g.Run(context.Background(), Epoch, end)
	result.Trace = tr.Events()
	if result.Canonical, err = tr.Canonical(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}

	switch {
	case s.ExpectError != "" && result.RunErr == nil:
		result.addError("run finished cleanly, want error containing %q", s.ExpectError)
	case s.ExpectError != "" && !strings.Contains(result.RunErr.Error(), s.ExpectError):
		result.addError("run failed with %q, want error containing %q", result.RunErr, s.ExpectError)
	case s.ExpectError == "" && result.RunErr != nil:
		result.addError("run failed: %v", result.RunErr)
	}

	for i, a := range s.Assertions {
		if err := evaluateAssertion(result.Trace, a); err != nil {
			result.addError("assertions[%d]: %v", i, err)
		}
	}
	return result, nil
}
