package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tsflow/internal/desc"
)

// Scenario is one declarative conformance case: a graph description plus
// assertions over the trace its simulation run produces.
type Scenario struct {
	// Name uniquely identifies the scenario; it doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what behaviour the scenario pins down.
	Description string `yaml:"description"`

	// Graph is the full graph description to run.
	Graph *desc.Graph `yaml:"graph"`

	// Watch names the nodes whose ticks are traced. Empty means all.
	Watch []string `yaml:"watch,omitempty"`

	// Cycles bounds the run: the simulation stops after this many cycles
	// from the start even if work remains. Zero means run to quiescence.
	Cycles int `yaml:"cycles,omitempty"`

	// ExpectError, when set, inverts the run outcome: the run must fail
	// and the error must contain this substring.
	ExpectError string `yaml:"expect_error,omitempty"`

	// Assertions validate the trace after the run.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Assertion validates one property of the trace.
type Assertion struct {
	// Type is one of tick_contains, tick_order, tick_count, final_value.
	Type string `yaml:"type"`

	// Node is the node path asserted on (tick_contains, tick_count,
	// final_value), e.g. "root/sum".
	Node string `yaml:"node,omitempty"`

	// Value is the expected payload (tick_contains, final_value),
	// compared by canonical JSON.
	Value any `yaml:"value,omitempty"`

	// Count is the expected number of ticks (tick_count).
	Count int `yaml:"count,omitempty"`

	// Nodes is the expected first-tick order (tick_order). Intervening
	// ticks of other nodes are allowed.
	Nodes []string `yaml:"nodes,omitempty"`
}

const (
	AssertTickContains = "tick_contains"
	AssertTickOrder    = "tick_order"
	AssertTickCount    = "tick_count"
	AssertFinalValue   = "final_value"
)

// LoadScenario reads and validates a scenario YAML file. Unknown fields
// are rejected so a typo fails loudly instead of silently not asserting.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}

	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &s, nil
}

// LoadScenarioDir loads every *.yaml scenario under dir, sorted by file
// name for stable suite order.
func LoadScenarioDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Graph == nil {
		return fmt.Errorf("graph is required")
	}
	if errs := desc.Validate(s.Graph); len(errs) > 0 {
		return fmt.Errorf("graph: %w", errors.Join(errs...))
	}
	if s.Cycles < 0 {
		return fmt.Errorf("cycles must be non-negative")
	}
	if s.ExpectError == "" && len(s.Assertions) == 0 {
		return fmt.Errorf("assertions are required unless expect_error is set")
	}
	for i := range s.Assertions {
		if err := validateAssertion(&s.Assertions[i]); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateAssertion(a *Assertion) error {
	switch a.Type {
	case AssertTickContains, AssertFinalValue:
		if a.Node == "" {
			return fmt.Errorf("node is required for %s", a.Type)
		}
		if a.Value == nil {
			return fmt.Errorf("value is required for %s", a.Type)
		}
	case AssertTickCount:
		if a.Node == "" {
			return fmt.Errorf("node is required for tick_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
	case AssertTickOrder:
		if len(a.Nodes) < 2 {
			return fmt.Errorf("tick_order needs at least two nodes")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
