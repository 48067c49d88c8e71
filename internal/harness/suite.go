package harness

import (
	"fmt"

	"github.com/roach88/tsflow/internal/engine"
)

// SuiteResult summarises a directory of scenarios, for callers outside go
// test such as the CLI.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure is one failed scenario with its assertion messages.
type SuiteFailure struct {
	Scenario string   `json:"scenario"`
	Errors   []string `json:"errors"`
}

// RunSuite loads and runs every scenario under dir. Scenario-level
// failures (unreadable file, unbuildable graph) abort the suite;
// assertion misses are collected per scenario.
func RunSuite(dir string, reg *engine.Registry) (*SuiteResult, error) {
	scenarios, err := LoadScenarioDir(dir)
	if err != nil {
		return nil, err
	}
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenarios under %s", dir)
	}

	suite := &SuiteResult{}
	for _, s := range scenarios {
		suite.Total++
		result, err := Run(s, reg)
		if err != nil {
			return nil, err
		}
		if result.Pass {
			suite.Passed++
			continue
		}
		suite.Failed++
		suite.Failures = append(suite.Failures, SuiteFailure{
			Scenario: s.Name,
			Errors:   result.Errors,
		})
	}
	return suite, nil
}
