package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/tsflow/internal/engine"
)

// RunWithGolden executes a scenario, evaluates its assertions, and pins
// the canonical trace against testdata/golden/<name>.golden.
//
// Regenerate golden files with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, s *Scenario, reg *engine.Registry) *Result {
	t.Helper()

	result, err := Run(s, reg)
	if err != nil {
		t.Fatalf("scenario %s failed to run: %v", s.Name, err)
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, s.Name, result.Canonical)
	return result
}

// RunDir runs every scenario under dir as a subtest with golden
// comparison.
func RunDir(t *testing.T, dir string, reg *engine.Registry) {
	t.Helper()

	scenarios, err := LoadScenarioDir(dir)
	if err != nil {
		t.Fatalf("load scenarios from %s: %v", dir, err)
	}
	if len(scenarios) == 0 {
		t.Fatalf("no scenarios under %s", dir)
	}
	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			RunWithGolden(t, s, reg)
		})
	}
}
