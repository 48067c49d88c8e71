package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoldenScenarios(t *testing.T) {
	RunDir(t, "testdata/scenarios", nil)
}

func TestRunSuite(t *testing.T) {
	suite, err := RunSuite("testdata/scenarios", nil)
	require.NoError(t, err)

	assert.Equal(t, 2, suite.Total)
	assert.Equal(t, 2, suite.Passed)
	assert.Zero(t, suite.Failed)
	assert.Empty(t, suite.Failures)
}

func TestRunSuiteEmptyDirFails(t *testing.T) {
	_, err := RunSuite(t.TempDir(), nil)
	require.Error(t, err)
}
