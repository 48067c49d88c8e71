package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tsflow/internal/store"
)

// recordSumRun records one run of the sum graph and returns the db path
// and run ID.
func recordSumRun(t *testing.T) (string, string) {
	t.Helper()
	dir := writeGraphDir(t, sumGraphCUE)
	db := filepath.Join(t.TempDir(), "runs.db")

	_, err := execute(t, "run", dir, "--db", db)
	require.NoError(t, err)

	st, err := store.Open(db)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	return db, runs[0].ID
}

func TestTraceCommandListsRuns(t *testing.T) {
	db, runID := recordSumRun(t)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, runID)
	assert.Contains(t, out, "sum")
	assert.Contains(t, out, "finished")
}

func TestTraceCommandPrintsTicks(t *testing.T) {
	db, runID := recordSumRun(t)

	out, err := execute(t, "trace", "--db", db, runID)
	require.NoError(t, err)
	assert.Contains(t, out, `"node":"root/sum"`)
	assert.Contains(t, out, `"value":3`)
}

func TestTraceCommandNodeFilter(t *testing.T) {
	db, runID := recordSumRun(t)

	out, err := execute(t, "trace", "--db", db, runID, "--node", "root/a")
	require.NoError(t, err)
	assert.Contains(t, out, `"node":"root/a"`)
	assert.NotContains(t, out, `"node":"root/sum"`)
}

func TestTraceCommandUnknownRun(t *testing.T) {
	db, _ := recordSumRun(t)

	_, err := execute(t, "trace", "--db", db, "no-such-run")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
