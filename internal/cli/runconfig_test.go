package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRunConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`graph: prices
db: ./runs.db
duration: 30s
watch: [prices, vwap]
`), 0o644))

	cfg, err := LoadRunConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "prices", cfg.Graph)
	assert.Equal(t, "./runs.db", cfg.Database)
	assert.Equal(t, 30*time.Second, time.Duration(cfg.Duration))
	assert.Equal(t, []string{"prices", "vwap"}, cfg.Watch)
}

func TestLoadRunConfigRejectsUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("grph: oops\n"), 0o644))

	_, err := LoadRunConfig(path)
	require.Error(t, err)
}

func TestRunConfigFlagsOverride(t *testing.T) {
	cfg := &RunConfig{Graph: "from-file", Database: "file.db"}
	opts := &RunOptions{Graph: "from-flag"}

	cfg.apply(opts, func(name string) bool { return name == "graph" })

	assert.Equal(t, "from-flag", opts.Graph)
	assert.Equal(t, "file.db", opts.Database)
}

func TestRunCommandWithConfigFile(t *testing.T) {
	dir := writeGraphDir(t, sumGraphCUE)
	cfgPath := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("watch: [sum]\n"), 0o644))

	out, err := execute(t, "run", dir, "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"node":"root/sum"`)
}
