package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/tsflow/internal/compiler"
	"github.com/roach88/tsflow/internal/desc"
)

// LoadGraphs loads every graph defined by the CUE files under dir. The
// files unify into one instance first, so shared schema and defaults in
// the directory apply to all graphs.
func LoadGraphs(dir string) ([]*desc.Graph, error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("definitions directory not found: %s", dir)
	}
	if err != nil {
		return nil, fmt.Errorf("access definitions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	cueFiles, err := findCUEFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("scan definitions directory: %w", err)
	}
	if len(cueFiles) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("load CUE files: %w", inst.Err)
	}

	value := cuecontext.New().BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("build CUE value: %w", err)
	}

	return compiler.CompileGraphs(value)
}

// LoadGraph loads definitions from dir and selects one graph by name. An
// empty name is allowed when the directory defines exactly one graph.
func LoadGraph(dir, name string) (*desc.Graph, error) {
	graphs, err := LoadGraphs(dir)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(graphs) != 1 {
			names := make([]string, len(graphs))
			for i, g := range graphs {
				names[i] = g.Name
			}
			return nil, fmt.Errorf("directory defines %d graphs %v, pick one with --graph", len(graphs), names)
		}
		return graphs[0], nil
	}
	for _, g := range graphs {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("graph %q not defined in %s", name, dir)
}

func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
