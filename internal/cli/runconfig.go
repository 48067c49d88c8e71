package cli

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RunConfig is the YAML form of the run command's settings. Flags given
// on the command line override file values.
type RunConfig struct {
	Graph    string       `yaml:"graph,omitempty"`
	Database string       `yaml:"db,omitempty"`
	RealTime bool         `yaml:"realtime,omitempty"`
	Duration yamlDuration `yaml:"duration,omitempty"`
	Watch    []string     `yaml:"watch,omitempty"`
}

// yamlDuration decodes Go duration strings ("30s", "2m") from YAML.
type yamlDuration time.Duration

func (d *yamlDuration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = yamlDuration(parsed)
	return nil
}

// LoadRunConfig reads a run configuration file. Unknown fields are
// rejected.
func LoadRunConfig(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run config: %w", err)
	}
	var cfg RunConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse run config %s: %w", path, err)
	}
	return &cfg, nil
}

// apply merges file values into options, keeping any flag the user set
// explicitly.
func (cfg *RunConfig) apply(opts *RunOptions, set func(name string) bool) {
	if cfg.Graph != "" && !set("graph") {
		opts.Graph = cfg.Graph
	}
	if cfg.Database != "" && !set("db") {
		opts.Database = cfg.Database
	}
	if cfg.RealTime && !set("realtime") {
		opts.RealTime = cfg.RealTime
	}
	if cfg.Duration > 0 && !set("duration") {
		opts.Duration = time.Duration(cfg.Duration)
	}
	if len(cfg.Watch) > 0 && !set("watch") {
		opts.Watch = cfg.Watch
	}
}
