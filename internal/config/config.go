// Package config loads the miner's YAML configuration file: the set of
// indexing roots and their flags, plus the dispatcher/store tuning knobs.
// Validation follows the teacher's "explicit errors, no panics" style
// (pkg/configuration/size.go's Parse methods never panic on malformed
// input, always returning a descriptive error instead).
package config

import (
	"fmt"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/trackerminers/filesystem-miner/internal/model"
	"github.com/trackerminers/filesystem-miner/pkg/encoding"
)

// RootConfig is the YAML shape of a single indexing root.
type RootConfig struct {
	Path         string `yaml:"path"`
	Recurse      bool   `yaml:"recurse"`
	Monitor      bool   `yaml:"monitor"`
	CheckMtime   bool   `yaml:"checkMtime"`
	NoStat       bool   `yaml:"noStat"`
	Priority     bool   `yaml:"priority"`
	Ignore       bool   `yaml:"ignore"`
	Preserve     bool   `yaml:"preserve"`
	CheckDeleted bool   `yaml:"checkDeleted"`
}

// Flags converts the YAML booleans into a model.RootFlags bitmask.
func (r RootConfig) Flags() model.RootFlags {
	var flags model.RootFlags
	if r.Recurse {
		flags |= model.FlagRecurse
	}
	if r.Monitor {
		flags |= model.FlagMonitor
	}
	if r.CheckMtime {
		flags |= model.FlagCheckMtime
	}
	if r.NoStat {
		flags |= model.FlagNoStat
	}
	if r.Priority {
		flags |= model.FlagPriority
	}
	if r.Ignore {
		flags |= model.FlagIgnore
	}
	if r.Preserve {
		flags |= model.FlagPreserve
	}
	if r.CheckDeleted {
		flags |= model.FlagCheckDeleted
	}
	return flags
}

// MinerConfig is the YAML shape of the dispatcher/store tuning knobs.
type MinerConfig struct {
	// Throttle scales the idle interval between dispatch slices, in
	// [0,1] (spec §4.7).
	Throttle float64 `yaml:"throttle"`
	// ReadyLimit is the sparql buffer's back-pressure threshold (spec
	// §4.9).
	ReadyLimit int `yaml:"readyLimit"`
	// StoreAddress is the network address of a remote rpcstore server; if
	// empty, the in-process memstore is used instead.
	StoreAddress string `yaml:"storeAddress"`
}

// RootConfiguration is the top-level YAML document.
type RootConfiguration struct {
	Roots []RootConfig `yaml:"roots"`
	Miner MinerConfig  `yaml:"miner"`
}

// Load reads and parses the YAML configuration at path, applying
// defaults and validating every root. It passes through file-not-found
// errors unmodified so callers can distinguish "no config file" from a
// malformed one.
func Load(path string) (*RootConfiguration, error) {
	config := &RootConfiguration{
		Miner: MinerConfig{
			Throttle:   0.25,
			ReadyLimit: 1000,
		},
	}

	if err := encoding.LoadAndUnmarshal(path, func(data []byte) error {
		return yaml.Unmarshal(data, config)
	}); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks every field for a value the rest of the module can act
// on without further checking, returning the first problem found.
func (c *RootConfiguration) Validate() error {
	if c.Miner.Throttle < 0 || c.Miner.Throttle > 1 {
		return fmt.Errorf("miner.throttle must be in [0, 1], got %v", c.Miner.Throttle)
	}
	if c.Miner.ReadyLimit <= 0 {
		return fmt.Errorf("miner.readyLimit must be positive, got %d", c.Miner.ReadyLimit)
	}

	seen := make(map[string]bool, len(c.Roots))
	for i, root := range c.Roots {
		if root.Path == "" {
			return fmt.Errorf("roots[%d]: path must not be empty", i)
		}
		if !filepath.IsAbs(root.Path) {
			return fmt.Errorf("roots[%d]: path %q must be absolute", i, root.Path)
		}
		clean := filepath.Clean(root.Path)
		if seen[clean] {
			return fmt.Errorf("roots[%d]: path %q configured more than once", i, root.Path)
		}
		seen[clean] = true
	}
	return nil
}
