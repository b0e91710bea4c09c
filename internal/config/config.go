// Package config loads the engine's YAML configuration, matching the key
// namespace of spec.md §6 exactly.
/*
 * Copyright (c) 2024-2026, the dynamo project authors.
 */
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ModuleConfig names a pluggable backend implementation plus its
// free-form config blob, spec.md §6's "master.{module, config,
// readonly_config}" shape reused across master/shadow/board/registry.
type ModuleConfig struct {
	Module         string            `yaml:"module"`
	Config         map[string]string `yaml:"config"`
	ReadonlyConfig map[string]string `yaml:"readonly_config"`
}

// BackendConfig is registry.backend.{interface, config, readonly_config}.
type BackendConfig struct {
	Interface      string            `yaml:"interface"`
	Config         map[string]string `yaml:"config"`
	ReadonlyConfig map[string]string `yaml:"readonly_config"`
}

// RegistryConfig is the registry.* namespace.
type RegistryConfig struct {
	Backend BackendConfig `yaml:"backend"`
}

// PersistencyConfig is inventory.persistency.{module, config, readonly_config}.
type PersistencyConfig struct {
	Module         string            `yaml:"module"`
	Config         map[string]string `yaml:"config"`
	ReadonlyConfig map[string]string `yaml:"readonly_config"`
}

// InventoryConfig is the inventory.* namespace.
type InventoryConfig struct {
	Persistency PersistencyConfig `yaml:"persistency"`
}

// DebugConfig is debug.{included_, excluded_} filters, keyed by entity
// kind (e.g. "dataset", "site").
type DebugConfig struct {
	Included map[string][]string `yaml:"included_"`
	Excluded map[string][]string `yaml:"excluded_"`
}

// Config is the full engine configuration, spec.md §6 "Configuration".
type Config struct {
	Master   ModuleConfig    `yaml:"master"`
	Shadow   *ModuleConfig   `yaml:"shadow"` // nil ⇒ no shadow
	Board    ModuleConfig    `yaml:"board"`
	Registry RegistryConfig  `yaml:"registry"`
	Inventory InventoryConfig `yaml:"inventory"`

	User     string `yaml:"user"`      // full-access OS user
	ReadUser string `yaml:"read_user"` // read-only OS user

	Debug DebugConfig `yaml:"debug"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "config: parse")
	}
	if cfg.Master.Module == "" {
		return nil, errors.New("config: master.module is required")
	}
	if cfg.Board.Module == "" {
		return nil, errors.New("config: board.module is required")
	}
	return &cfg, nil
}

// Included reports whether name passes kind's included/excluded filters:
// included (if non-empty) must contain name; excluded, if it contains
// name, vetoes regardless of the included list.
func (d DebugConfig) Included(kind, name string) bool {
	if excl, ok := d.Excluded[kind]; ok {
		for _, e := range excl {
			if e == name {
				return false
			}
		}
	}
	incl, ok := d.Included[kind]
	if !ok || len(incl) == 0 {
		return true
	}
	for _, i := range incl {
		if i == name {
			return true
		}
	}
	return false
}
