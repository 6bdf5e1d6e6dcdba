// Package config holds process-wide settings for a noet-core compilation
// run, loaded the way the teacher's internal/config loads its yaml-tagged
// struct-of-structs (gopkg.in/yaml.v3) from a dotfile under the workspace.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Format is a frontmatter/network-config serialisation preference.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// Config is the top-level process configuration, loaded from
// .noet/config.yaml relative to the workspace root.
type Config struct {
	// Workspace is the root directory containing network roots. Not
	// serialised; set by the caller after Load.
	Workspace string `yaml:"-"`

	// OutputDir is where HTML fragments, the SPA shell, sitemap and static
	// assets are written.
	OutputDir string `yaml:"output_dir"`

	// DefaultFormat is the frontmatter encoding tried first when a document
	// or network does not specify noet.network_config.format.
	DefaultFormat Format `yaml:"default_format"`

	// StrictFormat, when true, makes SchemaRegistry validation failures a
	// codec error instead of an advisory diagnostic (§9 Design Notes).
	StrictFormat bool `yaml:"strict_format"`

	// EmitImmediateHTML controls whether the driver writes HTML fragments
	// as each file is parsed, versus leaving everything to the deferred
	// pass. Disabling this is useful for pure graph-compilation runs.
	EmitImmediateHTML bool `yaml:"emit_immediate_html"`

	// MaxPassAttempts bounds the reparse loop per file (§4.5: 3-attempt cap).
	MaxPassAttempts int `yaml:"max_pass_attempts"`

	// ForceReparse makes the staleness check treat every cached file as
	// stale, re-enqueuing the whole workspace regardless of mtimes (§4.5
	// check_stale_files, force == true).
	ForceReparse bool `yaml:"-"`

	// WriteSource enables canonical source write-back after convergence:
	// heading {#id} attributes, canonical bref:// links and bid-first
	// frontmatter are rewritten into the source files themselves (§6
	// "Markdown output contract (when writing back)").
	WriteSource bool `yaml:"write_source"`

	// ReservedIDPrefix is the string-ID prefix rejected on parse (§4.1).
	ReservedIDPrefix string `yaml:"reserved_id_prefix"`

	// CachePath is the sqlite database backing the persistent BeliefSource
	// (§6), relative to Workspace. Empty disables the persistent mirror and
	// runs purely in-memory.
	CachePath string `yaml:"cache_path"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig mirrors the teacher's debug/verbose toggle shape.
type LoggingConfig struct {
	Verbose bool `yaml:"verbose"`
}

// Default returns sensible defaults, the same constructor shape as the
// teacher's DefaultBuildConfig().
func Default() Config {
	return Config{
		OutputDir:         "out",
		DefaultFormat:     FormatJSON,
		StrictFormat:      false,
		EmitImmediateHTML: true,
		MaxPassAttempts:   3,
		ReservedIDPrefix:  "_noet:",
		CachePath:         ".noet/cache.sqlite3",
	}
}

// Load reads .noet/config.yaml under workspace, falling back to defaults for
// any field left unset (and entirely if the file does not exist).
func Load(workspace string) (Config, error) {
	cfg := Default()
	cfg.Workspace = workspace

	path := filepath.Join(workspace, ".noet", "config.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.Workspace = workspace
	return cfg, nil
}
