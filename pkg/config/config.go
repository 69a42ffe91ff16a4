// Package config loads the engine configuration from a YAML file, filling
// in complete defaults for anything the file omits.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Protection class names accepted in context configuration.
const (
	ProtectionStandard    = "standard"
	ProtectionNeverForget = "never-forget"
)

// PersonaConfig describes one memory owner and its tier capacities.
type PersonaConfig struct {
	Name string `yaml:"name"`

	// ShortCapacity and LongCapacity are hard ceilings on entry counts per
	// tier; lifecycle passes evict down to these after age rules run.
	ShortCapacity int `yaml:"short_capacity"`
	LongCapacity  int `yaml:"long_capacity"`

	// SearchTopK is how many short-term hits a search returns; long-term
	// searches return half that, minimum 3.
	SearchTopK int `yaml:"search_top_k"`

	// FragmentMultiplier > 1 stores derived fragment entries alongside each
	// original, linked through lineage.
	FragmentMultiplier int `yaml:"fragment_multiplier"`
}

// LifecycleConfig holds the wake-based aging thresholds. All values are
// logical wake counts, never wall-clock durations.
type LifecycleConfig struct {
	ShortPurgeThreshold   int `yaml:"short_purge_threshold"`
	ShortPromoteMinAge    int `yaml:"short_promote_min_age"`
	ShortPromoteMinAccess int `yaml:"short_promote_min_access"`
	LongArchiveThreshold  int `yaml:"long_archive_threshold"`
}

// CompactionConfig holds the compactor's trigger/target fractions and
// pipeline tuning.
type CompactionConfig struct {
	TriggerFraction float64 `yaml:"trigger_fraction"`
	TargetFraction  float64 `yaml:"target_fraction"`

	// MinDedupLength exempts short messages from duplicate suppression;
	// short repeated acknowledgements are not duplication bugs.
	MinDedupLength int `yaml:"min_dedup_length"`

	// KeepRecent is how many trailing messages hard truncation preserves.
	KeepRecent int `yaml:"keep_recent"`
}

// ContextConfig configures one working-context type.
type ContextConfig struct {
	MaxTokens        int    `yaml:"max_tokens"`
	Protection       string `yaml:"protection"`
	IdentityCritical bool   `yaml:"identity_critical"`
}

// ModelsConfig maps generation tiers to concrete model names.
type ModelsConfig struct {
	Efficient string `yaml:"efficient"`
	Premium   string `yaml:"premium"`
}

// Config is the root configuration document.
type Config struct {
	// DataDir is the root directory for stores, archive, contexts, and
	// audit logs.
	DataDir string `yaml:"data_dir"`

	Personas   []PersonaConfig          `yaml:"personas"`
	Lifecycle  LifecycleConfig          `yaml:"lifecycle"`
	Compaction CompactionConfig         `yaml:"compaction"`
	Contexts   map[string]ContextConfig `yaml:"contexts"`
	Models     ModelsConfig             `yaml:"models"`
}

// Default returns the built-in configuration: one persona, the stock
// lifecycle thresholds, and the 0.90/0.85 compaction fractions.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Personas: []PersonaConfig{
			{Name: "default", ShortCapacity: 1000, LongCapacity: 10000, SearchTopK: 5, FragmentMultiplier: 1},
		},
		Lifecycle: LifecycleConfig{
			ShortPurgeThreshold:   50,
			ShortPromoteMinAge:    60,
			ShortPromoteMinAccess: 3,
			LongArchiveThreshold:  500,
		},
		Compaction: CompactionConfig{
			TriggerFraction: 0.90,
			TargetFraction:  0.85,
			MinDedupLength:  200,
			KeepRecent:      10,
		},
		Contexts: map[string]ContextConfig{
			"identity": {MaxTokens: 8000, Protection: ProtectionNeverForget, IdentityCritical: true},
			"working":  {MaxTokens: 30000, Protection: ProtectionStandard},
			"history":  {MaxTokens: 20000, Protection: ProtectionStandard},
		},
		Models: ModelsConfig{
			Efficient: "gpt-4o-mini",
			Premium:   "gpt-4o",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".engram"
	}
	return home + "/.engram"
}

// Load reads the configuration at path, layered over Default(). A missing
// file returns the defaults; a malformed file is an error — config
// corruption is an operator mistake, not a runtime condition to paper over.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints and normalizes out-of-range
// tuning values.
func (c *Config) Validate() error {
	if len(c.Personas) == 0 {
		return fmt.Errorf("config: at least one persona is required")
	}
	seen := make(map[string]bool, len(c.Personas))
	for i := range c.Personas {
		p := &c.Personas[i]
		if p.Name == "" {
			return fmt.Errorf("config: persona %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("config: duplicate persona %q", p.Name)
		}
		seen[p.Name] = true
		if p.ShortCapacity <= 0 || p.LongCapacity <= 0 {
			return fmt.Errorf("config: persona %q has non-positive tier capacity", p.Name)
		}
		if p.SearchTopK < 1 {
			p.SearchTopK = 1
		}
		if p.FragmentMultiplier < 1 {
			p.FragmentMultiplier = 1
		}
	}

	for name, ctx := range c.Contexts {
		switch ctx.Protection {
		case "", ProtectionStandard, ProtectionNeverForget:
		default:
			return fmt.Errorf("config: context %q has unknown protection class %q", name, ctx.Protection)
		}
		if ctx.MaxTokens <= 0 {
			return fmt.Errorf("config: context %q has non-positive max_tokens", name)
		}
	}

	if c.Compaction.TriggerFraction <= 0 || c.Compaction.TriggerFraction > 1 {
		c.Compaction.TriggerFraction = 0.90
	}
	if c.Compaction.TargetFraction <= 0 || c.Compaction.TargetFraction >= c.Compaction.TriggerFraction {
		c.Compaction.TargetFraction = c.Compaction.TriggerFraction - 0.05
	}
	if c.Compaction.KeepRecent < 1 {
		c.Compaction.KeepRecent = 10
	}
	return nil
}

// Persona returns the configuration for the named persona, or nil when it
// is not defined.
func (c *Config) Persona(name string) *PersonaConfig {
	for i := range c.Personas {
		if c.Personas[i].Name == name {
			return &c.Personas[i]
		}
	}
	return nil
}
