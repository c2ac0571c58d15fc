// Package config loads and layers Gandalf's configuration: compiled-in
// defaults, an optional YAML weights file, and environment variable
// overrides.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// ScoreWeights holds the Relevance Scorer's per-factor weights.
type ScoreWeights struct {
	RecentModification float64 `mapstructure:"recent_modification" yaml:"recent_modification"`
	FileSizeOptimality float64 `mapstructure:"file_size_optimality" yaml:"file_size_optimality"`
	FileTypePriority   float64 `mapstructure:"file_type_priority" yaml:"file_type_priority"`
	DirectoryImportance float64 `mapstructure:"directory_importance" yaml:"directory_importance"`
	GitActivity        float64 `mapstructure:"git_activity" yaml:"git_activity"`
}

// TierThresholds holds the score cutoffs for bucketing a file into a
// PriorityTier.
type TierThresholds struct {
	High   float64 `mapstructure:"high" yaml:"high"`
	Medium float64 `mapstructure:"medium" yaml:"medium"`
}

// CacheConfig controls the on-disk cache.
type CacheConfig struct {
	TTLSeconds  int `mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
	MaxBytes    int64 `mapstructure:"max_bytes" yaml:"max_bytes"`
}

// LimitsConfig holds the default/max values for RPC arguments.
type LimitsConfig struct {
	MaxFiles           int `mapstructure:"max_files" yaml:"max_files"`
	DefaultDaysLookback int `mapstructure:"default_days_lookback" yaml:"default_days_lookback"`
}

// Config is the full effective configuration, built by layering
// DefaultConfig() under an optional YAML file under environment
// variables (Load does the layering; RPC-argument overrides happen
// per-call in the dispatcher, one layer further up).
type Config struct {
	Weights       ScoreWeights   `mapstructure:"weights" yaml:"weights"`
	Tiers         TierThresholds `mapstructure:"tiers" yaml:"tiers"`
	Cache         CacheConfig    `mapstructure:"cache" yaml:"cache"`
	Limits        LimitsConfig   `mapstructure:"limits" yaml:"limits"`
	FallbackTool  string         `mapstructure:"fallback_tool" yaml:"fallback_tool"`
	Debug         bool           `mapstructure:"debug" yaml:"debug"`
}

// DefaultConfig returns the compiled-in defaults, the first and
// lowest-precedence layer.
func DefaultConfig() *Config {
	return &Config{
		Weights: ScoreWeights{
			RecentModification:  0.30,
			FileSizeOptimality:  0.20,
			FileTypePriority:    0.20,
			DirectoryImportance: 0.15,
			GitActivity:         0.15,
		},
		Tiers: TierThresholds{High: 0.8, Medium: 0.5},
		Cache: CacheConfig{TTLSeconds: 3600, MaxBytes: 100 * 1024 * 1024},
		Limits: LimitsConfig{
			MaxFiles:            1000,
			DefaultDaysLookback: 7,
		},
		FallbackTool: "",
		Debug:        false,
	}
}

// GandalfHome resolves GANDALF_HOME, defaulting to ~/.gandalf.
func GandalfHome() string {
	if v := os.Getenv("GANDALF_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".gandalf"
	}
	return filepath.Join(home, ".gandalf")
}

// WeightsFilePath returns the optional YAML weights file location,
// preferring one in the project root over the user config directory.
func WeightsFilePath(projectRoot string) string {
	candidate := filepath.Join(projectRoot, "gandalf-weights.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return filepath.Join(GandalfHome(), "gandalf-weights.yaml")
}

// Load layers the YAML weights file (if present) and environment
// variables over DefaultConfig(). Invalid YAML produces a warning
// (returned, not fatal) and the defaults for that layer are kept.
func Load(projectRoot string) (*Config, []string, error) {
	cfg := DefaultConfig()
	var warnings []string

	path := WeightsFilePath(projectRoot)
	if data, err := os.ReadFile(path); err == nil {
		v := viper.New()
		v.SetConfigType("yaml")
		if err := v.ReadConfig(strings.NewReader(string(data))); err != nil {
			warnings = append(warnings, fmt.Sprintf("invalid YAML in %s, using defaults: %v", path, err))
		} else if err := v.Unmarshal(cfg); err != nil {
			warnings = append(warnings, fmt.Sprintf("could not apply %s, using defaults: %v", path, err))
		}
	}

	applyEnvOverrides(cfg, &warnings)

	if errs := Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			warnings = append(warnings, e.Error())
		}
	}

	return cfg, warnings, nil
}

// applyEnvOverrides implements layer 3: the fixed set
// of GANDALF_*/MCP_DEBUG/WEIGHT_* environment variables.
func applyEnvOverrides(cfg *Config, warnings *[]string) {
	if v := os.Getenv("GANDALF_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.TTLSeconds = n
		} else {
			*warnings = append(*warnings, "ignoring invalid GANDALF_CACHE_TTL: "+v)
		}
	}
	if v := os.Getenv("GANDALF_MAX_FILES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Limits.MaxFiles = n
		} else {
			*warnings = append(*warnings, "ignoring invalid GANDALF_MAX_FILES: "+v)
		}
	}
	if v := os.Getenv("MCP_DEBUG"); v != "" {
		cfg.Debug = isTruthy(v)
	}
	if v := os.Getenv("GANDALF_FALLBACK_TOOL"); v != "" {
		cfg.FallbackTool = v
	}

	weightEnv := map[string]*float64{
		"WEIGHT_RECENT_MODIFICATION": &cfg.Weights.RecentModification,
		"WEIGHT_FILE_SIZE_OPTIMALITY": &cfg.Weights.FileSizeOptimality,
		"WEIGHT_FILE_TYPE_PRIORITY":  &cfg.Weights.FileTypePriority,
		"WEIGHT_DIRECTORY_IMPORTANCE": &cfg.Weights.DirectoryImportance,
		"WEIGHT_GIT_ACTIVITY":        &cfg.Weights.GitActivity,
	}
	for name, slot := range weightEnv {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*warnings = append(*warnings, "ignoring invalid "+name+": "+v)
			continue
		}
		*slot = f
	}
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate checks enum/range membership and returns non-fatal warnings.
func Validate(cfg *Config) []error {
	var errs []error
	if cfg.Tiers.High <= cfg.Tiers.Medium {
		errs = append(errs, fmt.Errorf("tiers.high (%v) must be greater than tiers.medium (%v)", cfg.Tiers.High, cfg.Tiers.Medium))
	}
	sum := cfg.Weights.RecentModification + cfg.Weights.FileSizeOptimality +
		cfg.Weights.FileTypePriority + cfg.Weights.DirectoryImportance + cfg.Weights.GitActivity
	if sum <= 0 {
		errs = append(errs, fmt.Errorf("scoring weights sum to %v, expected > 0", sum))
	}
	if cfg.Cache.TTLSeconds <= 0 {
		errs = append(errs, fmt.Errorf("cache.ttl_seconds must be positive, got %d", cfg.Cache.TTLSeconds))
	}
	return errs
}

// Save writes cfg as the project-root YAML weights file.
func Save(projectRoot string, cfg *Config) error {
	v := viper.New()
	v.SetConfigType("yaml")
	v.Set("weights", cfg.Weights)
	v.Set("tiers", cfg.Tiers)
	v.Set("cache", cfg.Cache)
	v.Set("limits", cfg.Limits)
	v.Set("fallback_tool", cfg.FallbackTool)
	v.Set("debug", cfg.Debug)

	path := filepath.Join(projectRoot, "gandalf-weights.yaml")
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("saving %s: %w", path, err)
	}
	return nil
}

// Hash fingerprints the scoring-relevant portion of cfg, used as one
// input to the cache key.
func (c *Config) Hash() string {
	data, _ := json.Marshal(struct {
		Weights ScoreWeights
		Tiers   TierThresholds
	}{c.Weights, c.Tiers})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Copy deep-copies cfg so callers may apply per-call overrides without
// mutating the shared instance.
func (c *Config) Copy() *Config {
	cp := *c
	return &cp
}
