package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	if errs := Validate(cfg); len(errs) != 0 {
		t.Fatalf("DefaultConfig() should validate cleanly, got: %v", errs)
	}
}

func TestLoadFallsBackOnInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "gandalf-weights.yaml"), []byte("not: [valid: yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, warnings, err := Load(dir)
	if err != nil {
		t.Fatalf("Load returned error, want nil: %v", err)
	}
	if len(warnings) == 0 {
		t.Fatal("expected a warning for invalid YAML")
	}
	if cfg.Weights != DefaultConfig().Weights {
		t.Fatalf("expected default weights on invalid YAML, got %+v", cfg.Weights)
	}
}

func TestLoadAppliesWeightsFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "weights:\n  recent_modification: 0.5\n  file_size_optimality: 0.1\n  file_type_priority: 0.1\n  directory_importance: 0.15\n  git_activity: 0.15\n"
	if err := os.WriteFile(filepath.Join(dir, "gandalf-weights.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Weights.RecentModification != 0.5 {
		t.Fatalf("RecentModification = %v, want 0.5", cfg.Weights.RecentModification)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "cache:\n  ttl_seconds: 60\nweights:\n  git_activity: 0.2\n"
	if err := os.WriteFile(filepath.Join(dir, "gandalf-weights.yaml"), []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GANDALF_CACHE_TTL", "120")
	t.Setenv("WEIGHT_GIT_ACTIVITY", "0.9")

	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Cache.TTLSeconds != 120 {
		t.Fatalf("Cache.TTLSeconds = %d, want 120", cfg.Cache.TTLSeconds)
	}
	if cfg.Weights.GitActivity != 0.9 {
		t.Fatalf("Weights.GitActivity = %v, want 0.9", cfg.Weights.GitActivity)
	}
}

func TestHashStableForEqualWeights(t *testing.T) {
	a := DefaultConfig()
	b := DefaultConfig()
	if a.Hash() != b.Hash() {
		t.Fatal("Hash() should be identical for identical weights")
	}
	b.Weights.GitActivity += 0.01
	if a.Hash() == b.Hash() {
		t.Fatal("Hash() should differ when weights differ")
	}
}
