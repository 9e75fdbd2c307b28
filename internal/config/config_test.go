package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Language.ID != "dart" {
		t.Errorf("language = %q, want dart", cfg.Language.ID)
	}
	if cfg.Docs.Style != "relative" {
		t.Errorf("docs style = %q, want relative", cfg.Docs.Style)
	}
	if cfg.Watcher.DebounceMs < 50 {
		t.Errorf("debounce = %d, want >= 50", cfg.Watcher.DebounceMs)
	}
	if !cfg.UseCache {
		t.Error("cache should default on")
	}
}

func TestContextDir(t *testing.T) {
	cfg := Default()
	if got := cfg.ContextDir("/work/app"); got != filepath.Join("/work/app", ".dart_context") {
		t.Errorf("ContextDir = %q", got)
	}
	cfg.Language.ID = "kotlin"
	if got := cfg.ContextDir("/work/app"); got != filepath.Join("/work/app", ".kotlin_context") {
		t.Errorf("ContextDir = %q", got)
	}
}

func TestLoadDefaultsWhenNoFile(t *testing.T) {
	result, err := Load(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if !result.UsedDefaults {
		t.Error("UsedDefaults not set")
	}
	if result.Config.Language.ID != "dart" {
		t.Errorf("language = %q", result.Config.Language.ID)
	}
}

func TestLoadReadsConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "" +
		"language:\n" +
		"  id: kotlin\n" +
		"  index_path: build/index.scip\n" +
		"docs:\n" +
		"  style: github\n" +
		"  base_url: https://example.com/repo\n"
	if err := os.WriteFile(filepath.Join(dir, ".cci.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	result, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if result.UsedDefaults {
		t.Error("config file not detected")
	}
	cfg := result.Config
	if cfg.Language.ID != "kotlin" {
		t.Errorf("language = %q, want kotlin", cfg.Language.ID)
	}
	if cfg.Docs.Style != "github" || cfg.Docs.BaseURL != "https://example.com/repo" {
		t.Errorf("docs = %+v", cfg.Docs)
	}
	// Unset keys keep defaults.
	if cfg.Watcher.DebounceMs < 50 {
		t.Errorf("debounce lost its default: %d", cfg.Watcher.DebounceMs)
	}
}

func TestIndexFile(t *testing.T) {
	cfg := Default()
	if got := cfg.IndexFile("/work/app"); got != filepath.Join("/work/app", "index.scip") {
		t.Errorf("IndexFile = %q", got)
	}
	cfg.Language.IndexPath = "/abs/index.scip"
	if got := cfg.IndexFile("/work/app"); got != "/abs/index.scip" {
		t.Errorf("IndexFile = %q", got)
	}
}
