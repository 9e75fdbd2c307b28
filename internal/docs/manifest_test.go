package docs

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docs", "manifest.json")

	m := NewManifest()
	m.Folders["lib/auth"] = FolderState{
		StructureHash: "abc123",
		DocHash:       "def456",
		GeneratedAt:   "2026-07-01T00:00:00Z",
		InternalDeps:  []string{"lib/core"},
		ExternalDeps:  []string{"crypto_kit@2.0.0"},
		SmartSymbols:  []string{"scip://lib/auth/service.dart/AuthService#"},
	}
	m.Modules["auth"] = ModuleState{
		DocHash:         "mmm",
		ChildFolders:    []string{"lib/auth"},
		FolderDocHashes: map[string]string{"lib/auth": "def456"},
	}
	m.Project = ProjectState{
		DocHash:         "ppp",
		ModuleDocHashes: map[string]string{"auth": "mmm"},
	}

	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded := LoadManifest(path, nil)

	if !reflect.DeepEqual(loaded.Folders, m.Folders) {
		t.Errorf("folders = %+v, want %+v", loaded.Folders, m.Folders)
	}
	if !reflect.DeepEqual(loaded.Modules, m.Modules) {
		t.Errorf("modules = %+v, want %+v", loaded.Modules, m.Modules)
	}
	if !reflect.DeepEqual(loaded.Project, m.Project) {
		t.Errorf("project = %+v, want %+v", loaded.Project, m.Project)
	}
	if loaded.Version != ManifestVersion {
		t.Errorf("version = %d, want %d", loaded.Version, ManifestVersion)
	}
}

func TestManifestMissingIsEmpty(t *testing.T) {
	m := LoadManifest(filepath.Join(t.TempDir(), "nope.json"), nil)
	if len(m.Folders) != 0 || len(m.Modules) != 0 {
		t.Errorf("missing manifest not empty: %+v", m)
	}
}

func TestManifestCorruptIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	m := LoadManifest(path, nil)
	if len(m.Folders) != 0 {
		t.Errorf("corrupt manifest yielded state: %+v", m)
	}
}

func TestManifestFutureVersionIsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	if err := os.WriteFile(path, []byte(`{"version": 99, "folders": {"x": {}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := LoadManifest(path, nil)
	if len(m.Folders) != 0 {
		t.Error("future-versioned manifest was trusted")
	}
}

func TestManifestSaveAtomicLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	m := NewManifest()
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary sibling left behind")
	}
}
