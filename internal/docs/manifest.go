package docs

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	cerr "cci/internal/errors"
	"cci/internal/logging"
)

// ManifestVersion is bumped on schema changes; loads of newer versions are
// treated as corrupt (full regeneration).
const ManifestVersion = 2

// FolderState is the persisted per-folder generation record.
type FolderState struct {
	StructureHash string   `json:"structureHash"`
	DocHash       string   `json:"docHash,omitempty"`
	GeneratedAt   string   `json:"generatedAt,omitempty"`
	InternalDeps  []string `json:"internalDeps,omitempty"`
	ExternalDeps  []string `json:"externalDeps,omitempty"`
	SmartSymbols  []string `json:"smartSymbols,omitempty"`
}

// ModuleState is the persisted per-module record.
type ModuleState struct {
	DocHash         string            `json:"docHash,omitempty"`
	ChildFolders    []string          `json:"childFolders,omitempty"`
	FolderDocHashes map[string]string `json:"folderDocHashes,omitempty"`
}

// ProjectState is the persisted project-level record.
type ProjectState struct {
	DocHash         string            `json:"docHash,omitempty"`
	ModuleDocHashes map[string]string `json:"moduleDocHashes,omitempty"`
}

// Manifest is the on-disk source of truth for "already generated".
// In-memory state is discarded on restart.
type Manifest struct {
	Version     int                    `json:"version"`
	RunID       string                 `json:"runId,omitempty"`
	LastUpdated string                 `json:"lastUpdated,omitempty"`
	Folders     map[string]FolderState `json:"folders"`
	Modules     map[string]ModuleState `json:"modules"`
	Project     ProjectState           `json:"project"`
}

// NewManifest creates an empty manifest at the current schema version.
func NewManifest() *Manifest {
	return &Manifest{
		Version: ManifestVersion,
		Folders: make(map[string]FolderState),
		Modules: make(map[string]ModuleState),
	}
}

// LoadManifest reads the manifest from disk. A missing file yields an empty
// manifest. A corrupt or future-versioned file also yields an empty
// manifest, logged as a warning: the pipeline regenerates from scratch
// rather than failing.
func LoadManifest(path string, logger *logging.Logger) *Manifest {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Warn("manifest unreadable, regenerating all docs", map[string]interface{}{
				"path": path, "error": err.Error(),
			})
		}
		return NewManifest()
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil || m.Version > ManifestVersion {
		if logger != nil {
			logger.Warn("manifest corrupt, regenerating all docs", map[string]interface{}{
				"path": path, "kind": string(cerr.ManifestCorrupt),
			})
		}
		return NewManifest()
	}
	if m.Folders == nil {
		m.Folders = make(map[string]FolderState)
	}
	if m.Modules == nil {
		m.Modules = make(map[string]ModuleState)
	}
	return &m
}

// Save writes the manifest atomically: a temporary sibling is written first
// and renamed into place, so readers see either the previous or the new
// manifest, never a truncated one.
func (m *Manifest) Save(path string) error {
	m.Version = ManifestVersion
	m.RunID = uuid.NewString()
	m.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return cerr.Wrap(cerr.Internal, "failed to encode manifest", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cerr.Wrap(cerr.IO, "failed to create manifest directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cerr.Wrap(cerr.IO, "failed to write manifest", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return cerr.Wrap(cerr.IO, "failed to replace manifest", err)
	}
	return nil
}
