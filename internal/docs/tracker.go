package docs

import (
	"sort"

	"cci/internal/graph"
	"cci/internal/index"
)

// Dirty reasons recorded per folder.
const (
	ReasonNew         = "new"
	ReasonStructure   = "structure-changed"
	ReasonSmartSymbol = "smart-symbol"
)

// DirtyState is the outcome of a dirty-tracking pass.
type DirtyState struct {
	// Hashes holds the current structure hash of every folder.
	Hashes map[string]string

	// Folders maps each dirty folder to its reason.
	Folders map[string]string

	// Modules maps each module to its constituent folders.
	Modules map[string][]string

	// DirtyModules lists modules needing regeneration, sorted.
	DirtyModules []string

	// ProjectDirty is set when any module is dirty.
	ProjectDirty bool

	// Order is the generation schedule over all folders: SCC levels in
	// topological order, dependencies first.
	Order [][]string
}

// IsDirty reports whether a folder needs regeneration.
func (s *DirtyState) IsDirty(folder string) bool {
	_, ok := s.Folders[folder]
	return ok
}

// DirtyOrder filters the generation schedule to dirty folders, preserving
// level structure and dropping empty levels.
func (s *DirtyState) DirtyOrder() [][]string {
	var out [][]string
	for _, level := range s.Order {
		var kept []string
		for _, folder := range level {
			if s.IsDirty(folder) {
				kept = append(kept, folder)
			}
		}
		if len(kept) > 0 {
			out = append(out, kept)
		}
	}
	return out
}

// Track computes dirty state from the current index, the folder graph and
// the previous manifest. Module definitions are optional; nil enables
// auto-detection.
func Track(ix *index.Index, fg *graph.FolderGraph, prev *Manifest, defs ModuleDefs) *DirtyState {
	state := &DirtyState{
		Hashes:  FolderHashes(ix),
		Folders: make(map[string]string),
	}

	// Structural dirtiness: new folders and changed hashes.
	for folder, hash := range state.Hashes {
		old, known := prev.Folders[folder]
		switch {
		case !known:
			state.Folders[folder] = ReasonNew
		case old.StructureHash != hash:
			state.Folders[folder] = ReasonStructure
		}
	}

	// Smart-symbol propagation: a folder whose stored doc references a
	// symbol living in a dirty folder becomes dirty too, to closure.
	for changed := true; changed; {
		changed = false
		for folder, st := range prev.Folders {
			if state.IsDirty(folder) {
				continue
			}
			for _, smart := range st.SmartSymbols {
				uri, err := ParseSCIPURI(smart)
				if err != nil {
					continue
				}
				if state.IsDirty(folderOf(uri.FilePath)) {
					state.Folders[folder] = ReasonSmartSymbol
					changed = true
					break
				}
			}
		}
	}

	folders := make([]string, 0, len(state.Hashes))
	for folder := range state.Hashes {
		folders = append(folders, folder)
	}
	sort.Strings(folders)
	state.Modules = GroupByModule(folders, defs)

	// A module is dirty when a constituent folder is dirty or a folder's
	// doc hash changed since the module was recorded.
	for module, members := range state.Modules {
		prevModule, known := prev.Modules[module]
		dirty := !known
		for _, folder := range members {
			if state.IsDirty(folder) {
				dirty = true
				break
			}
			if known {
				if recorded, ok := prevModule.FolderDocHashes[folder]; ok {
					if recorded != prev.Folders[folder].DocHash {
						dirty = true
						break
					}
				}
			}
		}
		if dirty {
			state.DirtyModules = append(state.DirtyModules, module)
		}
	}
	sort.Strings(state.DirtyModules)
	state.ProjectDirty = len(state.DirtyModules) > 0

	state.Order = fg.GenerationOrder()
	return state
}

// Record folds a completed generation pass for one folder back into the
// manifest.
func (m *Manifest) Record(folder, structureHash, docHash, generatedAt string, fg *graph.FolderGraph, smartSymbols []string) {
	m.Folders[folder] = FolderState{
		StructureHash: structureHash,
		DocHash:       docHash,
		GeneratedAt:   generatedAt,
		InternalDeps:  fg.InternalDeps(folder),
		ExternalDeps:  fg.ExternalDeps(folder),
		SmartSymbols:  smartSymbols,
	}
}

// RecordModules refreshes module and project records from folder state.
func (m *Manifest) RecordModules(modules map[string][]string) {
	moduleHashes := make(map[string]string, len(modules))
	for module, members := range modules {
		folderHashes := make(map[string]string, len(members))
		var concat string
		for _, folder := range members {
			h := m.Folders[folder].DocHash
			folderHashes[folder] = h
			concat += folder + ":" + h + "\n"
		}
		hash := ContentHash([]byte(concat))
		m.Modules[module] = ModuleState{
			DocHash:         hash,
			ChildFolders:    members,
			FolderDocHashes: folderHashes,
		}
		moduleHashes[module] = hash
	}
	var concat string
	names := make([]string, 0, len(moduleHashes))
	for name := range moduleHashes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		concat += name + ":" + moduleHashes[name] + "\n"
	}
	m.Project = ProjectState{
		DocHash:         ContentHash([]byte(concat)),
		ModuleDocHashes: moduleHashes,
	}
}
