// Package registry layers a project index over workspace-local and external
// indexes and dispatches reads across them with fixed precedence: project
// first, then locals, then externals.
package registry

import (
	"cci/internal/index"
	"cci/internal/scip"
)

// Mode selects how cross-package identity is reconciled.
type Mode int

const (
	// WorkspaceMode reconciles symbols by name across sibling packages
	// that mint different ids for the same logical entity.
	WorkspaceMode Mode = iota
	// DependencyMode reconciles by exact symbol id only.
	DependencyMode
)

// Hit is a symbol together with the source root of the index that owns it,
// so downstream consumers can compute absolute paths.
type Hit struct {
	Info       *scip.SymbolInfo
	SourceRoot string
}

// Ref is an occurrence tagged with its source root.
type Ref struct {
	scip.Occurrence
	SourceRoot string `json:"sourceRoot,omitempty"`
}

// Registry holds one project index plus named local and external indexes.
// It never mutates contained indexes; it holds shared read ownership.
type Registry struct {
	project *index.Index
	mode    Mode

	localOrder []string
	locals     map[string]*index.Index

	externalOrder []string
	externals     map[string]*index.Index
}

// New creates a registry around a project index.
func New(project *index.Index, mode Mode) *Registry {
	return &Registry{
		project:   project,
		mode:      mode,
		locals:    make(map[string]*index.Index),
		externals: make(map[string]*index.Index),
	}
}

// Project returns the project index.
func (r *Registry) Project() *index.Index {
	return r.project
}

// Mode returns the identity reconciliation mode.
func (r *Registry) Mode() Mode {
	return r.mode
}

// AddLocal registers a workspace sibling package index.
func (r *Registry) AddLocal(packageID string, ix *index.Index) {
	if _, ok := r.locals[packageID]; !ok {
		r.localOrder = append(r.localOrder, packageID)
	}
	r.locals[packageID] = ix
}

// AddExternal registers an SDK, hosted or git package index.
func (r *Registry) AddExternal(packageID string, ix *index.Index) {
	if _, ok := r.externals[packageID]; !ok {
		r.externalOrder = append(r.externalOrder, packageID)
	}
	r.externals[packageID] = ix
}

// AllIndexes returns the ordered traversal: project, locals, externals.
func (r *Registry) AllIndexes() []*index.Index {
	out := make([]*index.Index, 0, 1+len(r.locals)+len(r.externals))
	out = append(out, r.project)
	for _, id := range r.localOrder {
		out = append(out, r.locals[id])
	}
	for _, id := range r.externalOrder {
		out = append(out, r.externals[id])
	}
	return out
}

// LocalIndexes returns project plus workspace locals in order.
func (r *Registry) LocalIndexes() []*index.Index {
	out := []*index.Index{r.project}
	for _, id := range r.localOrder {
		out = append(out, r.locals[id])
	}
	return out
}

// ExternalPackages returns the registered external package ids in order.
func (r *Registry) ExternalPackages() []string {
	out := make([]string, len(r.externalOrder))
	copy(out, r.externalOrder)
	return out
}

// FindSymbols unions name-predicate matches across all indexes, deduping by
// symbol id with project results preceding external ones.
func (r *Registry) FindSymbols(match func(name string) bool) []Hit {
	return r.collect(func(ix *index.Index) []*scip.SymbolInfo {
		return ix.FindSymbols(match)
	})
}

// FindSymbolsExact unions exact-name matches across all indexes.
func (r *Registry) FindSymbolsExact(name string) []Hit {
	return r.collect(func(ix *index.Index) []*scip.SymbolInfo {
		return ix.FindSymbolsExact(name)
	})
}

// FindSymbolsFuzzy unions fuzzy matches across all indexes.
func (r *Registry) FindSymbolsFuzzy(needle string) []Hit {
	return r.collect(func(ix *index.Index) []*scip.SymbolInfo {
		return ix.FindSymbolsFuzzy(needle)
	})
}

// FindQualified unions qualified-name matches across all indexes.
func (r *Registry) FindQualified(container, member string) []Hit {
	return r.collect(func(ix *index.Index) []*scip.SymbolInfo {
		return ix.FindQualified(container, member)
	})
}

// GetSymbol returns the first index's record for an exact symbol id.
func (r *Registry) GetSymbol(id string) (Hit, bool) {
	for _, ix := range r.AllIndexes() {
		if info := ix.GetSymbol(id); info != nil {
			return Hit{Info: info, SourceRoot: ix.Root()}, true
		}
	}
	return Hit{}, false
}

// FindDefinition checks project, then locals, then externals, and returns
// the first defining occurrence found.
func (r *Registry) FindDefinition(id string) (Ref, bool) {
	for _, ix := range r.AllIndexes() {
		if def := ix.FindDefinition(id); def != nil {
			return Ref{Occurrence: *def, SourceRoot: ix.Root()}, true
		}
	}
	return Ref{}, false
}

// FindAllReferences concatenates reference lists from every index where the
// symbol id appears.
func (r *Registry) FindAllReferences(id string) []Ref {
	var out []Ref
	for _, ix := range r.AllIndexes() {
		for _, occ := range ix.FindReferences(id) {
			out = append(out, Ref{Occurrence: occ, SourceRoot: ix.Root()})
		}
	}
	return out
}

// FindAllReferencesByName resolves candidate symbols by name in every local
// index, optionally filtered by kind, then unions their references. This is
// the workspace path where sibling packages mint different ids for the same
// logical entity.
func (r *Registry) FindAllReferencesByName(name string, kind scip.SymbolKind) map[string][]Ref {
	out := make(map[string][]Ref)
	for _, ix := range r.LocalIndexes() {
		for _, info := range ix.FindSymbolsExact(name) {
			if kind != "" && info.Kind != kind {
				continue
			}
			for _, occ := range ix.FindReferences(info.Symbol) {
				out[info.Symbol] = append(out[info.Symbol], Ref{Occurrence: occ, SourceRoot: ix.Root()})
			}
		}
	}
	return out
}

// MembersOf merges member lists from every index that knows the symbol id.
func (r *Registry) MembersOf(id string) []Hit {
	return r.collect(func(ix *index.Index) []*scip.SymbolInfo {
		return ix.MembersOf(id)
	})
}

// SupertypesOf merges supertype lists across indexes.
func (r *Registry) SupertypesOf(id string) []Hit {
	return r.collect(func(ix *index.Index) []*scip.SymbolInfo {
		return ix.SupertypesOf(id)
	})
}

// SubtypesOf merges subtype lists across indexes.
func (r *Registry) SubtypesOf(id string) []Hit {
	return r.collect(func(ix *index.Index) []*scip.SymbolInfo {
		return ix.SubtypesOf(id)
	})
}

// GetCalls merges outgoing call edges across indexes.
func (r *Registry) GetCalls(id string) []Hit {
	return r.collect(func(ix *index.Index) []*scip.SymbolInfo {
		return ix.GetCalls(id)
	})
}

// GetCallers merges incoming call edges across indexes. In workspace mode
// callers are additionally resolved by name across local indexes.
func (r *Registry) GetCallers(id string) []Hit {
	hits := r.collect(func(ix *index.Index) []*scip.SymbolInfo {
		return ix.GetCallers(id)
	})
	if r.mode != WorkspaceMode {
		return hits
	}
	hit, ok := r.GetSymbol(id)
	if !ok || hit.Info.Name == "" {
		return hits
	}
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		seen[h.Info.Symbol] = true
	}
	for _, ix := range r.LocalIndexes() {
		for _, info := range ix.FindSymbolsExact(hit.Info.Name) {
			if info.Symbol == id {
				continue
			}
			for _, caller := range ix.GetCallers(info.Symbol) {
				if !seen[caller.Symbol] {
					seen[caller.Symbol] = true
					hits = append(hits, Hit{Info: caller, SourceRoot: ix.Root()})
				}
			}
		}
	}
	return hits
}

// GetSource returns the first index's source slice for a symbol id.
func (r *Registry) GetSource(id string) (string, bool) {
	for _, ix := range r.AllIndexes() {
		if src, ok := ix.GetSource(id); ok {
			return src, true
		}
	}
	return "", false
}

func (r *Registry) collect(fn func(*index.Index) []*scip.SymbolInfo) []Hit {
	var out []Hit
	seen := make(map[string]bool)
	for _, ix := range r.AllIndexes() {
		for _, info := range fn(ix) {
			if seen[info.Symbol] {
				continue
			}
			seen[info.Symbol] = true
			out = append(out, Hit{Info: info, SourceRoot: ix.Root()})
		}
	}
	return out
}
