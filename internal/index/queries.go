package index

import (
	"strings"

	"cci/internal/scip"

	"github.com/hbollon/go-edlib"
)

// fuzzyThreshold is the minimum Levenshtein similarity for fuzzy name hits.
const fuzzyThreshold = 0.65

// GetSymbol returns the authoritative record for a symbol id, or nil.
func (ix *Index) GetSymbol(id string) *scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if e, ok := ix.symbols[id]; ok {
		return e.info
	}
	return nil
}

// Document returns the stored document at a relative path, or nil.
func (ix *Index) Document(path string) *scip.Document {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.documents[path]
}

// Documents returns the relative paths of all stored documents.
func (ix *Index) Documents() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	paths := make([]string, 0, len(ix.documents))
	for p := range ix.documents {
		paths = append(paths, p)
	}
	return paths
}

// SymbolsInFile returns the symbols whose defining occurrence is in path.
func (ix *Index) SymbolsInFile(path string) []*scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.resolveAll(ix.fileSymbols[path])
}

// OccurrencesInFile returns every occurrence recorded for path.
func (ix *Index) OccurrencesInFile(path string) []scip.Occurrence {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	occs := ix.fileOccs[path]
	out := make([]scip.Occurrence, len(occs))
	copy(out, occs)
	return out
}

// FindDefinition returns the defining occurrence of a symbol, or nil.
func (ix *Index) FindDefinition(id string) *scip.Occurrence {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if def, ok := ix.definitions[id]; ok {
		return &def
	}
	return nil
}

// FindReferences returns all occurrences of a symbol across documents.
func (ix *Index) FindReferences(id string) []scip.Occurrence {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	occs := ix.symOccs[id]
	out := make([]scip.Occurrence, len(occs))
	copy(out, occs)
	return out
}

// MembersOf returns the members of a container symbol.
func (ix *Index) MembersOf(id string) []*scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.resolveAll(ix.members[id])
}

// SupertypesOf returns the symbols this symbol implements or extends.
func (ix *Index) SupertypesOf(id string) []*scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if e, ok := ix.symbols[id]; ok {
		return ix.resolveAll(e.supers)
	}
	return nil
}

// SubtypesOf returns the symbols that implement or extend this symbol.
func (ix *Index) SubtypesOf(id string) []*scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.resolveAll(ix.subtypes[id])
}

// GetCalls returns the symbols called from within a definition's body.
func (ix *Index) GetCalls(id string) []*scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.resolveAll(ix.calls[id])
}

// GetCallers returns the symbols whose bodies reference this symbol.
func (ix *Index) GetCallers(id string) []*scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.resolveAll(ix.callers[id])
}

// FindSymbolsExact returns symbols whose derived name equals name,
// case-sensitively.
func (ix *Index) FindSymbolsExact(name string) []*scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.resolveAll(ix.byName[name])
}

// FindSymbols returns symbols whose name satisfies the match predicate. The
// predicate runs under the read lock and must not call back into the index.
func (ix *Index) FindSymbols(match func(name string) bool) []*scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []*scip.SymbolInfo
	for name, ids := range ix.byName {
		if match(name) {
			out = append(out, ix.resolveAll(ids)...)
		}
	}
	return out
}

// FindSymbolsFuzzy returns symbols whose name is a case-insensitive
// substring match or within Levenshtein-similarity tolerance of needle.
func (ix *Index) FindSymbolsFuzzy(needle string) []*scip.SymbolInfo {
	lower := strings.ToLower(needle)
	return ix.FindSymbols(func(name string) bool {
		if strings.Contains(strings.ToLower(name), lower) {
			return true
		}
		sim, err := edlib.StringsSimilarity(lower, strings.ToLower(name), edlib.Levenshtein)
		return err == nil && sim >= fuzzyThreshold
	})
}

// FindQualified resolves Container.member lookups. Containers are resolved
// by name first; when nothing matches, the member id is composed directly
// from each container id and looked up.
func (ix *Index) FindQualified(container, member string) []*scip.SymbolInfo {
	var out []*scip.SymbolInfo
	seen := make(map[string]bool)
	for _, c := range ix.FindSymbolsExact(container) {
		for _, m := range ix.MembersOf(c.Symbol) {
			if m.Name == member && !seen[m.Symbol] {
				seen[m.Symbol] = true
				out = append(out, m)
			}
		}
		if len(out) > 0 {
			continue
		}
		for _, sigil := range []string{"#", "().", "."} {
			id := scip.ComposeMemberID(c.Symbol, member, sigil)
			if info := ix.GetSymbol(id); info != nil && !seen[id] {
				seen[id] = true
				out = append(out, info)
			}
		}
	}
	return out
}

// AllSymbols returns every declared, non-local symbol in the index.
func (ix *Index) AllSymbols() []*scip.SymbolInfo {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]*scip.SymbolInfo, 0, len(ix.symbols))
	for id, e := range ix.symbols {
		if e.declared > 0 && !scip.IsLocalSymbol(id) {
			out = append(out, e.info)
		}
	}
	return out
}

// Stats summarizes the index contents.
type Stats struct {
	Documents   int                       `json:"documents"`
	Symbols     int                       `json:"symbols"`
	Occurrences int                       `json:"occurrences"`
	ByKind      map[scip.SymbolKind]int   `json:"byKind"`
	ByLanguage  map[string]int            `json:"byLanguage"`
}

// Summary computes aggregate statistics over the index.
func (ix *Index) Summary() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	st := Stats{
		Documents:  len(ix.documents),
		ByKind:     make(map[scip.SymbolKind]int),
		ByLanguage: make(map[string]int),
	}
	for _, e := range ix.symbols {
		if e.declared == 0 {
			continue
		}
		st.Symbols++
		st.ByKind[e.info.Kind]++
		if e.info.Language != "" {
			st.ByLanguage[e.info.Language]++
		}
	}
	for _, occs := range ix.fileOccs {
		st.Occurrences += len(occs)
	}
	return st
}

// resolveAll maps symbol ids to their records. Must hold at least the read
// lock. Ids without entries are skipped, which cannot happen at quiescent
// points per the index invariants.
func (ix *Index) resolveAll(ids []string) []*scip.SymbolInfo {
	if len(ids) == 0 {
		return nil
	}
	out := make([]*scip.SymbolInfo, 0, len(ids))
	for _, id := range ids {
		if e, ok := ix.symbols[id]; ok {
			out = append(out, e.info)
		}
	}
	return out
}
