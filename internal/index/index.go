// Package index owns the document store and the reverse indexes that make
// symbol queries fast. All mutation goes through UpdateDocument and
// RemoveDocument; everything else is a read.
package index

import (
	"sort"
	"sync"

	"cci/internal/scip"
)

// symEntry is a symbol's authoritative record plus the bookkeeping needed to
// undo its contribution when documents are removed.
type symEntry struct {
	info *scip.SymbolInfo

	// refs counts contributing documents. The entry is dropped at zero.
	refs int

	// declared counts documents that listed the symbol in their symbol
	// table (as opposed to only referencing it in an occurrence).
	declared int

	// parent is the derived enclosing symbol id, "" for top-level symbols.
	parent string

	// supers are is_implementation relationship targets.
	supers []string
}

// Index is the semantic index for one package or project.
type Index struct {
	mu sync.RWMutex

	// root is the absolute path of the source tree, used when slicing
	// sources and context lines from disk.
	root string

	documents map[string]*scip.Document

	// The reverse maps. Keys and members are symbol ids; SymbolInfo is
	// resolved through symbols so every id present anywhere resolves.
	symbols     map[string]*symEntry
	fileSymbols map[string][]string          // file -> ids with defining occurrence there
	fileOccs    map[string][]scip.Occurrence // file -> all occurrences
	symOccs     map[string][]scip.Occurrence // id -> occurrences across documents
	definitions map[string]scip.Occurrence   // id -> defining occurrence
	byName      map[string][]string          // case-preserving name -> ids
	members     map[string][]string          // parent id -> member ids
	subtypes    map[string][]string          // supertype id -> implementor ids

	calls   map[string][]string // enclosing symbol -> called symbols
	callers map[string][]string // transpose

	// Per-document contributions, consulted on removal.
	contrib       map[string][]string   // file -> contributed symbol ids
	fileCallEdges map[string][][2]string // file -> (caller, callee) pairs
}

// New creates an empty index rooted at the given source directory.
func New(root string) *Index {
	return &Index{
		root:          root,
		documents:     make(map[string]*scip.Document),
		symbols:       make(map[string]*symEntry),
		fileSymbols:   make(map[string][]string),
		fileOccs:      make(map[string][]scip.Occurrence),
		symOccs:       make(map[string][]scip.Occurrence),
		definitions:   make(map[string]scip.Occurrence),
		byName:        make(map[string][]string),
		members:       make(map[string][]string),
		subtypes:      make(map[string][]string),
		calls:         make(map[string][]string),
		callers:       make(map[string][]string),
		contrib:       make(map[string][]string),
		fileCallEdges: make(map[string][][2]string),
	}
}

// Root returns the absolute source root of this index.
func (ix *Index) Root() string {
	return ix.root
}

// Load ingests every document of a decoded SCIP index.
func (ix *Index) Load(raw *scip.RawIndex) {
	for _, doc := range raw.Documents {
		ix.UpdateDocument(doc)
	}
}

// UpdateDocument atomically replaces any previous document at
// doc.RelativePath. After return, all reverse maps reflect the new content
// and only the new content for this file.
func (ix *Index) UpdateDocument(doc *scip.Document) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.documents[doc.RelativePath]; ok {
		ix.removeLocked(doc.RelativePath)
	}
	ix.addLocked(doc)
}

// RemoveDocument atomically purges everything originating in path.
func (ix *Index) RemoveDocument(path string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.removeLocked(path)
}

func (ix *Index) addLocked(doc *scip.Document) {
	path := doc.RelativePath
	occs := normalizeOccurrences(doc.Occurrences)
	ix.documents[path] = doc
	ix.fileOccs[path] = occs

	var contributed []string
	touch := func(id string) *symEntry {
		e := ix.ensureEntry(id, doc.Language)
		e.refs++
		contributed = append(contributed, id)
		return e
	}
	seen := make(map[string]bool)
	touchOnce := func(id string) *symEntry {
		if seen[id] {
			return ix.symbols[id]
		}
		seen[id] = true
		return touch(id)
	}

	// Declared symbols carry authoritative info and derive the member and
	// subtype maps.
	for _, info := range doc.Symbols {
		if info.Name == "" {
			info.Name = scip.SymbolName(info.Symbol, info.DisplayName)
		}
		if info.Language == "" {
			info.Language = doc.Language
		}
		e := touchOnce(info.Symbol)
		e.declared++
		prevName := ""
		if e.info != nil {
			prevName = e.info.Name
		}
		if prevName != "" && prevName != info.Name {
			ix.dropName(prevName, info.Symbol)
		}
		e.info = info
		if prevName != info.Name {
			ix.addName(info.Name, info.Symbol)
		}

		parsed := scip.ParseSymbol(info.Symbol)
		if parent := parsed.ParentID(); parent != "" {
			touchOnce(parent)
			e.parent = parent
			ix.members[parent] = appendUnique(ix.members[parent], info.Symbol)
		}
		for _, rel := range info.Relationships {
			if rel.IsImplementation {
				touchOnce(rel.Symbol)
				e.supers = appendUnique(e.supers, rel.Symbol)
				ix.subtypes[rel.Symbol] = appendUnique(ix.subtypes[rel.Symbol], info.Symbol)
			}
		}
	}

	for _, occ := range occs {
		e := touchOnce(occ.Symbol)
		ix.symOccs[occ.Symbol] = append(ix.symOccs[occ.Symbol], occ)
		if occ.IsDefinition() {
			if _, dup := ix.definitions[occ.Symbol]; !dup {
				ix.definitions[occ.Symbol] = occ
				ix.fileSymbols[path] = appendUnique(ix.fileSymbols[path], occ.Symbol)
				if e.info.File == "" {
					e.info.File = path
				}
				if e.info.Language == "" {
					e.info.Language = doc.Language
				}
			}
		}
	}

	ix.contrib[path] = contributed
	ix.buildCallEdgesLocked(path, occs)
}

func (ix *Index) removeLocked(path string) {
	doc, ok := ix.documents[path]
	if !ok {
		return
	}
	delete(ix.documents, path)

	for _, occ := range ix.fileOccs[path] {
		ix.symOccs[occ.Symbol] = filterOccs(ix.symOccs[occ.Symbol], path)
		if len(ix.symOccs[occ.Symbol]) == 0 {
			delete(ix.symOccs, occ.Symbol)
		}
		if def, ok := ix.definitions[occ.Symbol]; ok && def.File == path {
			delete(ix.definitions, occ.Symbol)
		}
	}
	delete(ix.fileOccs, path)
	delete(ix.fileSymbols, path)

	for _, edge := range ix.fileCallEdges[path] {
		ix.calls[edge[0]] = dropString(ix.calls[edge[0]], edge[1])
		ix.callers[edge[1]] = dropString(ix.callers[edge[1]], edge[0])
		if len(ix.calls[edge[0]]) == 0 {
			delete(ix.calls, edge[0])
		}
		if len(ix.callers[edge[1]]) == 0 {
			delete(ix.callers, edge[1])
		}
	}
	delete(ix.fileCallEdges, path)

	declared := make(map[string]bool, len(doc.Symbols))
	for _, info := range doc.Symbols {
		declared[info.Symbol] = true
	}
	for _, id := range ix.contrib[path] {
		e, ok := ix.symbols[id]
		if !ok {
			continue
		}
		e.refs--
		if declared[id] {
			e.declared--
		}
		if e.refs <= 0 {
			ix.dropEntryLocked(id, e)
		}
	}
	delete(ix.contrib, path)
}

// dropEntryLocked removes a symbol entry and every derived edge keyed by it.
func (ix *Index) dropEntryLocked(id string, e *symEntry) {
	if e.info != nil {
		ix.dropName(e.info.Name, id)
	}
	if e.parent != "" {
		ix.members[e.parent] = dropString(ix.members[e.parent], id)
		if len(ix.members[e.parent]) == 0 {
			delete(ix.members, e.parent)
		}
	}
	for _, sup := range e.supers {
		ix.subtypes[sup] = dropString(ix.subtypes[sup], id)
		if len(ix.subtypes[sup]) == 0 {
			delete(ix.subtypes, sup)
		}
	}
	delete(ix.members, id)
	delete(ix.subtypes, id)
	delete(ix.symbols, id)
}

// ensureEntry returns the entry for id, materializing a placeholder derived
// from the identifier when the symbol has not been declared yet.
func (ix *Index) ensureEntry(id, language string) *symEntry {
	if e, ok := ix.symbols[id]; ok {
		return e
	}
	parsed := scip.ParseSymbol(id)
	info := &scip.SymbolInfo{
		Symbol:   id,
		Name:     parsed.Name(),
		Kind:     parsed.Kind(),
		Language: language,
	}
	e := &symEntry{info: info}
	ix.symbols[id] = e
	if info.Name != "" {
		ix.addName(info.Name, id)
	}
	return e
}

func (ix *Index) addName(name, id string) {
	if name == "" {
		return
	}
	ix.byName[name] = appendUnique(ix.byName[name], id)
}

func (ix *Index) dropName(name, id string) {
	if name == "" {
		return
	}
	ix.byName[name] = dropString(ix.byName[name], id)
	if len(ix.byName[name]) == 0 {
		delete(ix.byName, name)
	}
}

// normalizeOccurrences enforces the single-defining-occurrence invariant:
// the first definition per symbol wins, later ones become references.
func normalizeOccurrences(occs []scip.Occurrence) []scip.Occurrence {
	out := make([]scip.Occurrence, len(occs))
	copy(out, occs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Range.StartLine != out[j].Range.StartLine {
			return out[i].Range.StartLine < out[j].Range.StartLine
		}
		return out[i].Range.StartCol < out[j].Range.StartCol
	})
	defined := make(map[string]bool)
	for i := range out {
		if !out[i].IsDefinition() {
			continue
		}
		if defined[out[i].Symbol] {
			out[i].Roles &^= scip.RoleDefinition
			continue
		}
		defined[out[i].Symbol] = true
	}
	return out
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}

func dropString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}

func filterOccs(occs []scip.Occurrence, path string) []scip.Occurrence {
	out := occs[:0]
	for _, o := range occs {
		if o.File != path {
			out = append(out, o)
		}
	}
	return out
}
