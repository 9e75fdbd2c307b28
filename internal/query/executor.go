// Package query implements the DSL: parsing, pattern matching, execution
// against the registry, grep, and pipelines.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	cerr "cci/internal/errors"
	"cci/internal/graph"
	"cci/internal/logging"
	"cci/internal/registry"
	"cci/internal/scip"
)

// defMatchLimit caps how many same-name primary matches `def` returns.
const defMatchLimit = 3

// storyboardDepth bounds the call-path outline walk.
const storyboardDepth = 3

// Executor translates parsed queries against the registry into typed
// results.
type Executor struct {
	reg    *registry.Registry
	folder *graph.FolderGraph
	logger *logging.Logger
}

// NewExecutor creates an executor. The folder graph may be nil; deps and
// folder statistics then report empty.
func NewExecutor(reg *registry.Registry, folder *graph.FolderGraph, logger *logging.Logger) *Executor {
	return &Executor{reg: reg, folder: folder, logger: logger}
}

// SetFolderGraph swaps in a freshly built folder graph.
func (e *Executor) SetFolderGraph(fg *graph.FolderGraph) {
	e.folder = fg
}

// Execute parses and runs a DSL query string. Parser failures become Error
// results; unresolved symbols become NotFound.
func (e *Executor) Execute(ctx context.Context, input string) Result {
	q, err := Parse(input)
	if err != nil {
		return errorResult(err)
	}
	return e.Run(ctx, q)
}

// Run executes a parsed query, including any pipeline continuation.
func (e *Executor) Run(ctx context.Context, q *Query) Result {
	first := e.runStage(ctx, q)
	if q.Next == nil {
		return first
	}
	return e.runPipeline(ctx, first, q.Next)
}

func (e *Executor) runStage(ctx context.Context, q *Query) Result {
	if err := ctx.Err(); err != nil {
		return cancelledResult()
	}
	switch q.Action {
	case "def":
		return e.execDef(q)
	case "refs":
		return e.execRefs(q)
	case "members":
		return e.execMembers(q)
	case "impls", "subtypes":
		return e.execHierarchyDirection(q, false)
	case "supertypes":
		return e.execHierarchyDirection(q, true)
	case "hierarchy":
		return e.execHierarchy(q)
	case "source":
		return e.execSource(q)
	case "sig":
		return e.execSignature(q)
	case "calls":
		return e.execCallGraph(q, "calls")
	case "callers":
		return e.execCallGraph(q, "callers")
	case "deps":
		return e.execDeps(q)
	case "find":
		return e.execFind(ctx, q)
	case "which":
		return e.execWhich(ctx, q)
	case "grep":
		return e.execGrep(ctx, q)
	case "imports":
		return e.execImports(q, "imports")
	case "exports":
		return e.execImports(q, "exports")
	case "files":
		return e.execFiles(q)
	case "stats":
		return e.execStats()
	case "symbols":
		return e.execSymbols(q)
	case "get":
		return e.execGet(q)
	case "classify":
		return e.execClassify(ctx, q)
	case "storyboard":
		return e.execStoryboard(q)
	default:
		return ErrorResult{Kind: string(cerr.InvalidQuery), Message: "unknown action: " + q.Action}
	}
}

// resolve finds the symbols a stage target denotes, applying filters.
func (e *Executor) resolve(q *Query) ([]registry.Hit, error) {
	pattern, err := ParsePattern(q.Target)
	if err != nil {
		return nil, err
	}

	var hits []registry.Hit
	if container, member, ok := pattern.Qualified(); ok {
		hits = e.reg.FindQualified(container, member)
		if len(hits) == 0 {
			// container#member id composition already ran inside
			// FindQualified; fall through to a plain search so a
			// dotted file-ish target still resolves.
			hits = e.searchPattern(pattern)
		}
	} else {
		hits = e.searchPattern(pattern)
	}
	return e.applyFilters(hits, q.Filters), nil
}

func (e *Executor) searchPattern(pattern *Pattern) []registry.Hit {
	switch pattern.Kind {
	case LiteralPattern:
		return e.reg.FindSymbolsExact(pattern.Text)
	case FuzzyPattern:
		return e.reg.FindSymbolsFuzzy(pattern.Text)
	default:
		return e.reg.FindSymbols(pattern.Matches)
	}
}

// applyFilters narrows hits by kind, path prefix and language. Unknown
// kind values leave the kind filter ignored.
func (e *Executor) applyFilters(hits []registry.Hit, f Filters) []registry.Hit {
	if f.Empty() {
		return hits
	}
	kind, kindKnown := parseKind(f.Kind)
	out := hits[:0]
	for _, h := range hits {
		if kindKnown && h.Info.Kind != kind {
			continue
		}
		if f.In != "" && !strings.HasPrefix(h.Info.File, f.In) {
			continue
		}
		if f.Lang != "" && !strings.EqualFold(h.Info.Language, f.Lang) {
			continue
		}
		out = append(out, h)
	}
	return out
}

func parseKind(raw string) (scip.SymbolKind, bool) {
	if raw == "" {
		return "", false
	}
	k := scip.SymbolKind(strings.ToLower(raw))
	switch k {
	case scip.KindClass, scip.KindMethod, scip.KindFunction, scip.KindField,
		scip.KindConstructor, scip.KindEnum, scip.KindMixin, scip.KindExtension,
		scip.KindGetter, scip.KindSetter, scip.KindProperty, scip.KindParameter,
		scip.KindTypeAlias, scip.KindVariable, scip.KindLocal:
		return k, true
	}
	if strings.EqualFold(raw, "type-alias") || strings.EqualFold(raw, "typealias") {
		return scip.KindTypeAlias, true
	}
	return "", false
}

// primaryHits filters to definition-worthy kinds and ranks by exact-name
// match then kind priority.
func primaryHits(hits []registry.Hit, name string) []registry.Hit {
	var out []registry.Hit
	for _, h := range hits {
		if scip.PrimaryKinds[h.Info.Kind] {
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ei, ej := out[i].Info.Name == name, out[j].Info.Name == name
		if ei != ej {
			return ei
		}
		return kindRank(out[i].Info.Kind) < kindRank(out[j].Info.Kind)
	})
	return out
}

// foldConstructors drops constructor hits whose class is already in the
// set; the class path folds constructor references in itself.
func foldConstructors(hits []registry.Hit) []registry.Hit {
	classes := make(map[string]bool)
	for _, h := range hits {
		if h.Info.Kind == scip.KindClass {
			classes[h.Info.Symbol] = true
		}
	}
	out := hits[:0]
	for _, h := range hits {
		if h.Info.Kind == scip.KindConstructor {
			if classes[scip.ParseSymbol(h.Info.Symbol).ParentID()] {
				continue
			}
		}
		out = append(out, h)
	}
	return out
}

func kindRank(k scip.SymbolKind) int {
	if p, ok := scip.KindPriority[k]; ok {
		return p
	}
	return len(scip.KindPriority) + 1
}

func (e *Executor) execDef(q *Query) Result {
	hits, err := e.resolve(q)
	if err != nil {
		return errorResult(err)
	}
	primary := primaryHits(hits, q.Target)
	if len(primary) == 0 {
		return NotFoundResult{Query: q.Target}
	}
	if len(primary) > defMatchLimit {
		primary = primary[:defMatchLimit]
	}
	return DefinitionResult{Query: q.Target, Matches: e.symbolRefs(primary)}
}

func (e *Executor) execRefs(q *Query) Result {
	hits, err := e.resolve(q)
	if err != nil {
		return errorResult(err)
	}
	primary := foldConstructors(primaryHits(hits, q.Target))
	if len(primary) == 0 {
		return NotFoundResult{Query: q.Target}
	}
	if len(primary) == 1 {
		return e.referencesFor(primary[0])
	}
	agg := AggregatedReferencesResult{Query: q.Target}
	for _, h := range primary {
		sub := e.referencesFor(h)
		refs, ok := sub.(ReferencesResult)
		if !ok {
			continue
		}
		agg.Groups = append(agg.Groups, AggregatedGroup{Symbol: refs.Symbol, Refs: refs.Refs})
	}
	return agg
}

// referencesFor collects a symbol's references, folding in constructor
// references for classes and deduplicating by (source root, file, line).
func (e *Executor) referencesFor(h registry.Hit) Result {
	ids := []string{h.Info.Symbol}
	if h.Info.Kind == scip.KindClass {
		for _, m := range e.reg.MembersOf(h.Info.Symbol) {
			if m.Info.Kind == scip.KindConstructor {
				ids = append(ids, m.Info.Symbol)
			}
		}
	}
	seen := make(map[string]bool)
	var refs []RefLoc
	for _, id := range ids {
		for _, ref := range e.reg.FindAllReferences(id) {
			key := fmt.Sprintf("%s\x00%s\x00%d", ref.SourceRoot, ref.Occurrence.File, ref.Occurrence.Line())
			if seen[key] {
				continue
			}
			seen[key] = true
			refs = append(refs, refLoc(ref))
		}
	}
	sortRefs(refs)
	return ReferencesResult{Symbol: e.symbolRef(h), Refs: refs}
}

func (e *Executor) execMembers(q *Query) Result {
	h, res := e.resolveOne(q)
	if res != nil {
		return res
	}
	var members []SymbolRef
	for _, m := range e.reg.MembersOf(h.Info.Symbol) {
		if m.Info.Kind == scip.KindParameter {
			continue
		}
		members = append(members, e.symbolRef(m))
	}
	return MembersResult{Container: e.symbolRef(h), Members: members}
}

func (e *Executor) execHierarchyDirection(q *Query, up bool) Result {
	h, res := e.resolveOne(q)
	if res != nil {
		return res
	}
	full := HierarchyResult{Symbol: e.symbolRef(h)}
	if up {
		full.Supertypes = e.symbolRefs(e.reg.SupertypesOf(h.Info.Symbol))
	} else {
		full.Subtypes = e.symbolRefs(e.reg.SubtypesOf(h.Info.Symbol))
	}
	return full
}

func (e *Executor) execHierarchy(q *Query) Result {
	h, res := e.resolveOne(q)
	if res != nil {
		return res
	}
	return HierarchyResult{
		Symbol:     e.symbolRef(h),
		Supertypes: e.symbolRefs(e.reg.SupertypesOf(h.Info.Symbol)),
		Subtypes:   e.symbolRefs(e.reg.SubtypesOf(h.Info.Symbol)),
	}
}

func (e *Executor) execSource(q *Query) Result {
	h, res := e.resolveOne(q)
	if res != nil {
		return res
	}
	src, ok := e.reg.GetSource(h.Info.Symbol)
	if !ok {
		return NotFoundResult{Query: q.Target}
	}
	return SourceResult{Symbol: e.symbolRef(h), Source: src}
}

func (e *Executor) execSignature(q *Query) Result {
	h, res := e.resolveOne(q)
	if res != nil {
		return res
	}
	src, ok := e.reg.GetSource(h.Info.Symbol)
	if !ok {
		return NotFoundResult{Query: q.Target}
	}
	return SignatureResult{Symbol: e.symbolRef(h), Signature: extractSignature(src, h.Info.Kind)}
}

func (e *Executor) execCallGraph(q *Query, direction string) Result {
	h, res := e.resolveOne(q)
	if res != nil {
		return res
	}
	var conns []registry.Hit
	if direction == "calls" {
		conns = e.reg.GetCalls(h.Info.Symbol)
	} else {
		conns = e.reg.GetCallers(h.Info.Symbol)
	}
	return CallGraphResult{Direction: direction, Symbol: e.symbolRef(h), Connections: e.symbolRefs(conns)}
}

func (e *Executor) execDeps(q *Query) Result {
	if e.folder == nil {
		return ErrorResult{Kind: string(cerr.NotFound), Message: "folder graph not built"}
	}
	if !q.HasTarget {
		return FolderDepsResult{Folders: e.folder.Folders()}
	}
	folder := strings.TrimSuffix(q.Target, "/")
	if !e.folder.HasFolder(folder) {
		return NotFoundResult{Query: folder}
	}
	return FolderDepsResult{
		Folder:     folder,
		Internal:   e.folder.InternalDeps(folder),
		External:   e.folder.ExternalDeps(folder),
		Dependents: e.folder.Dependents(folder),
	}
}

func (e *Executor) execFind(ctx context.Context, q *Query) Result {
	if err := ctx.Err(); err != nil {
		return cancelledResult()
	}
	hits, err := e.resolve(q)
	if err != nil {
		return errorResult(err)
	}
	return SearchResult{Query: q.Target, Matches: e.symbolRefs(hits)}
}

func (e *Executor) execWhich(ctx context.Context, q *Query) Result {
	if err := ctx.Err(); err != nil {
		return cancelledResult()
	}
	hits, err := e.resolve(q)
	if err != nil {
		return errorResult(err)
	}
	if len(hits) == 0 {
		return NotFoundResult{Query: q.Target}
	}
	return WhichResult{Query: q.Target, Candidates: e.symbolRefs(hits)}
}

// execImports lists, for a file, the externally defined symbols it
// references (imports) or its defined symbols referenced elsewhere
// (exports).
func (e *Executor) execImports(q *Query, direction string) Result {
	path := q.Target
	project := e.reg.Project()
	doc := project.Document(path)
	if doc == nil {
		return NotFoundResult{Query: path}
	}

	var symbols []SymbolRef
	seen := make(map[string]bool)
	if direction == "imports" {
		for _, occ := range project.OccurrencesInFile(path) {
			if occ.IsDefinition() || seen[occ.Symbol] || scip.IsLocalSymbol(occ.Symbol) {
				continue
			}
			hit, ok := e.reg.GetSymbol(occ.Symbol)
			if !ok || hit.Info.File == path {
				continue
			}
			seen[occ.Symbol] = true
			symbols = append(symbols, e.symbolRef(hit))
		}
	} else {
		for _, info := range project.SymbolsInFile(path) {
			if seen[info.Symbol] || scip.IsLocalSymbol(info.Symbol) {
				continue
			}
			for _, ref := range e.reg.FindAllReferences(info.Symbol) {
				if ref.Occurrence.File != path {
					seen[info.Symbol] = true
					symbols = append(symbols, e.symbolRef(registry.Hit{Info: info, SourceRoot: project.Root()}))
					break
				}
			}
		}
	}
	return ImportsResult{Direction: direction, File: path, Symbols: symbols}
}

func (e *Executor) execFiles(q *Query) Result {
	files := e.reg.Project().Documents()
	if q.HasTarget {
		pattern, err := ParsePattern(q.Target)
		if err != nil {
			return errorResult(err)
		}
		filtered := files[:0]
		for _, f := range files {
			if pattern.Kind == LiteralPattern && strings.Contains(f, pattern.Text) {
				filtered = append(filtered, f)
			} else if pattern.Kind != LiteralPattern && pattern.Matches(f) {
				filtered = append(filtered, f)
			}
		}
		files = filtered
	}
	sort.Strings(files)
	return FilesResult{Files: files}
}

func (e *Executor) execStats() Result {
	res := StatsResult{Stats: e.reg.Project().Summary()}
	if e.folder != nil {
		res.Folders = len(e.folder.Folders())
	}
	return res
}

func (e *Executor) execSymbols(q *Query) Result {
	path := q.Target
	project := e.reg.Project()
	if project.Document(path) == nil {
		return NotFoundResult{Query: path}
	}
	infos := project.SymbolsInFile(path)
	refs := make([]SymbolRef, 0, len(infos))
	for _, info := range infos {
		refs = append(refs, e.symbolRef(registry.Hit{Info: info, SourceRoot: project.Root()}))
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Line < refs[j].Line })
	return SymbolsResult{File: path, Symbols: refs}
}

// execGet performs exact-id lookup, bypassing pattern matching entirely.
func (e *Executor) execGet(q *Query) Result {
	hit, ok := e.reg.GetSymbol(q.Target)
	if !ok {
		return NotFoundResult{Query: q.Target}
	}
	return DefinitionResult{Query: q.Target, Matches: []SymbolRef{e.symbolRef(hit)}}
}

func (e *Executor) execClassify(ctx context.Context, q *Query) Result {
	if err := ctx.Err(); err != nil {
		return cancelledResult()
	}
	hits, err := e.resolve(q)
	if err != nil {
		return errorResult(err)
	}
	groups := make(map[string][]SymbolRef)
	for _, h := range hits {
		groups[string(h.Info.Kind)] = append(groups[string(h.Info.Kind)], e.symbolRef(h))
	}
	return ClassifyResult{Query: q.Target, Groups: groups}
}

func (e *Executor) execStoryboard(q *Query) Result {
	h, res := e.resolveOne(q)
	if res != nil {
		return res
	}
	var lines []string
	visited := map[string]bool{h.Info.Symbol: true}
	var walk func(id, name string, depth int)
	walk = func(id, name string, depth int) {
		lines = append(lines, strings.Repeat("  ", depth)+name)
		if depth >= storyboardDepth {
			return
		}
		for _, callee := range e.reg.GetCalls(id) {
			if visited[callee.Info.Symbol] {
				continue
			}
			visited[callee.Info.Symbol] = true
			walk(callee.Info.Symbol, callee.Info.Name, depth+1)
		}
	}
	walk(h.Info.Symbol, h.Info.Name, 0)
	return StoryboardResult{Root: e.symbolRef(h), Lines: lines}
}

// resolveOne resolves a target to its single best primary match. The second
// return value is non-nil when resolution failed or was ambiguous enough to
// answer directly.
func (e *Executor) resolveOne(q *Query) (registry.Hit, Result) {
	hits, err := e.resolve(q)
	if err != nil {
		return registry.Hit{}, errorResult(err)
	}
	primary := primaryHits(hits, q.Target)
	if len(primary) == 0 {
		if len(hits) == 0 {
			return registry.Hit{}, NotFoundResult{Query: q.Target}
		}
		// No primary-kind match; fall back to the first hit so targets
		// like parameters still resolve for source/sig.
		return hits[0], nil
	}
	return primary[0], nil
}

func (e *Executor) symbolRef(h registry.Hit) SymbolRef {
	ref := SymbolRef{
		Name:       h.Info.Name,
		Kind:       string(h.Info.Kind),
		Symbol:     h.Info.Symbol,
		File:       h.Info.File,
		SourceRoot: h.SourceRoot,
	}
	if def, ok := e.reg.FindDefinition(h.Info.Symbol); ok {
		ref.File = def.Occurrence.File
		ref.Line = def.Occurrence.Line()
	}
	return ref
}

func (e *Executor) symbolRefs(hits []registry.Hit) []SymbolRef {
	out := make([]SymbolRef, 0, len(hits))
	for _, h := range hits {
		out = append(out, e.symbolRef(h))
	}
	return out
}

func refLoc(ref registry.Ref) RefLoc {
	return RefLoc{
		File:       ref.Occurrence.File,
		Line:       ref.Occurrence.Line(),
		Col:        int(ref.Occurrence.Range.StartCol),
		SourceRoot: ref.SourceRoot,
	}
}

func sortRefs(refs []RefLoc) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].File != refs[j].File {
			return refs[i].File < refs[j].File
		}
		return refs[i].Line < refs[j].Line
	})
}

func errorResult(err error) Result {
	return ErrorResult{Kind: string(cerr.KindOf(err)), Message: err.Error()}
}

func cancelledResult() Result {
	return ErrorResult{Kind: string(cerr.Cancelled), Message: "cancelled"}
}

// extractSignature truncates a definition's source at the boundary between
// signature and body. Type-like kinds keep an elided body marker; accessors
// keep the left side of => or {; everything else cuts at the first of
// '{', "=>", or ';' after the closing ')'.
func extractSignature(src string, kind scip.SymbolKind) string {
	switch kind {
	case scip.KindClass, scip.KindEnum, scip.KindMixin, scip.KindExtension:
		if idx := strings.Index(src, "{"); idx >= 0 {
			return strings.TrimSpace(src[:idx]) + " { ... }"
		}
		return firstLine(src)
	case scip.KindGetter, scip.KindSetter:
		if idx := strings.Index(src, "=>"); idx >= 0 {
			return strings.TrimSpace(src[:idx])
		}
		if idx := strings.Index(src, "{"); idx >= 0 {
			return strings.TrimSpace(src[:idx])
		}
		return firstLine(src)
	default:
		cut := len(src)
		parenClose := strings.Index(src, ")")
		for i := 0; i < len(src); i++ {
			switch {
			case src[i] == '{':
				cut = i
			case src[i] == '=' && i+1 < len(src) && src[i+1] == '>':
				cut = i
			case src[i] == ';' && parenClose >= 0 && i > parenClose:
				cut = i
			default:
				continue
			}
			break
		}
		return strings.TrimSpace(src[:cut])
	}
}

func firstLine(src string) string {
	if idx := strings.Index(src, "\n"); idx >= 0 {
		return strings.TrimSpace(src[:idx])
	}
	return strings.TrimSpace(src)
}
