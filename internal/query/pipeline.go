package query

import (
	"context"
	"strings"

	cerr "cci/internal/errors"
	"cci/internal/registry"
	"cci/internal/scip"
)

// runPipeline feeds the symbols extracted from an upstream result through
// the next stage. Errors and empty upstreams short-circuit.
func (e *Executor) runPipeline(ctx context.Context, upstream Result, stage *Query) Result {
	if _, isErr := upstream.(ErrorResult); isErr {
		return upstream
	}
	if _, missing := upstream.(NotFoundResult); missing {
		return upstream
	}
	symbols := ExtractSymbols(upstream)
	if len(symbols) == 0 {
		return upstream
	}

	var result Result
	switch stage.Action {
	case "find":
		result = e.pipeFilter(stage, symbols)
	case "which":
		result = WhichResult{Query: stage.Raw, Candidates: symbols}
	case "classify":
		groups := make(map[string][]SymbolRef)
		for _, s := range symbols {
			groups[s.Kind] = append(groups[s.Kind], s)
		}
		result = ClassifyResult{Query: stage.Raw, Groups: groups}
	default:
		var per []Result
		for _, s := range symbols {
			if err := ctx.Err(); err != nil {
				return cancelledResult()
			}
			per = append(per, e.runForSymbol(stage, s))
		}
		result = mergeStageResults(stage, per)
	}

	if stage.Next == nil {
		return result
	}
	return e.runPipeline(ctx, result, stage.Next)
}

// pipeFilter applies a downstream `find` as a filter over incoming symbols
// instead of a new global search.
func (e *Executor) pipeFilter(stage *Query, symbols []SymbolRef) Result {
	var pattern *Pattern
	if stage.HasTarget {
		p, err := ParsePattern(stage.Target)
		if err != nil {
			return errorResult(err)
		}
		pattern = p
	}
	kind, kindKnown := parseKind(stage.Filters.Kind)
	var out []SymbolRef
	for _, s := range symbols {
		if pattern != nil && !pattern.Matches(s.Name) {
			continue
		}
		if kindKnown && s.Kind != string(kind) {
			continue
		}
		if stage.Filters.In != "" && !strings.HasPrefix(s.File, stage.Filters.In) {
			continue
		}
		if stage.Filters.Lang != "" {
			hit, ok := e.reg.GetSymbol(s.Symbol)
			if !ok || !strings.EqualFold(hit.Info.Language, stage.Filters.Lang) {
				continue
			}
		}
		out = append(out, s)
	}
	return SearchResult{Query: stage.Raw, Matches: out}
}

// runForSymbol executes a per-symbol stage action against one exact symbol,
// bypassing pattern resolution.
func (e *Executor) runForSymbol(stage *Query, s SymbolRef) Result {
	hit, ok := e.reg.GetSymbol(s.Symbol)
	if !ok {
		return NotFoundResult{Query: s.Name}
	}
	synthetic := &Query{Action: stage.Action, Target: s.Symbol, HasTarget: true, Raw: stage.Raw}
	switch stage.Action {
	case "def", "get":
		return DefinitionResult{Query: s.Name, Matches: []SymbolRef{e.symbolRef(hit)}}
	case "refs":
		return e.referencesFor(hit)
	case "members":
		return e.membersFor(hit)
	case "impls", "subtypes":
		return HierarchyResult{Symbol: e.symbolRef(hit), Subtypes: e.symbolRefs(e.reg.SubtypesOf(s.Symbol))}
	case "supertypes":
		return HierarchyResult{Symbol: e.symbolRef(hit), Supertypes: e.symbolRefs(e.reg.SupertypesOf(s.Symbol))}
	case "hierarchy":
		return HierarchyResult{
			Symbol:     e.symbolRef(hit),
			Supertypes: e.symbolRefs(e.reg.SupertypesOf(s.Symbol)),
			Subtypes:   e.symbolRefs(e.reg.SubtypesOf(s.Symbol)),
		}
	case "source":
		src, ok := e.reg.GetSource(s.Symbol)
		if !ok {
			return NotFoundResult{Query: s.Name}
		}
		return SourceResult{Symbol: e.symbolRef(hit), Source: src}
	case "sig":
		src, ok := e.reg.GetSource(s.Symbol)
		if !ok {
			return NotFoundResult{Query: s.Name}
		}
		return SignatureResult{Symbol: e.symbolRef(hit), Signature: extractSignature(src, hit.Info.Kind)}
	case "calls":
		return CallGraphResult{Direction: "calls", Symbol: e.symbolRef(hit), Connections: e.symbolRefs(e.reg.GetCalls(s.Symbol))}
	case "callers":
		return CallGraphResult{Direction: "callers", Symbol: e.symbolRef(hit), Connections: e.symbolRefs(e.reg.GetCallers(s.Symbol))}
	case "storyboard":
		return e.execStoryboard(synthetic)
	default:
		return ErrorResult{
			Kind:    string(cerr.InvalidQuery),
			Message: "action not supported in a pipeline: " + stage.Action,
		}
	}
}

func (e *Executor) membersFor(hit registry.Hit) Result {
	var members []SymbolRef
	for _, m := range e.reg.MembersOf(hit.Info.Symbol) {
		if m.Info.Kind == scip.KindParameter {
			continue
		}
		members = append(members, e.symbolRef(m))
	}
	return MembersResult{Container: e.symbolRef(hit), Members: members}
}

// mergeStageResults combines per-symbol stage outputs: references
// concatenate, call graphs union connections, searches union matches, and
// everything else wraps in a Pipeline result preserving order.
func mergeStageResults(stage *Query, per []Result) Result {
	if len(per) == 1 {
		return per[0]
	}

	switch stage.Action {
	case "refs":
		agg := AggregatedReferencesResult{Query: stage.Raw}
		for _, r := range per {
			switch v := r.(type) {
			case ReferencesResult:
				agg.Groups = append(agg.Groups, AggregatedGroup{Symbol: v.Symbol, Refs: v.Refs})
			case AggregatedReferencesResult:
				agg.Groups = append(agg.Groups, v.Groups...)
			}
		}
		return agg
	case "calls", "callers":
		var merged CallGraphResult
		seen := make(map[string]bool)
		for i, r := range per {
			v, ok := r.(CallGraphResult)
			if !ok {
				continue
			}
			if i == 0 || merged.Direction == "" {
				merged.Direction = v.Direction
				merged.Symbol = v.Symbol
			}
			for _, c := range v.Connections {
				if !seen[c.Symbol] {
					seen[c.Symbol] = true
					merged.Connections = append(merged.Connections, c)
				}
			}
		}
		return merged
	case "def", "get":
		merged := SearchResult{Query: stage.Raw}
		seen := make(map[string]bool)
		for _, r := range per {
			if v, ok := r.(DefinitionResult); ok {
				for _, m := range v.Matches {
					if !seen[m.Symbol] {
						seen[m.Symbol] = true
						merged.Matches = append(merged.Matches, m)
					}
				}
			}
		}
		return merged
	default:
		return PipelineResult{Results: per}
	}
}

// ExtractSymbols lists the symbols a result refers to, for pipeline
// feeding. Order is preserved; duplicates collapse by symbol id.
func ExtractSymbols(r Result) []SymbolRef {
	var raw []SymbolRef
	switch v := r.(type) {
	case SearchResult:
		raw = v.Matches
	case DefinitionResult:
		raw = v.Matches
	case MembersResult:
		raw = v.Members
	case HierarchyResult:
		raw = append(append([]SymbolRef{}, v.Supertypes...), v.Subtypes...)
	case CallGraphResult:
		raw = append([]SymbolRef{v.Symbol}, v.Connections...)
	case ReferencesResult:
		raw = []SymbolRef{v.Symbol}
	case AggregatedReferencesResult:
		for _, g := range v.Groups {
			raw = append(raw, g.Symbol)
		}
	case ImportsResult:
		raw = v.Symbols
	case SymbolsResult:
		raw = v.Symbols
	case WhichResult:
		raw = v.Candidates
	case ClassifyResult:
		for _, group := range v.Groups {
			raw = append(raw, group...)
		}
	case GrepResult:
		for _, m := range v.Matches {
			if m.Enclosing != nil {
				raw = append(raw, *m.Enclosing)
			}
		}
	case PipelineResult:
		for _, sub := range v.Results {
			raw = append(raw, ExtractSymbols(sub)...)
		}
	}

	seen := make(map[string]bool, len(raw))
	var out []SymbolRef
	for _, s := range raw {
		if s.Symbol == "" || seen[s.Symbol] {
			continue
		}
		seen[s.Symbol] = true
		out = append(out, s)
	}
	return out
}

