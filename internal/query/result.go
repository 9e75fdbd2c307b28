package query

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"cci/internal/index"
	"cci/internal/scip"
)

// Result is the closed set of query outcomes. The executor produces exactly
// one Result per query; rendering dispatches on the concrete type in ToText
// and ToJSON rather than via virtual methods.
type Result interface {
	resultType() string
}

// SymbolRef is a symbol as it appears in results. Line is 1-based.
type SymbolRef struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Symbol     string `json:"symbol"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	SourceRoot string `json:"sourceRoot,omitempty"`
}

// RefLoc is one reference location. Line is 1-based.
type RefLoc struct {
	File       string `json:"file"`
	Line       int    `json:"line"`
	Col        int    `json:"col"`
	Context    string `json:"context,omitempty"`
	SourceRoot string `json:"sourceRoot,omitempty"`
}

// GrepMatch is one grep hit, optionally annotated with the enclosing symbol.
type GrepMatch struct {
	File      string     `json:"file"`
	Line      int        `json:"line"`
	Col       int        `json:"col"`
	MatchText string     `json:"matchText"`
	LineText  string     `json:"lineText"`
	Before    []string   `json:"before,omitempty"`
	After     []string   `json:"after,omitempty"`
	Enclosing *SymbolRef `json:"enclosing,omitempty"`
}

// DefinitionResult lists the best definition matches for a pattern.
type DefinitionResult struct {
	Query   string      `json:"query"`
	Matches []SymbolRef `json:"matches"`
}

// ReferencesResult lists references to one resolved symbol.
type ReferencesResult struct {
	Symbol SymbolRef `json:"symbol"`
	Refs   []RefLoc  `json:"refs"`
}

// AggregatedGroup is one symbol's reference list inside an aggregate.
type AggregatedGroup struct {
	Symbol SymbolRef `json:"symbol"`
	Refs   []RefLoc  `json:"refs"`
}

// AggregatedReferencesResult groups references per symbol when a name
// resolves to several primary symbols.
type AggregatedReferencesResult struct {
	Query  string            `json:"query"`
	Groups []AggregatedGroup `json:"groups"`
}

// MembersResult lists a container's members.
type MembersResult struct {
	Container SymbolRef   `json:"container"`
	Members   []SymbolRef `json:"members"`
}

// HierarchyResult lists both hierarchy directions, one hop each.
type HierarchyResult struct {
	Symbol     SymbolRef   `json:"symbol"`
	Supertypes []SymbolRef `json:"supertypes"`
	Subtypes   []SymbolRef `json:"subtypes"`
}

// SourceResult carries a definition's source text.
type SourceResult struct {
	Symbol SymbolRef `json:"symbol"`
	Source string    `json:"source"`
}

// SignatureResult carries a definition's signature sans body.
type SignatureResult struct {
	Symbol    SymbolRef `json:"symbol"`
	Signature string    `json:"signature"`
}

// CallGraphResult lists one direction of the call graph around a symbol.
type CallGraphResult struct {
	// Direction is "calls" or "callers".
	Direction   string      `json:"direction"`
	Symbol      SymbolRef   `json:"symbol"`
	Connections []SymbolRef `json:"connections"`
}

// ImportsResult lists the symbols a file pulls in or exposes.
type ImportsResult struct {
	// Direction is "imports" or "exports".
	Direction string      `json:"direction"`
	File      string      `json:"file"`
	Symbols   []SymbolRef `json:"symbols"`
}

// SearchResult lists pattern-search matches.
type SearchResult struct {
	Query   string      `json:"query"`
	Matches []SymbolRef `json:"matches"`
}

// GrepResult lists grep matches with context.
type GrepResult struct {
	Pattern string      `json:"pattern"`
	Matches []GrepMatch `json:"matches"`
}

// GrepFilesResult lists files with (or without) matches.
type GrepFilesResult struct {
	Pattern     string   `json:"pattern"`
	WithMatches bool     `json:"withMatches"`
	Files       []string `json:"files"`
}

// GrepCountResult lists per-file match counts.
type GrepCountResult struct {
	Pattern string         `json:"pattern"`
	Counts  map[string]int `json:"counts"`
	Total   int            `json:"total"`
}

// FilesResult lists indexed files.
type FilesResult struct {
	Files []string `json:"files"`
}

// StatsResult summarizes the index.
type StatsResult struct {
	Stats   index.Stats `json:"stats"`
	Folders int         `json:"folders"`
}

// SymbolsResult lists the symbols defined in one file.
type SymbolsResult struct {
	File    string      `json:"file"`
	Symbols []SymbolRef `json:"symbols"`
}

// WhichResult disambiguates a name across candidate symbols.
type WhichResult struct {
	Query      string      `json:"query"`
	Candidates []SymbolRef `json:"candidates"`
}

// ClassifyResult groups a pattern's matches by kind.
type ClassifyResult struct {
	Query  string                  `json:"query"`
	Groups map[string][]SymbolRef  `json:"groups"`
}

// StoryboardResult is a depth-limited call-path outline from a root symbol.
type StoryboardResult struct {
	Root  SymbolRef `json:"root"`
	Lines []string  `json:"lines"`
}

// FolderDepsResult reports folder dependency edges. Without a folder it
// lists all folders in the graph.
type FolderDepsResult struct {
	Folder     string   `json:"folder,omitempty"`
	Folders    []string `json:"folders,omitempty"`
	Internal   []string `json:"internal,omitempty"`
	External   []string `json:"external,omitempty"`
	Dependents []string `json:"dependents,omitempty"`
}

// PipelineResult wraps heterogeneous per-symbol results in order.
type PipelineResult struct {
	Results []Result `json:"-"`
}

// ErrorResult is a typed failure.
type ErrorResult struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NotFoundResult reports an unresolved symbol or file.
type NotFoundResult struct {
	Query string `json:"query"`
}

func (DefinitionResult) resultType() string           { return "definition" }
func (ReferencesResult) resultType() string           { return "references" }
func (AggregatedReferencesResult) resultType() string { return "aggregatedReferences" }
func (MembersResult) resultType() string              { return "members" }
func (HierarchyResult) resultType() string            { return "hierarchy" }
func (SourceResult) resultType() string               { return "source" }
func (SignatureResult) resultType() string            { return "signature" }
func (CallGraphResult) resultType() string            { return "callGraph" }
func (ImportsResult) resultType() string              { return "imports" }
func (SearchResult) resultType() string               { return "search" }
func (GrepResult) resultType() string                 { return "grep" }
func (GrepFilesResult) resultType() string            { return "grepFiles" }
func (GrepCountResult) resultType() string            { return "grepCount" }
func (FilesResult) resultType() string                { return "files" }
func (StatsResult) resultType() string                { return "stats" }
func (SymbolsResult) resultType() string              { return "symbols" }
func (WhichResult) resultType() string                { return "which" }
func (ClassifyResult) resultType() string             { return "classify" }
func (StoryboardResult) resultType() string           { return "storyboard" }
func (FolderDepsResult) resultType() string           { return "deps" }
func (PipelineResult) resultType() string             { return "pipeline" }
func (ErrorResult) resultType() string                { return "error" }
func (NotFoundResult) resultType() string             { return "notFound" }

// ResultType exposes the JSON type discriminator of a result.
func ResultType(r Result) string {
	return r.resultType()
}

// ToJSON renders any result as a JSON object with a type discriminator.
func ToJSON(r Result) map[string]interface{} {
	if p, ok := r.(PipelineResult); ok {
		items := make([]map[string]interface{}, 0, len(p.Results))
		for _, sub := range p.Results {
			items = append(items, ToJSON(sub))
		}
		return map[string]interface{}{"type": "pipeline", "results": items}
	}
	obj := make(map[string]interface{})
	data, err := json.Marshal(r)
	if err == nil {
		_ = json.Unmarshal(data, &obj)
	}
	obj["type"] = r.resultType()
	return obj
}

// ToText renders any result for humans.
func ToText(r Result) string {
	var b strings.Builder
	switch v := r.(type) {
	case DefinitionResult:
		if len(v.Matches) == 0 {
			fmt.Fprintf(&b, "No definition found for %q\n", v.Query)
			break
		}
		fmt.Fprintf(&b, "Definitions for %q:\n", v.Query)
		writeSymbolList(&b, v.Matches)
	case ReferencesResult:
		fmt.Fprintf(&b, "References to %s (%s): %d\n", v.Symbol.Name, v.Symbol.Kind, len(v.Refs))
		writeRefList(&b, v.Refs)
	case AggregatedReferencesResult:
		fmt.Fprintf(&b, "References to %q across %d symbols:\n", v.Query, len(v.Groups))
		for _, g := range v.Groups {
			fmt.Fprintf(&b, "  %s (%s) — %d refs\n", g.Symbol.Name, g.Symbol.Kind, len(g.Refs))
			writeRefList(&b, g.Refs)
		}
	case MembersResult:
		fmt.Fprintf(&b, "Members of %s: %d\n", v.Container.Name, len(v.Members))
		writeSymbolList(&b, v.Members)
	case HierarchyResult:
		fmt.Fprintf(&b, "Hierarchy of %s:\n", v.Symbol.Name)
		fmt.Fprintf(&b, " Supertypes (%d):\n", len(v.Supertypes))
		writeSymbolList(&b, v.Supertypes)
		fmt.Fprintf(&b, " Subtypes (%d):\n", len(v.Subtypes))
		writeSymbolList(&b, v.Subtypes)
	case SourceResult:
		fmt.Fprintf(&b, "Source of %s (%s:%d):\n%s\n", v.Symbol.Name, v.Symbol.File, v.Symbol.Line, v.Source)
	case SignatureResult:
		fmt.Fprintf(&b, "%s\n", v.Signature)
	case CallGraphResult:
		fmt.Fprintf(&b, "%s of %s: %d\n", titleCase(v.Direction), v.Symbol.Name, len(v.Connections))
		writeSymbolList(&b, v.Connections)
	case ImportsResult:
		fmt.Fprintf(&b, "%s of %s: %d\n", titleCase(v.Direction), v.File, len(v.Symbols))
		writeSymbolList(&b, v.Symbols)
	case SearchResult:
		fmt.Fprintf(&b, "Matches for %q: %d\n", v.Query, len(v.Matches))
		writeSymbolList(&b, v.Matches)
	case GrepResult:
		fmt.Fprintf(&b, "Matches for %q: %d\n", v.Pattern, len(v.Matches))
		for _, m := range v.Matches {
			for i, line := range m.Before {
				fmt.Fprintf(&b, "  %s:%d- %s\n", m.File, m.Line-len(m.Before)+i, line)
			}
			loc := fmt.Sprintf("%s:%d", m.File, m.Line)
			if m.Enclosing != nil {
				fmt.Fprintf(&b, "  %s: %s  [in %s %s]\n", loc, m.LineText, m.Enclosing.Kind, m.Enclosing.Name)
			} else {
				fmt.Fprintf(&b, "  %s: %s\n", loc, m.LineText)
			}
			for i, line := range m.After {
				fmt.Fprintf(&b, "  %s:%d- %s\n", m.File, m.Line+1+i, line)
			}
		}
	case GrepFilesResult:
		label := "with"
		if !v.WithMatches {
			label = "without"
		}
		fmt.Fprintf(&b, "Files %s matches for %q: %d\n", label, v.Pattern, len(v.Files))
		for _, f := range v.Files {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	case GrepCountResult:
		fmt.Fprintf(&b, "Match counts for %q (total %d):\n", v.Pattern, v.Total)
		files := make([]string, 0, len(v.Counts))
		for f := range v.Counts {
			files = append(files, f)
		}
		sort.Strings(files)
		for _, f := range files {
			fmt.Fprintf(&b, "  %s: %d\n", f, v.Counts[f])
		}
	case FilesResult:
		fmt.Fprintf(&b, "Indexed files: %d\n", len(v.Files))
		for _, f := range v.Files {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	case StatsResult:
		fmt.Fprintf(&b, "Index statistics:\n")
		fmt.Fprintf(&b, "  documents:   %s\n", humanize.Comma(int64(v.Stats.Documents)))
		fmt.Fprintf(&b, "  symbols:     %s\n", humanize.Comma(int64(v.Stats.Symbols)))
		fmt.Fprintf(&b, "  occurrences: %s\n", humanize.Comma(int64(v.Stats.Occurrences)))
		fmt.Fprintf(&b, "  folders:     %s\n", humanize.Comma(int64(v.Folders)))
		kinds := make([]string, 0, len(v.Stats.ByKind))
		for k := range v.Stats.ByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "  %-12s %d\n", k+":", v.Stats.ByKind[scip.SymbolKind(k)])
		}
	case SymbolsResult:
		fmt.Fprintf(&b, "Symbols in %s: %d\n", v.File, len(v.Symbols))
		writeSymbolList(&b, v.Symbols)
	case WhichResult:
		fmt.Fprintf(&b, "%q is ambiguous across %d symbols:\n", v.Query, len(v.Candidates))
		writeSymbolList(&b, v.Candidates)
	case ClassifyResult:
		fmt.Fprintf(&b, "Classification of %q:\n", v.Query)
		kinds := make([]string, 0, len(v.Groups))
		for k := range v.Groups {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, " %s (%d):\n", k, len(v.Groups[k]))
			writeSymbolList(&b, v.Groups[k])
		}
	case StoryboardResult:
		fmt.Fprintf(&b, "Storyboard from %s:\n", v.Root.Name)
		for _, line := range v.Lines {
			fmt.Fprintf(&b, "%s\n", line)
		}
	case FolderDepsResult:
		if v.Folder == "" {
			fmt.Fprintf(&b, "Folders: %d\n", len(v.Folders))
			for _, f := range v.Folders {
				fmt.Fprintf(&b, "  %s\n", f)
			}
			break
		}
		fmt.Fprintf(&b, "Dependencies of %s:\n", v.Folder)
		fmt.Fprintf(&b, " Internal (%d):\n", len(v.Internal))
		for _, f := range v.Internal {
			fmt.Fprintf(&b, "  %s\n", f)
		}
		fmt.Fprintf(&b, " External (%d):\n", len(v.External))
		for _, p := range v.External {
			fmt.Fprintf(&b, "  %s\n", p)
		}
		fmt.Fprintf(&b, " Dependents (%d):\n", len(v.Dependents))
		for _, f := range v.Dependents {
			fmt.Fprintf(&b, "  %s\n", f)
		}
	case PipelineResult:
		for i, sub := range v.Results {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(ToText(sub))
		}
	case ErrorResult:
		fmt.Fprintf(&b, "Error [%s]: %s\n", v.Kind, v.Message)
	case NotFoundResult:
		fmt.Fprintf(&b, "Not found: %s\n", v.Query)
	default:
		fmt.Fprintf(&b, "%v\n", r)
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func writeSymbolList(b *strings.Builder, syms []SymbolRef) {
	for _, s := range syms {
		if s.File != "" {
			fmt.Fprintf(b, "  %s (%s) %s:%d\n", s.Name, s.Kind, s.File, s.Line)
		} else {
			fmt.Fprintf(b, "  %s (%s)\n", s.Name, s.Kind)
		}
	}
}

func writeRefList(b *strings.Builder, refs []RefLoc) {
	for _, r := range refs {
		fmt.Fprintf(b, "  %s:%d:%d\n", r.File, r.Line, r.Col+1)
	}
}
