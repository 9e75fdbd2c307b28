package docs

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"cci/internal/graph"
	"cci/internal/index"
	"cci/internal/scip"
)

// StructuralGenerator is the built-in generator: a deterministic structural
// README per folder with scip:// smart links. Agentic generators are
// external collaborators that satisfy the same interface.
type StructuralGenerator struct {
	ix *index.Index
	fg *graph.FolderGraph
}

// NewStructuralGenerator creates the built-in generator.
func NewStructuralGenerator(ix *index.Index, fg *graph.FolderGraph) *StructuralGenerator {
	return &StructuralGenerator{ix: ix, fg: fg}
}

// GenerateFolderDoc renders a folder overview with symbol tables and smart
// links for every defined symbol except locals and parameters.
func (g *StructuralGenerator) GenerateFolderDoc(ctx context.Context, folder string, level []string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	title := folder
	if title == "" {
		title = "(project root)"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	if len(level) > 1 {
		fmt.Fprintf(&b, "Part of a dependency cycle with: %s\n\n", strings.Join(others(level, folder), ", "))
	}

	files := g.filesIn(folder)
	for _, file := range files {
		symbols := g.ix.SymbolsInFile(file)
		if len(symbols) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n", file)
		for _, sym := range symbols {
			if scip.IsLocalSymbol(sym.Symbol) || sym.Kind == scip.KindParameter {
				continue
			}
			fmt.Fprintf(&b, "- [%s](scip://%s/%s#) — %s\n", sym.Name, file, sym.Name, sym.Kind)
			for _, line := range sym.Documentation {
				trimmed := strings.TrimSpace(line)
				if trimmed != "" {
					fmt.Fprintf(&b, "  %s\n", trimmed)
					break
				}
			}
		}
		b.WriteString("\n")
	}

	if deps := g.fg.InternalDeps(folder); len(deps) > 0 {
		b.WriteString("## Depends on\n\n")
		for _, dep := range deps {
			fmt.Fprintf(&b, "- [%s](doc://%s)\n", dep, dep)
		}
		b.WriteString("\n")
	}
	if ext := g.fg.ExternalDeps(folder); len(ext) > 0 {
		b.WriteString("## External packages\n\n")
		for _, pkg := range ext {
			fmt.Fprintf(&b, "- %s\n", pkg)
		}
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (g *StructuralGenerator) filesIn(folder string) []string {
	var out []string
	for _, file := range g.ix.Documents() {
		if folderOf(file) == folder {
			out = append(out, file)
		}
	}
	sort.Strings(out)
	return out
}

func others(level []string, self string) []string {
	var out []string
	for _, f := range level {
		if f != self {
			out = append(out, f)
		}
	}
	return out
}
