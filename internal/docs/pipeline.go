package docs

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	cerr "cci/internal/errors"
	"cci/internal/graph"
	"cci/internal/index"
	"cci/internal/logging"
)

// Generator produces markdown for one folder. It is an external
// collaborator: the agentic implementation lives outside the engine.
type Generator interface {
	// GenerateFolderDoc returns the markdown body for a folder's README.
	// The sibling folders of the same SCC level are passed so cyclic
	// groups can be documented together.
	GenerateFolderDoc(ctx context.Context, folder string, level []string) (string, error)
}

// Layout describes where the pipeline reads and writes under the project's
// context directory.
type Layout struct {
	// ContextDir is <project>/.<lang>_context.
	ContextDir string
}

// ManifestPath is docs/manifest.json under the context dir.
func (l Layout) ManifestPath() string {
	return filepath.Join(l.ContextDir, "docs", "manifest.json")
}

// SourceDoc is the unresolved-link doc path for a folder.
func (l Layout) SourceDoc(folder string) string {
	return filepath.Join(l.ContextDir, "docs", "source", "folders", filepath.FromSlash(folder), "README.md")
}

// RenderedDoc is the link-resolved doc path for a folder.
func (l Layout) RenderedDoc(folder string) string {
	return filepath.Join(l.ContextDir, "docs", "rendered", "folders", filepath.FromSlash(folder), "README.md")
}

// renderedRel is the rendered doc path relative to the docs root, the base
// for relative link resolution.
func renderedRel(folder string) string {
	return "rendered/folders/" + folder + "/README.md"
}

// Pipeline runs incremental doc generation.
type Pipeline struct {
	ix        *index.Index
	fg        *graph.FolderGraph
	layout    Layout
	generator Generator
	style     LinkStyle
	baseURL   string
	defs      ModuleDefs
	logger    *logging.Logger
}

// NewPipeline assembles a doc pipeline.
func NewPipeline(ix *index.Index, fg *graph.FolderGraph, layout Layout, gen Generator, style LinkStyle, baseURL string, defs ModuleDefs, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		ix: ix, fg: fg, layout: layout, generator: gen,
		style: style, baseURL: baseURL, defs: defs, logger: logger,
	}
}

// Status computes dirty state against the persisted manifest without
// generating anything.
func (p *Pipeline) Status() *DirtyState {
	prev := LoadManifest(p.layout.ManifestPath(), p.logger)
	return Track(p.ix, p.fg, prev, p.defs)
}

// RunResult summarizes a generation pass.
type RunResult struct {
	Generated []string `json:"generated"`
	Skipped   int      `json:"skipped"`
	Failed    []string `json:"failed,omitempty"`
}

// smartSymbolRe finds scip:// URIs embedded in generated markdown; they
// become the folder's smart symbols for invalidation propagation.
var smartSymbolRe = regexp.MustCompile(`scip://[^()\s\)]+`)

// Run regenerates dirty folders in SCC-topological order, rewrites links,
// and persists the manifest. With force set, every folder regenerates.
// Generator failures are reported per folder; the pass continues.
func (p *Pipeline) Run(ctx context.Context, force, dryRun bool) (*RunResult, error) {
	prev := LoadManifest(p.layout.ManifestPath(), p.logger)
	state := Track(p.ix, p.fg, prev, p.defs)

	schedule := state.DirtyOrder()
	if force {
		schedule = state.Order
	}

	res := &RunResult{}
	for _, level := range schedule {
		for _, folder := range level {
			if err := ctx.Err(); err != nil {
				return res, cerr.New(cerr.Cancelled, "cancelled")
			}
			if dryRun {
				res.Generated = append(res.Generated, folder)
				continue
			}
			if err := p.generateFolder(ctx, prev, folder, level); err != nil {
				res.Failed = append(res.Failed, folder)
				if p.logger != nil {
					p.logger.Error("doc generation failed", map[string]interface{}{
						"folder": folder, "error": err.Error(),
					})
				}
				continue
			}
			res.Generated = append(res.Generated, folder)
		}
	}
	res.Skipped = len(state.Hashes) - len(res.Generated) - len(res.Failed)

	if dryRun {
		return res, nil
	}
	prev.RecordModules(state.Modules)
	if err := prev.Save(p.layout.ManifestPath()); err != nil {
		return res, err
	}
	return res, nil
}

func (p *Pipeline) generateFolder(ctx context.Context, m *Manifest, folder string, level []string) error {
	body, err := p.generator.GenerateFolderDoc(ctx, folder, level)
	if err != nil {
		return cerr.Wrap(cerr.ExternalToolFailure, "doc generator failed for "+folder, err)
	}

	srcPath := p.layout.SourceDoc(folder)
	if err := writeFileAtomic(srcPath, []byte(body)); err != nil {
		return err
	}

	transformer := NewTransformer(p.ix, p.style, p.baseURL)
	rendered := transformer.Transform(body, renderedRel(folder))
	if err := writeFileAtomic(p.layout.RenderedDoc(folder), []byte(rendered)); err != nil {
		return err
	}

	smart := smartSymbolRe.FindAllString(body, -1)
	sort.Strings(smart)
	smart = dedupe(smart)

	hashes := FolderHashes(p.ix)
	m.Record(folder, hashes[folder], ContentHash([]byte(body)),
		time.Now().UTC().Format(time.RFC3339), p.fg, smart)
	return nil
}

// ResolveFolder re-renders an already generated source doc through the link
// transformer, without invoking the generator.
func (p *Pipeline) ResolveFolder(folder string) error {
	body, err := os.ReadFile(p.layout.SourceDoc(folder))
	if err != nil {
		if os.IsNotExist(err) {
			return cerr.Newf(cerr.NotFound, "no generated doc for folder %s", folder)
		}
		return cerr.Wrap(cerr.IO, "failed to read source doc", err)
	}
	transformer := NewTransformer(p.ix, p.style, p.baseURL)
	rendered := transformer.Transform(string(body), renderedRel(folder))
	return writeFileAtomic(p.layout.RenderedDoc(folder), []byte(rendered))
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return cerr.Wrap(cerr.IO, "failed to create doc directory", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return cerr.Wrap(cerr.IO, "failed to write doc", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return cerr.Wrap(cerr.IO, "failed to replace doc", err)
	}
	return nil
}

func dedupe(sorted []string) []string {
	out := sorted[:0]
	var last string
	for i, s := range sorted {
		if i == 0 || s != last {
			out = append(out, s)
		}
		last = s
	}
	return out
}
