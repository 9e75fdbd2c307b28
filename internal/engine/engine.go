// Package engine wires the semantic index, registry, query executor, folder
// graph and doc pipeline into one process-owned unit shared by the CLI and
// the RPC server.
package engine

import (
	"context"
	"os"
	"os/exec"
	"sync"

	"cci/internal/config"
	"cci/internal/docs"
	cerr "cci/internal/errors"
	"cci/internal/graph"
	"cci/internal/index"
	"cci/internal/logging"
	"cci/internal/query"
	"cci/internal/registry"
	"cci/internal/scip"
	"cci/internal/store"
)

// Engine owns the loaded indexes for one project.
type Engine struct {
	Root   string
	Config *config.Config
	Logger *logging.Logger

	project  *index.Index
	reg      *registry.Registry
	executor *query.Executor

	folderMu sync.Mutex
	folder   *graph.FolderGraph

	cache *store.Store
}

// Options tunes engine construction.
type Options struct {
	// Mode selects identity reconciliation; workspace by default.
	Mode registry.Mode

	// UseCache opens the global package cache; overrides config when set
	// by the caller.
	UseCache bool

	// LoadDependencies loads cached external indexes into the registry.
	LoadDependencies bool
}

// New builds an engine for a project root, loading the SCIP index if one
// exists.
func New(root string, cfg *config.Config, logger *logging.Logger, opts Options) (*Engine, error) {
	e := &Engine{
		Root:    root,
		Config:  cfg,
		Logger:  logger,
		project: index.New(root),
	}
	e.reg = registry.New(e.project, opts.Mode)
	e.executor = query.NewExecutor(e.reg, nil, logger)

	indexFile := cfg.IndexFile(root)
	if _, err := os.Stat(indexFile); err == nil {
		raw, err := scip.LoadIndex(indexFile)
		if err != nil {
			return nil, err
		}
		e.project.Load(raw)
		logger.Info("loaded project index", map[string]interface{}{
			"path": indexFile, "documents": len(raw.Documents),
		})
	} else {
		logger.Warn("no project index found", map[string]interface{}{"path": indexFile})
	}

	if opts.UseCache || cfg.UseCache {
		dir, err := store.DefaultCacheDir()
		if err == nil {
			if cache, err := store.Open(dir, logger); err == nil {
				e.cache = cache
			} else {
				logger.Warn("cache unavailable", map[string]interface{}{"error": err.Error()})
			}
		}
	}

	if opts.LoadDependencies || cfg.LoadDependencies {
		e.loadExternalIndexes()
	}

	e.RebuildFolderGraph()
	return e, nil
}

// loadExternalIndexes hydrates cached package indexes into the registry.
func (e *Engine) loadExternalIndexes() {
	if e.cache == nil {
		return
	}
	entries, err := e.cache.List("")
	if err != nil {
		e.Logger.Warn("failed to list cached indexes", map[string]interface{}{"error": err.Error()})
		return
	}
	for _, entry := range entries {
		data, _, err := e.cache.Get(entry.Partition, entry.Key)
		if err != nil {
			e.Logger.Warn("failed to load cached index", map[string]interface{}{
				"partition": entry.Partition, "key": entry.Key, "error": err.Error(),
			})
			continue
		}
		raw, err := scip.DecodeIndex(data)
		if err != nil {
			e.Logger.Warn("cached index corrupt", map[string]interface{}{
				"partition": entry.Partition, "key": entry.Key,
			})
			continue
		}
		ix := index.New(e.cache.Dir())
		ix.Load(raw)
		id := entry.Package
		if entry.Version != "" {
			id = entry.Package + "@" + entry.Version
		}
		e.reg.AddExternal(id, ix)
	}
}

// Project returns the project index.
func (e *Engine) Project() *index.Index {
	return e.project
}

// Registry returns the multi-index registry.
func (e *Engine) Registry() *registry.Registry {
	return e.reg
}

// Cache returns the global cache store, possibly nil.
func (e *Engine) Cache() *store.Store {
	return e.cache
}

// FolderGraph returns the current folder graph.
func (e *Engine) FolderGraph() *graph.FolderGraph {
	e.folderMu.Lock()
	defer e.folderMu.Unlock()
	return e.folder
}

// RebuildFolderGraph rebuilds the folder graph from the project index.
func (e *Engine) RebuildFolderGraph() {
	fg := graph.Build(e.project)
	e.folderMu.Lock()
	e.folder = fg
	e.folderMu.Unlock()
	e.executor.SetFolderGraph(fg)
}

// Query executes one DSL query.
func (e *Engine) Query(ctx context.Context, input string) query.Result {
	return e.executor.Execute(ctx, input)
}

// FileChanged re-indexes one file: the external producer regenerates the
// SCIP index, then only the named document is replaced.
func (e *Engine) FileChanged(path string) error {
	if err := e.runProducer(); err != nil {
		return err
	}
	raw, err := scip.LoadIndex(e.Config.IndexFile(e.Root))
	if err != nil {
		return err
	}
	for _, doc := range raw.Documents {
		if doc.RelativePath == path {
			e.project.UpdateDocument(doc)
			e.RebuildFolderGraph()
			return nil
		}
	}
	// The file vanished from the producer's output.
	e.project.RemoveDocument(path)
	e.RebuildFolderGraph()
	return nil
}

// FileDeleted purges one file from the index.
func (e *Engine) FileDeleted(path string) error {
	e.project.RemoveDocument(path)
	e.RebuildFolderGraph()
	return nil
}

func (e *Engine) runProducer() error {
	cmdline := e.Config.Language.ProducerCommand
	if len(cmdline) == 0 {
		return nil
	}
	cmd := exec.Command(cmdline[0], cmdline[1:]...)
	cmd.Dir = e.Root
	if out, err := cmd.CombinedOutput(); err != nil {
		return cerr.Wrap(cerr.ExternalToolFailure, "SCIP producer failed: "+string(out), err)
	}
	return nil
}

// DocsPipeline assembles the documentation pipeline with the engine's
// current state.
func (e *Engine) DocsPipeline(gen docs.Generator) (*docs.Pipeline, error) {
	var defs docs.ModuleDefs
	if e.Config.Docs.ModulesFile != "" {
		loaded, err := docs.LoadModuleDefs(e.Config.Docs.ModulesFile)
		if err != nil {
			return nil, err
		}
		defs = loaded
	}
	layout := docs.Layout{ContextDir: e.Config.ContextDir(e.Root)}
	return docs.NewPipeline(
		e.project, e.FolderGraph(), layout, gen,
		docs.LinkStyle(e.Config.Docs.Style), e.Config.Docs.BaseURL, defs, e.Logger,
	), nil
}

// Status summarizes engine state for the status RPC and CLI.
type Status struct {
	Root      string      `json:"root"`
	Language  string      `json:"language"`
	Stats     index.Stats `json:"stats"`
	Externals []string    `json:"externals,omitempty"`
}

// Status reports the engine's current state.
func (e *Engine) Status() Status {
	return Status{
		Root:      e.Root,
		Language:  e.Config.Language.ID,
		Stats:     e.project.Summary(),
		Externals: e.reg.ExternalPackages(),
	}
}

// Close releases engine resources.
func (e *Engine) Close() error {
	if e.cache != nil {
		return e.cache.Close()
	}
	return nil
}
