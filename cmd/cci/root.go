package main

import (
	"os"

	"cci/internal/config"
	"cci/internal/engine"
	"cci/internal/logging"
	"cci/internal/registry"
	"cci/internal/version"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "cci",
	Short: "cci - semantic code intelligence",
	Long: `cci ingests a SCIP index into an in-memory semantic graph and answers a
structured query language about definitions, references, type hierarchies,
call graphs and cross-package relationships. It also runs the incremental
documentation pipeline over the indexed tree.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var projectFlag string

func init() {
	rootCmd.SetVersionTemplate("cci version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", ".", "project root path")
}

// newLogger builds the process logger from config plus the DEBUG env var.
func newLogger(cfg *config.Config) *logging.Logger {
	level := logging.LogLevel(cfg.Logging.Level)
	if os.Getenv("DEBUG") == "1" {
		level = logging.DebugLevel
	}
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  level,
	})
}

// openEngine loads config and builds the engine for the -p project root.
func openEngine(useCache, withDeps bool) (*engine.Engine, error) {
	result, err := config.Load(projectFlag)
	if err != nil {
		return nil, err
	}
	cfg := result.Config
	if !useCache {
		cfg.UseCache = false
	}
	logger := newLogger(cfg)
	if result.UsedDefaults {
		logger.Debug("no config file found, using defaults", nil)
	}
	return engine.New(projectFlag, cfg, logger, engine.Options{
		Mode:             registry.WorkspaceMode,
		LoadDependencies: withDeps,
	})
}
