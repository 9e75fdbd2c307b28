// Package config loads engine configuration with viper: an optional
// .cci.yaml in the project root, overlaid by CCI_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"cci/internal/watcher"
)

// EnvOverride records an environment variable override that was applied
type EnvOverride struct {
	EnvVar string      // e.g. "CCI_DOCS_STYLE"
	Path   string      // e.g. "docs.style"
	Value  interface{} // the raw string value from the environment
}

// LoadResult contains the loaded config plus metadata about how it was loaded
type LoadResult struct {
	Config       *Config
	ConfigPath   string        // path to the config file that was loaded, empty if defaults used
	EnvOverrides []EnvOverride // environment overrides that were applied
	UsedDefaults bool          // true if no config file was found
}

// LanguageConfig binds a language id to its external SCIP producer. The
// engine itself is language-neutral; plugins supply only this.
type LanguageConfig struct {
	// ID is the language tag, e.g. "dart".
	ID string `json:"id" mapstructure:"id"`
	// ProducerCommand regenerates the SCIP index, run from the project root.
	ProducerCommand []string `json:"producerCommand" mapstructure:"producer_command"`
	// IndexPath is where the producer leaves index.scip, relative to root.
	IndexPath string `json:"indexPath" mapstructure:"index_path"`
}

// DocsConfig configures the documentation pipeline.
type DocsConfig struct {
	// Style is relative, github or absolute.
	Style string `json:"style" mapstructure:"style"`
	// BaseURL is interpolated for github-style links.
	BaseURL string `json:"baseUrl" mapstructure:"base_url"`
	// ModulesFile optionally pins module definitions.
	ModulesFile string `json:"modulesFile" mapstructure:"modules_file"`
}

// GrepConfig bounds grep execution.
type GrepConfig struct {
	// MaxFileSizeBytes skips larger candidate files. Zero means no limit.
	MaxFileSizeBytes int64 `json:"maxFileSizeBytes" mapstructure:"max_file_size_bytes"`
}

// LoggingConfig selects log format and level.
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// Config is the complete engine configuration.
type Config struct {
	Language LanguageConfig `json:"language" mapstructure:"language"`
	Watcher  watcher.Config `json:"watcher" mapstructure:"watcher"`
	Docs     DocsConfig     `json:"docs" mapstructure:"docs"`
	Grep     GrepConfig     `json:"grep" mapstructure:"grep"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`

	// UseCache enables the global package index cache.
	UseCache bool `json:"useCache" mapstructure:"use_cache"`

	// LoadDependencies loads external package indexes into the registry.
	LoadDependencies bool `json:"loadDependencies" mapstructure:"load_dependencies"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Language: LanguageConfig{
			ID:        "dart",
			IndexPath: "index.scip",
		},
		Watcher: watcher.DefaultConfig(),
		Docs: DocsConfig{
			Style: "relative",
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
		UseCache: true,
	}
}

// ContextDir returns <root>/.<lang>_context for the configured language.
func (c *Config) ContextDir(root string) string {
	return filepath.Join(root, "."+c.Language.ID+"_context")
}

// IndexFile returns the absolute path of the project SCIP index.
func (c *Config) IndexFile(root string) string {
	if filepath.IsAbs(c.Language.IndexPath) {
		return c.Language.IndexPath
	}
	return filepath.Join(root, c.Language.IndexPath)
}

// Load reads configuration for a project root.
func Load(root string) (*LoadResult, error) {
	v := viper.New()
	v.SetConfigName(".cci")
	v.SetConfigType("yaml")
	v.AddConfigPath(root)

	v.SetEnvPrefix("CCI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := Default()
	v.SetDefault("language.id", defaults.Language.ID)
	v.SetDefault("language.index_path", defaults.Language.IndexPath)
	v.SetDefault("watcher.debounce_ms", defaults.Watcher.DebounceMs)
	v.SetDefault("watcher.ignore_patterns", defaults.Watcher.IgnorePatterns)
	v.SetDefault("watcher.queue_capacity", defaults.Watcher.QueueCapacity)
	v.SetDefault("docs.style", defaults.Docs.Style)
	v.SetDefault("logging.format", defaults.Logging.Format)
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("use_cache", defaults.UseCache)

	result := &LoadResult{}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, err
		}
		result.UsedDefaults = true
	} else {
		result.ConfigPath = v.ConfigFileUsed()
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	result.Config = cfg
	result.EnvOverrides = collectEnvOverrides()
	return result, nil
}

// collectEnvOverrides records which CCI_* variables were present, for
// diagnostics.
func collectEnvOverrides() []EnvOverride {
	var out []EnvOverride
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "CCI_") {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		path := strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(parts[0], "CCI_"), "_", "."))
		out = append(out, EnvOverride{EnvVar: parts[0], Path: path, Value: parts[1]})
	}
	return out
}
