package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	cerr "cci/internal/errors"
	"cci/internal/logging"
	"cci/internal/scip"
	"cci/internal/store"
)

// openCache opens the global user-level cache store.
func openCache(logger *logging.Logger) (*store.Store, error) {
	dir, err := store.DefaultCacheDir()
	if err != nil {
		return nil, err
	}
	return store.Open(dir, logger)
}

// cacheIndexAt reads <path>/index.scip and stores it in a cache partition.
func cacheIndexAt(cache *store.Store, partition, key, pkg, version, path string) error {
	indexFile := filepath.Join(path, "index.scip")
	data, err := os.ReadFile(indexFile)
	if err != nil {
		return cerr.Wrap(cerr.NotFound, "no SCIP index at "+indexFile, err)
	}
	// Decode to validate before caching.
	if _, err := scip.DecodeIndex(data); err != nil {
		return err
	}
	_, err = cache.Put(partition, key, pkg, version, data)
	return err
}

var indexSdkCmd = &cobra.Command{
	Use:   "index-sdk <path>",
	Short: "Cache the SDK's SCIP index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.FromEnv()
		cache, err := openCache(logger)
		if err != nil {
			return err
		}
		defer cache.Close()

		version := filepath.Base(args[0])
		if err := cacheIndexAt(cache, store.PartitionSDK, version, "sdk", version, args[0]); err != nil {
			return err
		}
		fmt.Printf("indexed sdk %s\n", version)
		return nil
	},
}

var indexFlutterCmd = &cobra.Command{
	Use:   "index-flutter [path]",
	Short: "Cache the Flutter framework's SCIP indexes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.FromEnv()
		root := os.Getenv("FLUTTER_ROOT")
		if len(args) == 1 {
			root = args[0]
		}
		if root == "" {
			return cerr.New(cerr.NotFound, "flutter path not given and FLUTTER_ROOT unset")
		}
		cache, err := openCache(logger)
		if err != nil {
			return err
		}
		defer cache.Close()

		version := filepath.Base(root)
		pkgDirs, err := os.ReadDir(filepath.Join(root, "packages"))
		if err != nil {
			return cerr.Wrap(cerr.IO, "failed to list flutter packages", err)
		}
		var failed int
		for _, entry := range pkgDirs {
			if !entry.IsDir() {
				continue
			}
			pkg := entry.Name()
			key := store.FlutterKey(version, pkg)
			dir := filepath.Join(root, "packages", pkg)
			if err := cacheIndexAt(cache, store.PartitionFlutter, key, pkg, version, dir); err != nil {
				// Per-package failures are reported; the pass continues.
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", pkg, err)
				failed++
				continue
			}
			fmt.Printf("indexed flutter package %s\n", pkg)
		}
		if failed == len(pkgDirs) && failed > 0 {
			return cerr.New(cerr.ExternalToolFailure, "no flutter package could be indexed")
		}
		return nil
	},
}

var indexDepsCmd = &cobra.Command{
	Use:   "index-deps [path]",
	Short: "Cache SCIP indexes for resolved dependency packages",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.FromEnv()
		root := projectFlag
		if len(args) == 1 {
			root = args[0]
		}
		cache, err := openCache(logger)
		if err != nil {
			return err
		}
		defer cache.Close()

		// Dependency resolution is delegated to the package manager; the
		// engine consumes whatever indexed checkouts exist underneath the
		// packages directory.
		depsDir := filepath.Join(root, ".packages_index")
		entries, err := os.ReadDir(depsDir)
		if err != nil {
			return cerr.Wrap(cerr.NotFound, "no dependency index directory at "+depsDir, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			name, version := splitNameVersion(entry.Name())
			key := store.PackageKey(name, version)
			if err := cacheIndexAt(cache, store.PartitionPackages, key, name, version, filepath.Join(depsDir, entry.Name())); err != nil {
				fmt.Fprintf(os.Stderr, "skipping %s: %v\n", entry.Name(), err)
				continue
			}
			fmt.Printf("indexed package %s %s\n", name, version)
		}
		return nil
	},
}

var listIndexesCmd = &cobra.Command{
	Use:   "list-indexes",
	Short: "List cached package indexes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.FromEnv()
		cache, err := openCache(logger)
		if err != nil {
			return err
		}
		defer cache.Close()

		entries, err := cache.List("")
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no cached indexes")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-10s %-40s %s\n", e.Partition, e.Key, humanize.Time(e.IndexedAt))
		}
		return nil
	},
}

var listPackagesCmd = &cobra.Command{
	Use:   "list-packages [path]",
	Short: "List external packages referenced by the project index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			projectFlag = args[0]
		}
		eng, err := openEngine(true, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		fg := eng.FolderGraph()
		seen := make(map[string]bool)
		for _, folder := range fg.Folders() {
			for _, pkg := range fg.ExternalDeps(folder) {
				if !seen[pkg] {
					seen[pkg] = true
					fmt.Println(pkg)
				}
			}
		}
		if len(seen) == 0 {
			fmt.Println("no external packages referenced")
		}
		return nil
	},
}

// splitNameVersion splits "name-1.2.3" on the last dash.
func splitNameVersion(dir string) (string, string) {
	for i := len(dir) - 1; i > 0; i-- {
		if dir[i] == '-' {
			return dir[:i], dir[i+1:]
		}
	}
	return dir, ""
}

func init() {
	rootCmd.AddCommand(indexSdkCmd)
	rootCmd.AddCommand(indexFlutterCmd)
	rootCmd.AddCommand(indexDepsCmd)
	rootCmd.AddCommand(listIndexesCmd)
	rootCmd.AddCommand(listPackagesCmd)
}
