package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cci/internal/docs"
	"cci/internal/engine"
	cerr "cci/internal/errors"
)

var (
	docsFolder string
	docsForce  bool
	docsDryRun bool
	docsStyle  string
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Incremental documentation pipeline",
}

var docsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which folders need doc regeneration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, eng, err := openPipeline()
		if err != nil {
			return err
		}
		defer eng.Close()

		state := pipeline.Status()
		folders := make([]string, 0, len(state.Hashes))
		for folder := range state.Hashes {
			folders = append(folders, folder)
		}
		sort.Strings(folders)

		dirty := 0
		for _, folder := range folders {
			if reason, ok := state.Folders[folder]; ok {
				fmt.Printf("dirty  %-40s %s\n", folder, reason)
				dirty++
			} else {
				fmt.Printf("clean  %s\n", folder)
			}
		}
		fmt.Printf("\n%d/%d folders dirty", dirty, len(folders))
		if len(state.DirtyModules) > 0 {
			fmt.Printf("; dirty modules: %s", strings.Join(state.DirtyModules, ", "))
		}
		if state.ProjectDirty {
			fmt.Printf("; project dirty")
		}
		fmt.Println()
		return nil
	},
}

var docsContextCmd = &cobra.Command{
	Use:   "context",
	Short: "Show the generation context for a folder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if docsFolder == "" {
			return cerr.New(cerr.InvalidQuery, "a folder is required (-f)")
		}
		eng, err := openEngine(true, false)
		if err != nil {
			return err
		}
		defer eng.Close()

		fg := eng.FolderGraph()
		if !fg.HasFolder(docsFolder) {
			return cerr.Newf(cerr.NotFound, "folder not in index: %s", docsFolder)
		}
		fmt.Printf("folder: %s\n", docsFolder)
		fmt.Printf("internal deps: %s\n", strings.Join(fg.InternalDeps(docsFolder), ", "))
		fmt.Printf("external deps: %s\n", strings.Join(fg.ExternalDeps(docsFolder), ", "))
		fmt.Printf("dependents:    %s\n", strings.Join(fg.Dependents(docsFolder), ", "))
		return nil
	},
}

var docsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Regenerate docs for dirty folders in dependency order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, eng, err := openPipeline()
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := pipeline.Run(ctx, docsForce, docsDryRun)
		if err != nil {
			return err
		}
		verb := "generated"
		if docsDryRun {
			verb = "would generate"
		}
		fmt.Printf("%s %d folders, skipped %d\n", verb, len(res.Generated), res.Skipped)
		for _, folder := range res.Failed {
			fmt.Fprintf(os.Stderr, "failed: %s\n", folder)
		}
		if len(res.Failed) > 0 {
			return cerr.New(cerr.ExternalToolFailure, "some folders failed to generate")
		}
		return nil
	},
}

var docsResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Re-render links for already generated docs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pipeline, eng, err := openPipeline()
		if err != nil {
			return err
		}
		defer eng.Close()

		if docsFolder != "" {
			return pipeline.ResolveFolder(docsFolder)
		}
		state := pipeline.Status()
		for folder := range state.Hashes {
			if err := pipeline.ResolveFolder(folder); err != nil {
				if cerr.IsKind(err, cerr.NotFound) {
					continue
				}
				return err
			}
		}
		return nil
	},
}

func openPipeline() (*docs.Pipeline, *engine.Engine, error) {
	eng, err := openEngine(true, false)
	if err != nil {
		return nil, nil, err
	}
	if docsStyle != "" {
		eng.Config.Docs.Style = docsStyle
	}
	gen := docs.NewStructuralGenerator(eng.Project(), eng.FolderGraph())
	pipeline, err := eng.DocsPipeline(gen)
	if err != nil {
		eng.Close()
		return nil, nil, err
	}
	return pipeline, eng, nil
}

func init() {
	docsCmd.PersistentFlags().StringVarP(&docsFolder, "folder", "f", "", "restrict to one folder")
	docsCmd.PersistentFlags().StringVar(&docsStyle, "style", "", "link style: relative, github or absolute")
	docsGenerateCmd.Flags().BoolVar(&docsForce, "force", false, "regenerate everything")
	docsGenerateCmd.Flags().BoolVar(&docsDryRun, "dry-run", false, "report without writing")
	docsCmd.AddCommand(docsStatusCmd)
	docsCmd.AddCommand(docsContextCmd)
	docsCmd.AddCommand(docsGenerateCmd)
	docsCmd.AddCommand(docsResolveCmd)
	rootCmd.AddCommand(docsCmd)
}
