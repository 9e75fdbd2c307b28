package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cci/internal/engine"
	cerr "cci/internal/errors"
	"cci/internal/query"
	"cci/internal/watcher"
)

var (
	queryFormat      string
	queryOutput      string
	queryWatch       bool
	queryInteractive bool
	queryNoCache     bool
	queryWithDeps    bool
)

var queryCmd = &cobra.Command{
	Use:   "query \"<DSL>\"",
	Short: "Run a query against the semantic index",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := openEngine(!queryNoCache, queryWithDeps)
		if err != nil {
			return err
		}
		defer eng.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if queryInteractive {
			return runInteractive(ctx, eng)
		}
		if len(args) == 0 {
			return cerr.New(cerr.InvalidQuery, "empty query")
		}
		input := args[0]

		if queryWatch {
			return runWatch(ctx, eng, input)
		}
		return emitResult(eng.Query(ctx, input))
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryFormat, "format", "f", "text", "output format: text or json")
	queryCmd.Flags().StringVarP(&queryOutput, "output", "o", "", "write output to a file instead of stdout")
	queryCmd.Flags().BoolVarP(&queryWatch, "watch", "w", false, "re-run the query on index updates")
	queryCmd.Flags().BoolVarP(&queryInteractive, "interactive", "i", false, "interactive query prompt")
	queryCmd.Flags().BoolVar(&queryNoCache, "no-cache", false, "disable the global index cache")
	queryCmd.Flags().BoolVar(&queryWithDeps, "with-deps", false, "load external dependency indexes")
	rootCmd.AddCommand(queryCmd)
}

func emitResult(res query.Result) error {
	var rendered string
	if queryFormat == "json" {
		data, err := json.MarshalIndent(query.ToJSON(res), "", "  ")
		if err != nil {
			return cerr.Wrap(cerr.Internal, "failed to encode result", err)
		}
		rendered = string(data) + "\n"
	} else {
		rendered = query.ToText(res)
	}

	if queryOutput != "" {
		if err := os.WriteFile(queryOutput, []byte(rendered), 0o644); err != nil {
			return cerr.Wrap(cerr.IO, "failed to write output file", err)
		}
		return nil
	}
	_, _ = fmt.Print(rendered)

	if e, ok := res.(query.ErrorResult); ok {
		if e.Kind == string(cerr.Cancelled) {
			return cerr.New(cerr.Cancelled, e.Message)
		}
		return cerr.New(cerr.Kind(e.Kind), e.Message)
	}
	return nil
}

func runInteractive(ctx context.Context, eng *engine.Engine) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("cci interactive mode. Type a query, or exit to leave.")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		res := eng.Query(ctx, line)
		fmt.Print(query.ToText(res))
	}
}

func runWatch(ctx context.Context, eng *engine.Engine, input string) error {
	if err := emitResult(eng.Query(ctx, input)); err != nil && cerr.IsKind(err, cerr.Cancelled) {
		return err
	}

	w, err := watcher.New(eng.Root, eng.Config.Watcher, eng.Logger, func(path string, removed bool) error {
		if removed {
			return eng.FileDeleted(path)
		}
		return eng.FileChanged(path)
	})
	if err != nil {
		return cerr.Wrap(cerr.IO, "failed to start watcher", err)
	}
	if err := w.Start(); err != nil {
		return cerr.Wrap(cerr.IO, "failed to watch project", err)
	}
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-w.Updates():
			if !ok {
				return nil
			}
			if update.Kind == watcher.IndexError {
				fmt.Fprintf(os.Stderr, "index error: %s: %s\n", update.Path, update.Message)
				continue
			}
			fmt.Printf("-- %s %s --\n", update.Path, update.Kind)
			if err := emitResult(eng.Query(ctx, input)); err != nil && cerr.IsKind(err, cerr.Cancelled) {
				return err
			}
		}
	}
}
