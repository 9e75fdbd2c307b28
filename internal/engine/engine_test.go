package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	"cci/internal/config"
	"cci/internal/logging"
	"cci/internal/query"
)

func quietLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.HumanFormat,
		Level:  logging.ErrorLevel,
		Output: io.Discard,
	})
}

func writeIndex(t *testing.T, root string) {
	t.Helper()
	index := &scippb.Index{
		Documents: []*scippb.Document{
			{
				RelativePath: "lib/auth/service.dart",
				Language:     "dart",
				Symbols: []*scippb.SymbolInformation{
					{
						Symbol: "pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#",
						Kind:   scippb.SymbolInformation_Class,
					},
				},
				Occurrences: []*scippb.Occurrence{
					{
						Range:       []int32{4, 6, 17},
						Symbol:      "pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#",
						SymbolRoles: 1,
					},
				},
			},
		},
	}
	data, err := proto.Marshal(index)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "index.scip"), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func newEngine(t *testing.T) *Engine {
	t.Helper()
	root := t.TempDir()
	writeIndex(t, root)

	cfg := config.Default()
	cfg.UseCache = false
	eng, err := New(root, cfg, quietLogger(), Options{})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

func TestEngineLoadsProjectIndex(t *testing.T) {
	eng := newEngine(t)

	res := eng.Query(context.Background(), `def AuthService`)
	def, ok := res.(query.DefinitionResult)
	if !ok {
		t.Fatalf("result = %T, want DefinitionResult", res)
	}
	if len(def.Matches) != 1 || def.Matches[0].Line != 5 {
		t.Errorf("matches = %+v", def.Matches)
	}

	status := eng.Status()
	if status.Stats.Documents != 1 {
		t.Errorf("documents = %d, want 1", status.Stats.Documents)
	}
	if status.Language != "dart" {
		t.Errorf("language = %q", status.Language)
	}
}

func TestEngineFileDeleted(t *testing.T) {
	eng := newEngine(t)

	if err := eng.FileDeleted("lib/auth/service.dart"); err != nil {
		t.Fatal(err)
	}
	res := eng.Query(context.Background(), `def AuthService`)
	if _, ok := res.(query.NotFoundResult); !ok {
		t.Fatalf("result = %T, want NotFoundResult after delete", res)
	}
}

func TestEngineFileChangedReloadsDocument(t *testing.T) {
	eng := newEngine(t)

	// The producer (none configured) leaves index.scip as-is; a change
	// notification for a file still in that index reloads its document.
	if err := eng.FileChanged("lib/auth/service.dart"); err != nil {
		t.Fatal(err)
	}
	res := eng.Query(context.Background(), `def AuthService`)
	if _, ok := res.(query.DefinitionResult); !ok {
		t.Fatalf("result = %T, want DefinitionResult", res)
	}
}

func TestEngineMissingIndexIsNotFatal(t *testing.T) {
	cfg := config.Default()
	cfg.UseCache = false
	eng, err := New(t.TempDir(), cfg, quietLogger(), Options{})
	if err != nil {
		t.Fatalf("engine failed without an index: %v", err)
	}
	defer eng.Close()

	if eng.Status().Stats.Documents != 0 {
		t.Error("phantom documents in empty engine")
	}
}
