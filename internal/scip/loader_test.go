package scip

import (
	"os"
	"path/filepath"
	"testing"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"

	cerr "cci/internal/errors"
)

func protoFixture() *scippb.Index {
	return &scippb.Index{
		Metadata: &scippb.Metadata{
			ProjectRoot: "file:///work/project",
			ToolInfo:    &scippb.ToolInfo{Name: "scip-dart", Version: "1.0.0"},
		},
		Documents: []*scippb.Document{
			{
				RelativePath: "lib/auth/service.dart",
				Language:     "dart",
				Symbols: []*scippb.SymbolInformation{
					{
						Symbol:        "pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#",
						DisplayName:   "AuthService",
						Kind:          scippb.SymbolInformation_Class,
						Documentation: []string{"Authenticates users."},
						Relationships: []*scippb.Relationship{
							{
								Symbol:           "pub scip-dart app 1.0.0 lib/core/base.dart/Service#",
								IsImplementation: true,
							},
						},
					},
				},
				Occurrences: []*scippb.Occurrence{
					{
						Range:          []int32{4, 6, 17},
						Symbol:         "pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#",
						SymbolRoles:    RoleDefinition,
						EnclosingRange: []int32{4, 0, 20, 1},
					},
				},
			},
		},
	}
}

func TestDecodeIndex(t *testing.T) {
	data, err := proto.Marshal(protoFixture())
	if err != nil {
		t.Fatal(err)
	}
	raw, err := DecodeIndex(data)
	if err != nil {
		t.Fatal(err)
	}
	if raw.Metadata == nil || raw.Metadata.ToolName != "scip-dart" {
		t.Errorf("metadata = %+v", raw.Metadata)
	}
	if len(raw.Documents) != 1 {
		t.Fatalf("documents = %d, want 1", len(raw.Documents))
	}

	doc := raw.Documents[0]
	if doc.RelativePath != "lib/auth/service.dart" || doc.Language != "dart" {
		t.Errorf("document = %+v", doc)
	}
	if len(doc.Symbols) != 1 {
		t.Fatalf("symbols = %d, want 1", len(doc.Symbols))
	}
	sym := doc.Symbols[0]
	if sym.Name != "AuthService" || sym.Kind != KindClass {
		t.Errorf("symbol = %+v", sym)
	}
	if len(sym.Relationships) != 1 || !sym.Relationships[0].IsImplementation {
		t.Errorf("relationships = %+v", sym.Relationships)
	}

	if len(doc.Occurrences) != 1 {
		t.Fatalf("occurrences = %d, want 1", len(doc.Occurrences))
	}
	occ := doc.Occurrences[0]
	if occ.File != "lib/auth/service.dart" {
		t.Errorf("File = %q", occ.File)
	}
	if !occ.IsDefinition() || occ.Line() != 5 {
		t.Errorf("occurrence = %+v", occ)
	}
	if occ.EnclosingRange == nil || occ.EnclosingRange.EndLine != 20 {
		t.Errorf("enclosing = %+v", occ.EnclosingRange)
	}
}

func TestDecodeIndexMalformed(t *testing.T) {
	if _, err := DecodeIndex([]byte("not protobuf at all, definitely")); err == nil {
		t.Fatal("malformed bytes accepted")
	}
}

func TestLoadIndexMissingFile(t *testing.T) {
	_, err := LoadIndex(filepath.Join(t.TempDir(), "index.scip"))
	if err == nil {
		t.Fatal("missing file accepted")
	}
	if !cerr.IsKind(err, cerr.NotFound) {
		t.Errorf("kind = %v, want NotFound", cerr.KindOf(err))
	}
}

func TestLoadIndexRoundTrip(t *testing.T) {
	data, err := proto.Marshal(protoFixture())
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "index.scip")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	raw, err := LoadIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw.Documents) != 1 {
		t.Errorf("documents = %d, want 1", len(raw.Documents))
	}
}
