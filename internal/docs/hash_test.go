package docs

import (
	"testing"

	"cci/internal/index"
	"cci/internal/scip"
)

func namedSym(id string, kind scip.SymbolKind, doc ...string) *scip.SymbolInfo {
	return &scip.SymbolInfo{Symbol: id, Kind: kind, Documentation: doc}
}

func TestStructureHashPermutationInvariant(t *testing.T) {
	a := namedSym("pub scip-dart app 1.0.0 lib/a.dart/A#", scip.KindClass, "doc a")
	b := namedSym("pub scip-dart app 1.0.0 lib/a.dart/B#", scip.KindClass)
	c := namedSym("pub scip-dart app 1.0.0 lib/a.dart/c().", scip.KindFunction)

	h1 := StructureHash([]*scip.SymbolInfo{a, b, c})
	h2 := StructureHash([]*scip.SymbolInfo{c, a, b})
	if h1 != h2 {
		t.Errorf("hash depends on declaration order: %s != %s", h1, h2)
	}
}

func TestStructureHashSensitivity(t *testing.T) {
	base := []*scip.SymbolInfo{
		namedSym("pub scip-dart app 1.0.0 lib/a.dart/A#", scip.KindClass),
	}
	h1 := StructureHash(base)

	changedKind := []*scip.SymbolInfo{
		namedSym("pub scip-dart app 1.0.0 lib/a.dart/A#", scip.KindMixin),
	}
	if StructureHash(changedKind) == h1 {
		t.Error("kind change not reflected in hash")
	}

	withDoc := []*scip.SymbolInfo{
		namedSym("pub scip-dart app 1.0.0 lib/a.dart/A#", scip.KindClass, "Added docs."),
	}
	if StructureHash(withDoc) == h1 {
		t.Error("doc change not reflected in hash")
	}

	withRel := []*scip.SymbolInfo{
		{
			Symbol: "pub scip-dart app 1.0.0 lib/a.dart/A#",
			Kind:   scip.KindClass,
			Relationships: []scip.Relationship{
				{Symbol: "pub scip-dart app 1.0.0 lib/b.dart/B#", IsImplementation: true},
			},
		},
	}
	if StructureHash(withRel) == h1 {
		t.Error("implements relationship not reflected in hash")
	}

	// Reference relationships are intentionally excluded.
	withRef := []*scip.SymbolInfo{
		{
			Symbol: "pub scip-dart app 1.0.0 lib/a.dart/A#",
			Kind:   scip.KindClass,
			Relationships: []scip.Relationship{
				{Symbol: "pub scip-dart app 1.0.0 lib/b.dart/B#", IsReference: true},
			},
		},
	}
	if StructureHash(withRef) != h1 {
		t.Error("reference relationship leaked into hash")
	}
}

func TestStructureHashSkipsLocals(t *testing.T) {
	base := []*scip.SymbolInfo{
		namedSym("pub scip-dart app 1.0.0 lib/a.dart/A#", scip.KindClass),
	}
	withLocal := append([]*scip.SymbolInfo{
		namedSym("local 12", scip.KindLocal),
	}, base...)
	if StructureHash(base) != StructureHash(withLocal) {
		t.Error("local symbol changed the hash")
	}
}

// Removing then re-adding a document yields byte-identical structure hashes.
func TestRemoveReAddStableHash(t *testing.T) {
	ix := index.New(t.TempDir())
	doc := &scip.Document{
		RelativePath: "lib/auth/service.dart",
		Language:     "dart",
		Symbols: []*scip.SymbolInfo{
			namedSym("pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#", scip.KindClass, "Auth."),
		},
		Occurrences: []scip.Occurrence{
			{
				File:   "lib/auth/service.dart",
				Symbol: "pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#",
				Range:  scip.Range{StartLine: 0, StartCol: 6, EndLine: 0, EndCol: 17},
				Roles:  scip.RoleDefinition,
			},
		},
	}
	ix.UpdateDocument(doc)
	before := FolderHashes(ix)["lib/auth"]

	ix.RemoveDocument("lib/auth/service.dart")
	ix.UpdateDocument(doc)
	after := FolderHashes(ix)["lib/auth"]

	if before == "" || before != after {
		t.Errorf("hash not stable across remove/re-add: %q vs %q", before, after)
	}
}
