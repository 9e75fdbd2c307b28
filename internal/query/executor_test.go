package query

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cci/internal/graph"
	"cci/internal/index"
	"cci/internal/logging"
	"cci/internal/registry"
	"cci/internal/scip"
)

const (
	authServiceID = "pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#"
	loginID       = "pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#login()."
	repoClassID   = "pub scip-dart app 1.0.0 lib/auth/repository.dart/AuthRepository#"
	repoCtorID    = "pub scip-dart app 1.0.0 lib/auth/repository.dart/AuthRepository#`<constructor>`()."
	verifyID      = "pub scip-dart app 1.0.0 lib/auth/repository.dart/AuthRepository#verify()."
	exceptionID   = "pub scip-dart app 1.0.0 lib/auth/exceptions.dart/AuthException#"
	formatErrID   = "pub scip-dart app 1.0.0 lib/auth/exceptions.dart/AuthException#formatError()."
	hashPassID    = "pub scip-dart app 1.0.0 lib/auth/crypto.dart/hashPassword()."
	spacingID     = "pub scip-dart app 1.0.0 lib/ui/spacing.dart/AppSpacing#"
	sdkExcID      = "pub scip-dart dart_sdk 3.0.0 core/exception.dart/Exception#"
)

const serviceSrc = `import 'repository.dart';

// Authentication entry point.

class AuthService {
  final AuthRepository repo = AuthRepository();

  User login(String password) {
    final hash = hashPassword(password);
    if (hash.isEmpty) {
      throw AuthException('denied');
    }
    return repo.verify(hash);
  }
}
`

const repositorySrc = `class AuthRepository {
  AuthRepository();
  bool verify(String hash) => true;
}
`

const exceptionsSrc = `class AuthException implements Exception {
  final String message;
  AuthException(this.message);
  String formatError() => 'auth: $message';
}
`

func tsym(id string, kind scip.SymbolKind) *scip.SymbolInfo {
	return &scip.SymbolInfo{Symbol: id, Kind: kind}
}

func tocc(file, id string, line, startCol, endCol int32, roles int32, enclosing *scip.Range) scip.Occurrence {
	return scip.Occurrence{
		File:           file,
		Symbol:         id,
		Range:          scip.Range{StartLine: line, StartCol: startCol, EndLine: line, EndCol: endCol},
		Roles:          roles,
		EnclosingRange: enclosing,
	}
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// newTestExecutor builds an executor over the auth fixture, with sources on
// disk for grep and source queries.
func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"lib/auth/service.dart":    serviceSrc,
		"lib/auth/repository.dart": repositorySrc,
		"lib/auth/exceptions.dart": exceptionsSrc,
	})

	ix := index.New(root)
	ix.UpdateDocument(&scip.Document{
		RelativePath: "lib/auth/service.dart",
		Language:     "dart",
		Symbols: []*scip.SymbolInfo{
			tsym(authServiceID, scip.KindClass),
			tsym(loginID, scip.KindMethod),
		},
		Occurrences: []scip.Occurrence{
			tocc("lib/auth/service.dart", authServiceID, 4, 6, 17, scip.RoleDefinition,
				&scip.Range{StartLine: 4, StartCol: 0, EndLine: 14, EndCol: 1}),
			tocc("lib/auth/service.dart", loginID, 7, 7, 12, scip.RoleDefinition,
				&scip.Range{StartLine: 7, StartCol: 2, EndLine: 13, EndCol: 3}),
			tocc("lib/auth/service.dart", repoClassID, 5, 8, 22, 0, nil),
			tocc("lib/auth/service.dart", repoCtorID, 5, 30, 44, 0, nil),
			tocc("lib/auth/service.dart", hashPassID, 8, 17, 29, 0, nil),
			tocc("lib/auth/service.dart", exceptionID, 10, 12, 25, 0, nil),
		},
	})
	ix.UpdateDocument(&scip.Document{
		RelativePath: "lib/auth/repository.dart",
		Language:     "dart",
		Symbols: []*scip.SymbolInfo{
			tsym(repoClassID, scip.KindClass),
			tsym(repoCtorID, scip.KindConstructor),
			tsym(verifyID, scip.KindMethod),
		},
		Occurrences: []scip.Occurrence{
			tocc("lib/auth/repository.dart", repoClassID, 0, 6, 20, scip.RoleDefinition,
				&scip.Range{StartLine: 0, StartCol: 0, EndLine: 3, EndCol: 1}),
			tocc("lib/auth/repository.dart", repoCtorID, 1, 2, 16, scip.RoleDefinition, nil),
			tocc("lib/auth/repository.dart", verifyID, 2, 7, 13, scip.RoleDefinition, nil),
		},
	})
	ix.UpdateDocument(&scip.Document{
		RelativePath: "lib/auth/exceptions.dart",
		Language:     "dart",
		Symbols: []*scip.SymbolInfo{
			{
				Symbol: exceptionID,
				Kind:   scip.KindClass,
				Relationships: []scip.Relationship{
					{Symbol: sdkExcID, IsImplementation: true},
				},
			},
			tsym(formatErrID, scip.KindMethod),
		},
		Occurrences: []scip.Occurrence{
			tocc("lib/auth/exceptions.dart", exceptionID, 0, 6, 19, scip.RoleDefinition,
				&scip.Range{StartLine: 0, StartCol: 0, EndLine: 4, EndCol: 1}),
			tocc("lib/auth/exceptions.dart", formatErrID, 3, 9, 20, scip.RoleDefinition,
				&scip.Range{StartLine: 3, StartCol: 2, EndLine: 3, EndCol: 43}),
		},
	})

	spacingSymbols := []*scip.SymbolInfo{tsym(spacingID, scip.KindClass)}
	spacingOccs := []scip.Occurrence{
		tocc("lib/ui/spacing.dart", spacingID, 0, 6, 16, scip.RoleDefinition,
			&scip.Range{StartLine: 0, StartCol: 0, EndLine: 11, EndCol: 1}),
	}
	for i := 1; i <= 5; i++ {
		pid := fmt.Sprintf("pub scip-dart app 1.0.0 lib/ui/spacing.dart/AppSpacing#padding%d.", i)
		mid := fmt.Sprintf("pub scip-dart app 1.0.0 lib/ui/spacing.dart/AppSpacing#margin%d.", i)
		spacingSymbols = append(spacingSymbols, tsym(pid, scip.KindField), tsym(mid, scip.KindField))
		spacingOccs = append(spacingOccs,
			tocc("lib/ui/spacing.dart", pid, int32(i), 2, 10, scip.RoleDefinition, nil),
			tocc("lib/ui/spacing.dart", mid, int32(i+5), 2, 9, scip.RoleDefinition, nil),
		)
	}
	ix.UpdateDocument(&scip.Document{
		RelativePath: "lib/ui/spacing.dart",
		Language:     "dart",
		Symbols:      spacingSymbols,
		Occurrences:  spacingOccs,
	})

	reg := registry.New(ix, registry.WorkspaceMode)
	logger := logging.NewLogger(logging.Config{Format: logging.HumanFormat, Level: logging.ErrorLevel, Output: io.Discard})
	return NewExecutor(reg, graph.Build(ix), logger)
}

func TestDefLookup(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `def AuthService`)

	def, ok := res.(DefinitionResult)
	if !ok {
		t.Fatalf("result = %T, want DefinitionResult", res)
	}
	if len(def.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(def.Matches))
	}
	m := def.Matches[0]
	if m.Name != "AuthService" || m.Kind != "class" {
		t.Errorf("match = %+v", m)
	}
	if m.File != "lib/auth/service.dart" || m.Line != 5 {
		t.Errorf("location = %s:%d, want lib/auth/service.dart:5", m.File, m.Line)
	}
}

func TestDefUnknownNameNotFound(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `def nothingHere`)
	if _, ok := res.(NotFoundResult); !ok {
		t.Fatalf("result = %T, want NotFoundResult", res)
	}
}

func TestRefsDedupByFileLine(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `refs AuthRepository`)

	refs, ok := res.(ReferencesResult)
	if !ok {
		t.Fatalf("result = %T, want ReferencesResult", res)
	}
	// A class reference and a constructor reference share line 6 of
	// service.dart; dedup leaves exactly one entry there.
	count := 0
	for _, r := range refs.Refs {
		if r.File == "lib/auth/service.dart" && r.Line == 6 {
			count++
		}
	}
	if count != 1 {
		t.Errorf("line-6 refs = %d, want 1 after dedup", count)
	}
}

func TestMembersExcludeParameters(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `members AuthRepository`)

	members, ok := res.(MembersResult)
	if !ok {
		t.Fatalf("result = %T, want MembersResult", res)
	}
	for _, m := range members.Members {
		if m.Kind == "parameter" {
			t.Errorf("parameter %q leaked into members", m.Name)
		}
	}
	if len(members.Members) != 2 {
		t.Errorf("members = %d, want 2 (constructor, verify)", len(members.Members))
	}
}

func TestHierarchy(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `hierarchy AuthException`)

	h, ok := res.(HierarchyResult)
	if !ok {
		t.Fatalf("result = %T, want HierarchyResult", res)
	}
	if len(h.Supertypes) != 1 || h.Supertypes[0].Name != "Exception" {
		t.Errorf("supertypes = %+v", h.Supertypes)
	}
}

func TestCallsAndCallers(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `calls login`)

	cg, ok := res.(CallGraphResult)
	if !ok {
		t.Fatalf("result = %T, want CallGraphResult", res)
	}
	var names []string
	for _, c := range cg.Connections {
		names = append(names, c.Name)
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "hashPassword") || !strings.Contains(joined, "AuthException") {
		t.Errorf("connections = %v", names)
	}

	res = e.Execute(context.Background(), `callers hashPassword`)
	cg, ok = res.(CallGraphResult)
	if !ok {
		t.Fatalf("result = %T, want CallGraphResult", res)
	}
	if len(cg.Connections) != 1 || cg.Connections[0].Name != "login" {
		t.Errorf("callers = %+v", cg.Connections)
	}
}

func TestSignature(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `sig login`)

	sig, ok := res.(SignatureResult)
	if !ok {
		t.Fatalf("result = %T, want SignatureResult", res)
	}
	if !strings.Contains(sig.Signature, "login(String password)") {
		t.Errorf("signature = %q", sig.Signature)
	}
	if strings.Contains(sig.Signature, "{") {
		t.Errorf("signature kept its body: %q", sig.Signature)
	}

	res = e.Execute(context.Background(), `sig AuthService`)
	sig, ok = res.(SignatureResult)
	if !ok {
		t.Fatalf("result = %T, want SignatureResult", res)
	}
	if !strings.HasSuffix(sig.Signature, "{ ... }") {
		t.Errorf("class signature = %q, want elided body", sig.Signature)
	}
}

func TestSourceSlicesEnclosingRange(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `source login`)

	src, ok := res.(SourceResult)
	if !ok {
		t.Fatalf("result = %T, want SourceResult", res)
	}
	if !strings.Contains(src.Source, "hashPassword(password)") {
		t.Errorf("source = %q", src.Source)
	}
	if strings.Contains(src.Source, "class AuthService") {
		t.Errorf("source includes the class header: %q", src.Source)
	}
}

func TestPipeFilter(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `members AppSpacing | find padding* kind:field`)

	search, ok := res.(SearchResult)
	if !ok {
		t.Fatalf("result = %T, want SearchResult", res)
	}
	if len(search.Matches) != 5 {
		t.Fatalf("matches = %d, want 5", len(search.Matches))
	}
	for _, m := range search.Matches {
		if m.Kind != "field" || !strings.HasPrefix(m.Name, "padding") {
			t.Errorf("unexpected match %+v", m)
		}
	}
}

func TestPipelinePerSymbolStage(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `def AuthService | calls`)

	// A single upstream symbol yields the plain stage result.
	cg, ok := res.(CallGraphResult)
	if !ok {
		t.Fatalf("result = %T, want CallGraphResult", res)
	}
	if cg.Symbol.Name != "AuthService" {
		t.Errorf("central symbol = %+v", cg.Symbol)
	}
}

func TestPipelineShortCircuitsOnNotFound(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `def missingThing | refs`)
	if _, ok := res.(NotFoundResult); !ok {
		t.Fatalf("result = %T, want NotFoundResult", res)
	}
}

func TestGetExactID(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `get "`+loginID+`"`)

	def, ok := res.(DefinitionResult)
	if !ok {
		t.Fatalf("result = %T, want DefinitionResult", res)
	}
	if len(def.Matches) != 1 || def.Matches[0].Symbol != loginID {
		t.Errorf("matches = %+v", def.Matches)
	}
}

func TestKindFilterUnknownIgnored(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `find AuthService kind:flavor`)

	search, ok := res.(SearchResult)
	if !ok {
		t.Fatalf("result = %T, want SearchResult", res)
	}
	if len(search.Matches) != 1 {
		t.Errorf("unknown kind filtered results: %d matches", len(search.Matches))
	}
}

func TestInFilter(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `find /.*/ in:lib/ui`)

	search, ok := res.(SearchResult)
	if !ok {
		t.Fatalf("result = %T, want SearchResult", res)
	}
	for _, m := range search.Matches {
		if !strings.HasPrefix(m.File, "lib/ui") {
			t.Errorf("match outside lib/ui: %+v", m)
		}
	}
	if len(search.Matches) == 0 {
		t.Error("no matches in lib/ui")
	}
}

func TestStats(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `stats`)

	st, ok := res.(StatsResult)
	if !ok {
		t.Fatalf("result = %T, want StatsResult", res)
	}
	if st.Stats.Documents != 4 {
		t.Errorf("documents = %d, want 4", st.Stats.Documents)
	}
	if st.Folders == 0 {
		t.Error("folder count missing")
	}
}

func TestSymbolsInFile(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `symbols lib/auth/repository.dart`)

	syms, ok := res.(SymbolsResult)
	if !ok {
		t.Fatalf("result = %T, want SymbolsResult", res)
	}
	if len(syms.Symbols) != 3 {
		t.Errorf("symbols = %d, want 3", len(syms.Symbols))
	}
}

func TestCancelledQuery(t *testing.T) {
	e := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := e.Execute(ctx, `find /.*/`)

	errRes, ok := res.(ErrorResult)
	if !ok {
		t.Fatalf("result = %T, want ErrorResult", res)
	}
	if errRes.Kind != "CANCELLED" {
		t.Errorf("kind = %q, want CANCELLED", errRes.Kind)
	}
}

func TestResultJSONCarriesType(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `def AuthService`)
	obj := ToJSON(res)
	if obj["type"] != "definition" {
		t.Errorf("type = %v, want definition", obj["type"])
	}
	if _, ok := obj["matches"]; !ok {
		t.Error("matches field missing from JSON")
	}
}
