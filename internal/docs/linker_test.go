package docs

import (
	"strings"
	"testing"

	"cci/internal/index"
	"cci/internal/scip"
)

func linkerIndex(t *testing.T) *index.Index {
	t.Helper()
	ix := index.New("/work/project")
	ix.UpdateDocument(&scip.Document{
		RelativePath: "lib/auth/service.dart",
		Language:     "dart",
		Symbols: []*scip.SymbolInfo{
			namedSym("pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#", scip.KindClass),
			namedSym("pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#login().", scip.KindMethod),
		},
		Occurrences: []scip.Occurrence{
			{
				File:   "lib/auth/service.dart",
				Symbol: "pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#",
				Range:  scip.Range{StartLine: 4, StartCol: 6, EndLine: 4, EndCol: 17},
				Roles:  scip.RoleDefinition,
			},
			{
				File:   "lib/auth/service.dart",
				Symbol: "pub scip-dart app 1.0.0 lib/auth/service.dart/AuthService#login().",
				Range:  scip.Range{StartLine: 7, StartCol: 2, EndLine: 7, EndCol: 7},
				Roles:  scip.RoleDefinition,
			},
		},
	})
	return ix
}

func TestParseSCIPURI(t *testing.T) {
	uri, err := ParseSCIPURI("scip://lib/auth/service.dart/AuthService#")
	if err != nil {
		t.Fatal(err)
	}
	if uri.FilePath != "lib/auth/service.dart" {
		t.Errorf("FilePath = %q", uri.FilePath)
	}
	if uri.Symbol != "AuthService" {
		t.Errorf("Symbol = %q", uri.Symbol)
	}

	uri, err = ParseSCIPURI("scip://auth_kit@1.2.0/lib/auth/service.dart/AuthService#login")
	if err != nil {
		t.Fatal(err)
	}
	if uri.Package != "auth_kit" || uri.Version != "1.2.0" {
		t.Errorf("package = %s@%s", uri.Package, uri.Version)
	}
	if uri.Member != "login" {
		t.Errorf("Member = %q", uri.Member)
	}

	// The member suffix is optional and sigils are tolerated.
	uri, err = ParseSCIPURI("scip://lib/auth/service.dart/AuthService")
	if err != nil {
		t.Fatal(err)
	}
	if uri.Symbol != "AuthService" {
		t.Errorf("Symbol = %q", uri.Symbol)
	}

	if _, err := ParseSCIPURI("doc://lib/auth"); err == nil {
		t.Error("non-scip URI accepted")
	}
}

// Spec scenario: a rendered doc four directories deep resolves a relative
// link that climbs back to the source tree.
func TestTransformRelativeStyle(t *testing.T) {
	ix := linkerIndex(t)
	tr := NewTransformer(ix, StyleRelative, "")

	in := "See [AuthService](scip://lib/auth/service.dart/AuthService#)."
	out := tr.Transform(in, "rendered/folders/lib/auth/README.md")
	want := "[AuthService](../../../../lib/auth/service.dart#L5)"
	if !strings.Contains(out, want) {
		t.Errorf("Transform = %q, want substring %q", out, want)
	}
}

func TestTransformMemberLink(t *testing.T) {
	ix := linkerIndex(t)
	tr := NewTransformer(ix, StyleRelative, "")

	out := tr.Transform("[login](scip://lib/auth/service.dart/AuthService#login)", "rendered/folders/lib/auth/README.md")
	if !strings.Contains(out, "#L8") {
		t.Errorf("member link did not resolve to the method line: %q", out)
	}
}

func TestTransformReferenceStyle(t *testing.T) {
	ix := linkerIndex(t)
	tr := NewTransformer(ix, StyleGitHub, "https://example.com/repo/blob/main")

	in := "[svc]: scip://lib/auth/service.dart/AuthService#\n"
	out := tr.Transform(in, "rendered/folders/lib/auth/README.md")
	want := "[svc]: https://example.com/repo/blob/main/lib/auth/service.dart#L5"
	if !strings.Contains(out, want) {
		t.Errorf("Transform = %q, want %q", out, want)
	}
}

func TestTransformAbsoluteStyle(t *testing.T) {
	ix := linkerIndex(t)
	tr := NewTransformer(ix, StyleAbsolute, "")

	out := tr.Transform("[x](scip://lib/auth/service.dart/AuthService#)", "rendered/folders/lib/auth/README.md")
	if !strings.Contains(out, "file:///work/project/lib/auth/service.dart#L5") {
		t.Errorf("Transform = %q", out)
	}
}

func TestTransformUnresolvable(t *testing.T) {
	ix := linkerIndex(t)
	tr := NewTransformer(ix, StyleRelative, "")

	out := tr.Transform("[gone](scip://lib/auth/service.dart/Vanished#)", "rendered/folders/lib/auth/README.md")
	if !strings.Contains(out, "[gone](#symbol-not-found)") {
		t.Errorf("Transform = %q", out)
	}
}

func TestTransformDocLink(t *testing.T) {
	ix := linkerIndex(t)
	tr := NewTransformer(ix, StyleRelative, "")

	out := tr.Transform("[core](doc://lib/core)", "rendered/folders/lib/auth/README.md")
	want := "[core](../../../../rendered/folders/lib/core/README.md)"
	if !strings.Contains(out, want) {
		t.Errorf("Transform = %q, want %q", out, want)
	}
}

func TestTransformInlineWithParens(t *testing.T) {
	ix := linkerIndex(t)
	tr := NewTransformer(ix, StyleRelative, "")

	out := tr.Transform("[login](scip://lib/auth/service.dart/AuthService#login().)", "rendered/folders/lib/auth/README.md")
	if strings.Contains(out, "scip://") {
		t.Errorf("descriptor parens broke the inline parser: %q", out)
	}
}
