package query

import (
	"context"
	"strings"
	"testing"
)

func TestGrepWordBoundary(t *testing.T) {
	e := newTestExecutor(t)
	// formatError contains Error as a substring but not as a word.
	res := e.Execute(context.Background(), `grep Error -w`)

	grep, ok := res.(GrepResult)
	if !ok {
		t.Fatalf("result = %T, want GrepResult", res)
	}
	if len(grep.Matches) != 0 {
		t.Errorf("word-boundary grep matched %d lines: %+v", len(grep.Matches), grep.Matches)
	}

	// Without -w the substring matches.
	res = e.Execute(context.Background(), `grep Error`)
	grep = res.(GrepResult)
	if len(grep.Matches) != 1 {
		t.Errorf("plain grep matches = %d, want 1", len(grep.Matches))
	}
}

func TestGrepRegexWithEnclosingSymbol(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep /throw\s+\w+Exception/`)

	grep, ok := res.(GrepResult)
	if !ok {
		t.Fatalf("result = %T, want GrepResult", res)
	}
	if len(grep.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(grep.Matches))
	}
	m := grep.Matches[0]
	if !strings.Contains(m.MatchText, "AuthException") {
		t.Errorf("matchText = %q", m.MatchText)
	}
	if m.Enclosing == nil || m.Enclosing.Name != "login" {
		t.Errorf("enclosing = %+v, want login", m.Enclosing)
	}
}

func TestGrepCaseInsensitive(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep authservice -i`)
	grep := res.(GrepResult)
	if len(grep.Matches) == 0 {
		t.Error("case-insensitive grep found nothing")
	}
}

func TestGrepLiteralFlag(t *testing.T) {
	e := newTestExecutor(t)
	// Without -F the parentheses form a regex group, so the pattern would
	// match only "verifyhash" and miss the literal call.
	res := e.Execute(context.Background(), `grep "verify(hash)" -F`)
	grep, ok := res.(GrepResult)
	if !ok {
		t.Fatalf("result = %T, want GrepResult", res)
	}
	if len(grep.Matches) != 1 {
		t.Errorf("matches = %d, want 1", len(grep.Matches))
	}
}

func TestGrepFilesWithAndWithout(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep AuthRepository -l`)
	files, ok := res.(GrepFilesResult)
	if !ok {
		t.Fatalf("result = %T, want GrepFilesResult", res)
	}
	if !files.WithMatches || len(files.Files) != 2 {
		t.Errorf("files = %+v", files)
	}

	res = e.Execute(context.Background(), `grep AuthRepository -L`)
	files = res.(GrepFilesResult)
	if files.WithMatches {
		t.Error("-L reported files-with")
	}
	for _, f := range files.Files {
		if f == "lib/auth/service.dart" || f == "lib/auth/repository.dart" {
			t.Errorf("matching file %s listed by -L", f)
		}
	}
}

func TestGrepCount(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep AuthRepository -c`)
	counts, ok := res.(GrepCountResult)
	if !ok {
		t.Fatalf("result = %T, want GrepCountResult", res)
	}
	if counts.Counts["lib/auth/repository.dart"] != 2 {
		t.Errorf("repository.dart count = %d, want 2", counts.Counts["lib/auth/repository.dart"])
	}
	if counts.Total < 3 {
		t.Errorf("total = %d, want >= 3", counts.Total)
	}
}

func TestGrepInvert(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep /./ -v --include:lib/auth/repository.dart`)
	grep, ok := res.(GrepResult)
	if !ok {
		t.Fatalf("result = %T, want GrepResult", res)
	}
	// Only the trailing empty line fails to match /./ in repository.dart.
	if len(grep.Matches) != 1 {
		t.Errorf("inverted matches = %d, want 1", len(grep.Matches))
	}
}

func TestGrepMaxPerFile(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep /a/ -m:1 --include:lib/auth/*.dart`)
	grep, ok := res.(GrepResult)
	if !ok {
		t.Fatalf("result = %T, want GrepResult", res)
	}
	perFile := make(map[string]int)
	for _, m := range grep.Matches {
		perFile[m.File]++
	}
	for f, n := range perFile {
		if n > 1 {
			t.Errorf("%s got %d matches, want <= 1", f, n)
		}
	}
}

func TestGrepIncludeExcludeGlobs(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep class --include:lib/**/*.dart --exclude:lib/auth/**`)
	grep, ok := res.(GrepResult)
	if !ok {
		t.Fatalf("result = %T, want GrepResult", res)
	}
	for _, m := range grep.Matches {
		if strings.HasPrefix(m.File, "lib/auth/") {
			t.Errorf("excluded file matched: %s", m.File)
		}
	}
}

func TestGrepContextLines(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep /throw/ -C:1`)
	grep, ok := res.(GrepResult)
	if !ok {
		t.Fatalf("result = %T, want GrepResult", res)
	}
	if len(grep.Matches) != 1 {
		t.Fatalf("matches = %d, want 1", len(grep.Matches))
	}
	m := grep.Matches[0]
	if len(m.Before) != 1 || len(m.After) != 1 {
		t.Errorf("context = %d before, %d after, want 1/1", len(m.Before), len(m.After))
	}
	if !strings.Contains(m.Before[0], "isEmpty") {
		t.Errorf("before = %q", m.Before[0])
	}
}

func TestGrepOnlyMatch(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep /Auth\w+/ -o --include:lib/auth/service.dart`)
	grep, ok := res.(GrepResult)
	if !ok {
		t.Fatalf("result = %T, want GrepResult", res)
	}
	for _, m := range grep.Matches {
		if m.Enclosing != nil {
			t.Error("-o still annotated enclosing symbols")
		}
		if !strings.HasPrefix(m.MatchText, "Auth") {
			t.Errorf("matchText = %q", m.MatchText)
		}
	}
}

func TestGrepMultiline(t *testing.T) {
	e := newTestExecutor(t)
	res := e.Execute(context.Background(), `grep /if.*?throw/ -M --include:lib/auth/service.dart`)
	grep, ok := res.(GrepResult)
	if !ok {
		t.Fatalf("result = %T, want GrepResult", res)
	}
	if len(grep.Matches) != 1 {
		t.Errorf("multiline matches = %d, want 1", len(grep.Matches))
	}
}
