package query

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	gitignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/sync/errgroup"

	cerr "cci/internal/errors"
	"cci/internal/index"
	"cci/internal/scip"
)

// grepParallelism bounds concurrent candidate-file reads.
const grepParallelism = 8

// grepTarget is one candidate file together with the index that can read
// and annotate it.
type grepTarget struct {
	ix  *index.Index
	rel string
}

type grepFileResult struct {
	target  grepTarget
	matches []GrepMatch
	count   int
	read    bool
}

func (e *Executor) execGrep(ctx context.Context, q *Query) Result {
	re, err := compileGrepPattern(q.Target, q.Grep)
	if err != nil {
		return errorResult(err)
	}
	targets, err := e.grepCandidates(q.Grep)
	if err != nil {
		return errorResult(err)
	}

	results := make([]grepFileResult, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(grepParallelism)
	var cancelled bool
	var mu sync.Mutex
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			// Cancellation is checked at file boundaries.
			if gctx.Err() != nil {
				mu.Lock()
				cancelled = true
				mu.Unlock()
				return gctx.Err()
			}
			results[i] = e.grepFile(t, re, q.Grep)
			return nil
		})
	}
	if err := g.Wait(); err != nil || cancelled {
		return cancelledResult()
	}

	flags := q.Grep
	switch {
	case flags.FilesWith || flags.FilesWithout:
		var files []string
		for _, r := range results {
			if !r.read {
				continue
			}
			hit := r.count > 0
			if hit == flags.FilesWith {
				files = append(files, r.target.rel)
			}
		}
		sort.Strings(files)
		return GrepFilesResult{Pattern: q.Target, WithMatches: flags.FilesWith, Files: files}
	case flags.CountPerFile:
		counts := make(map[string]int)
		total := 0
		for _, r := range results {
			if r.read && r.count > 0 {
				counts[r.target.rel] = r.count
				total += r.count
			}
		}
		return GrepCountResult{Pattern: q.Target, Counts: counts, Total: total}
	default:
		var matches []GrepMatch
		for _, r := range results {
			matches = append(matches, r.matches...)
		}
		return GrepResult{Pattern: q.Target, Matches: matches}
	}
}

// compileGrepPattern builds the grep regex. Targets in /regex/ form use the
// pattern syntax; plain targets are regex source unless -F forces literal.
func compileGrepPattern(target string, flags GrepFlags) (*regexp.Regexp, error) {
	src := target
	ignoreCase := flags.IgnoreCase
	if strings.HasPrefix(target, "/") {
		p, err := ParsePattern(target)
		if err != nil {
			return nil, err
		}
		src = p.Text
		ignoreCase = ignoreCase || p.IgnoreCase
	}
	if flags.Literal {
		src = regexp.QuoteMeta(src)
	}
	if flags.Word {
		src = `\b(?:` + src + `)\b`
	}
	prefix := ""
	if ignoreCase {
		prefix += "i"
	}
	if flags.Multiline {
		prefix += "s"
	}
	if prefix != "" {
		src = "(?" + prefix + ")" + src
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, cerr.Wrap(cerr.InvalidPattern, "malformed regex: "+target, err)
	}
	return re, nil
}

// grepCandidates lists the files to scan: project documents, plus external
// dependency documents under -D, filtered by include/exclude globs and the
// project .gitignore.
func (e *Executor) grepCandidates(flags GrepFlags) ([]grepTarget, error) {
	for _, glob := range append(append([]string{}, flags.Include...), flags.Exclude...) {
		if !doublestar.ValidatePattern(glob) {
			return nil, cerr.Newf(cerr.InvalidPattern, "malformed glob: %s", glob)
		}
	}

	project := e.reg.Project()
	ignore, _ := gitignore.CompileIgnoreFile(filepath.Join(project.Root(), ".gitignore"))

	var targets []grepTarget
	add := func(ix *index.Index, rel string, honorIgnore bool) {
		if honorIgnore && ignore != nil && ignore.MatchesPath(rel) {
			return
		}
		for _, glob := range flags.Exclude {
			if ok, _ := doublestar.Match(glob, rel); ok {
				return
			}
		}
		if len(flags.Include) > 0 {
			included := false
			for _, glob := range flags.Include {
				if ok, _ := doublestar.Match(glob, rel); ok {
					included = true
					break
				}
			}
			if !included {
				return
			}
		}
		targets = append(targets, grepTarget{ix: ix, rel: rel})
	}

	files := project.Documents()
	sort.Strings(files)
	for _, f := range files {
		add(project, f, true)
	}
	if flags.WithDeps {
		for _, ix := range e.reg.AllIndexes() {
			if ix == project {
				continue
			}
			deps := ix.Documents()
			sort.Strings(deps)
			for _, f := range deps {
				add(ix, f, false)
			}
		}
	}
	return targets, nil
}

// grepFile scans one candidate. Read failures yield an unread result so the
// overall grep degrades to partial output.
func (e *Executor) grepFile(t grepTarget, re *regexp.Regexp, flags GrepFlags) grepFileResult {
	data, err := t.ix.ReadFile(t.rel)
	if err != nil {
		if e.logger != nil {
			e.logger.Warn("grep: skipping unreadable file", map[string]interface{}{
				"file": t.rel, "error": err.Error(),
			})
		}
		return grepFileResult{target: t}
	}
	res := grepFileResult{target: t, read: true}
	content := string(data)
	lines := strings.Split(content, "\n")

	countOnly := flags.FilesWith || flags.FilesWithout || flags.CountPerFile

	record := func(line, col int, matchText string) bool {
		res.count++
		if countOnly {
			return flags.MaxPerFile == 0 || res.count < flags.MaxPerFile
		}
		m := GrepMatch{
			File:      t.rel,
			Line:      line + 1,
			Col:       col,
			MatchText: matchText,
			LineText:  lines[line],
		}
		if !flags.OnlyMatch {
			m.Before = contextSlice(lines, line-flags.Before, line)
			m.After = contextSlice(lines, line+1, line+1+flags.After)
			m.Enclosing = e.enclosingSymbol(t, line)
		}
		res.matches = append(res.matches, m)
		return flags.MaxPerFile == 0 || res.count < flags.MaxPerFile
	}

	if flags.Multiline && !flags.Invert {
		for _, loc := range re.FindAllStringIndex(content, -1) {
			line, col := offsetToPosition(content, loc[0])
			if !record(line, col, content[loc[0]:loc[1]]) {
				break
			}
		}
		return res
	}

	for i, lineText := range lines {
		if flags.Invert {
			if !re.MatchString(lineText) {
				if !record(i, 0, "") {
					break
				}
			}
			continue
		}
		loc := re.FindStringIndex(lineText)
		if loc == nil {
			continue
		}
		if !record(i, loc[0], lineText[loc[0]:loc[1]]) {
			break
		}
	}
	return res
}

// enclosingSymbol finds the innermost definition whose enclosing range
// covers a 0-based line, via the file's occurrence list.
func (e *Executor) enclosingSymbol(t grepTarget, line int) *SymbolRef {
	var best *scip.Occurrence
	for _, occ := range t.ix.OccurrencesInFile(t.rel) {
		occ := occ
		if !occ.IsDefinition() || occ.EnclosingRange == nil {
			continue
		}
		r := *occ.EnclosingRange
		if int32(line) < r.StartLine || int32(line) > r.EndLine {
			continue
		}
		if best == nil || r.Area() < best.EnclosingRange.Area() {
			best = &occ
		}
	}
	if best == nil {
		return nil
	}
	info := t.ix.GetSymbol(best.Symbol)
	if info == nil {
		return nil
	}
	return &SymbolRef{
		Name:   info.Name,
		Kind:   string(info.Kind),
		Symbol: info.Symbol,
		File:   t.rel,
		Line:   best.Line(),
	}
}

func contextSlice(lines []string, from, to int) []string {
	if from < 0 {
		from = 0
	}
	if to > len(lines) {
		to = len(lines)
	}
	if from >= to {
		return nil
	}
	out := make([]string, to-from)
	copy(out, lines[from:to])
	return out
}

func offsetToPosition(content string, offset int) (line, col int) {
	for i := 0; i < offset && i < len(content); i++ {
		if content[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return line, col
}
