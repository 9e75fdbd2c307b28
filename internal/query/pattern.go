package query

import (
	"regexp"
	"strings"

	cerr "cci/internal/errors"

	"github.com/hbollon/go-edlib"
)

// PatternKind discriminates the match strategies of a target pattern.
type PatternKind int

const (
	// LiteralPattern matches the full name exactly, case-sensitive.
	LiteralPattern PatternKind = iota
	// GlobPattern matches with * and ? wildcards.
	GlobPattern
	// RegexPattern matches /regex/flags syntax.
	RegexPattern
	// FuzzyPattern matches ~text with Levenshtein tolerance.
	FuzzyPattern
)

// patternFuzzyThreshold is the minimum similarity for ~needle matches.
const patternFuzzyThreshold = 0.65

// Pattern is a compiled target pattern.
type Pattern struct {
	Kind PatternKind

	// Raw is the pattern text as written in the query.
	Raw string

	// Text is the payload: the literal, the fuzzy needle, or the regex
	// source between the slashes.
	Text string

	// IgnoreCase is set by the /i regex flag.
	IgnoreCase bool

	re *regexp.Regexp
}

// ParsePattern compiles a target into a Pattern per the DSL rules:
// /regex/flags, ~fuzzy, glob when * or ? appear, literal otherwise.
func ParsePattern(raw string) (*Pattern, error) {
	p := &Pattern{Raw: raw}

	if strings.HasPrefix(raw, "/") {
		body := raw[1:]
		end := strings.LastIndex(body, "/")
		if end <= 0 {
			return nil, cerr.Newf(cerr.InvalidPattern, "unterminated regex pattern: %s", raw)
		}
		p.Kind = RegexPattern
		p.Text = body[:end]
		flags := body[end+1:]
		p.IgnoreCase = strings.Contains(flags, "i")
		src := p.Text
		if p.IgnoreCase {
			src = "(?i)" + src
		}
		re, err := regexp.Compile(src)
		if err != nil {
			return nil, cerr.Wrap(cerr.InvalidPattern, "malformed regex: "+p.Text, err)
		}
		p.re = re
		return p, nil
	}

	if strings.HasPrefix(raw, "~") {
		p.Kind = FuzzyPattern
		p.Text = raw[1:]
		return p, nil
	}

	if strings.ContainsAny(raw, "*?") {
		p.Kind = GlobPattern
		p.Text = raw
		re, err := regexp.Compile("^" + globToRegex(raw) + "$")
		if err != nil {
			return nil, cerr.Wrap(cerr.InvalidPattern, "malformed glob: "+raw, err)
		}
		p.re = re
		return p, nil
	}

	p.Kind = LiteralPattern
	p.Text = raw
	return p, nil
}

// globToRegex translates a glob to a regex source. Every regex
// metacharacter is escaped, including '.', then * becomes .* and ? becomes a
// single-character wildcard.
func globToRegex(glob string) string {
	var b strings.Builder
	for _, r := range glob {
		switch r {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '.', '+', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Matches reports whether a symbol name satisfies the pattern.
func (p *Pattern) Matches(name string) bool {
	switch p.Kind {
	case LiteralPattern:
		return name == p.Text
	case GlobPattern, RegexPattern:
		return p.re.MatchString(name)
	case FuzzyPattern:
		lower := strings.ToLower(p.Text)
		cand := strings.ToLower(name)
		if strings.Contains(cand, lower) {
			return true
		}
		sim, err := edlib.StringsSimilarity(lower, cand, edlib.Levenshtein)
		return err == nil && sim >= patternFuzzyThreshold
	default:
		return false
	}
}

// IsExact reports whether the pattern names one symbol exactly.
func (p *Pattern) IsExact() bool {
	return p.Kind == LiteralPattern
}

// Qualified splits a literal Container.member target on its last dot. Regex
// patterns are never treated as qualified.
func (p *Pattern) Qualified() (container, member string, ok bool) {
	if p.Kind == RegexPattern {
		return "", "", false
	}
	idx := strings.LastIndex(p.Text, ".")
	if idx <= 0 || idx == len(p.Text)-1 {
		return "", "", false
	}
	return p.Text[:idx], p.Text[idx+1:], true
}
