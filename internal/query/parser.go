package query

import (
	"strconv"
	"strings"

	cerr "cci/internal/errors"
)

// Actions supported by the DSL. The value records whether the action
// requires a target when it opens a query (pipeline continuations receive
// their targets from upstream).
var actions = map[string]bool{
	"def":        true,
	"refs":       true,
	"members":    true,
	"impls":      true,
	"supertypes": true,
	"subtypes":   true,
	"hierarchy":  true,
	"source":     true,
	"sig":        true,
	"calls":      true,
	"callers":    true,
	"deps":       false,
	"find":       true,
	"which":      true,
	"grep":       true,
	"imports":    true,
	"exports":    true,
	"files":      false,
	"stats":      false,
	"symbols":    true,
	"get":        true,
	"classify":   true,
	"storyboard": true,
}

// Filters narrow a symbol result set.
type Filters struct {
	// Kind is the raw kind: value. Unknown kinds are ignored, not errors.
	Kind string
	// In requires the symbol's file path to start with this prefix.
	In string
	// Lang requires case-insensitive equality with the language tag.
	Lang string
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.Kind == "" && f.In == "" && f.Lang == ""
}

// GrepFlags carries the grep flag set. Conflicts resolve last-wins during
// parsing.
type GrepFlags struct {
	IgnoreCase   bool
	Invert       bool
	Word         bool
	FilesWith    bool
	FilesWithout bool
	OnlyMatch    bool
	CountPerFile bool
	Literal      bool
	Multiline    bool
	WithDeps     bool
	MaxPerFile   int
	After        int
	Before       int
	Include      []string
	Exclude      []string
}

// Query is one parsed stage of a (possibly piped) DSL query.
type Query struct {
	Action    string
	Target    string
	HasTarget bool
	Filters   Filters
	Grep      GrepFlags
	// Next is the downstream pipeline stage, nil at the tail.
	Next *Query
	// Raw preserves this stage's text.
	Raw string
}

// Parse parses a full DSL query, including pipelines.
func Parse(input string) (*Query, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, cerr.New(cerr.InvalidQuery, "empty query")
	}
	tokens, err := tokenize(trimmed)
	if err != nil {
		return nil, err
	}

	stages := splitPipeline(tokens)
	var head, tail *Query
	for i, stage := range stages {
		q, err := parseStage(stage, i > 0)
		if err != nil {
			return nil, err
		}
		if head == nil {
			head = q
		} else {
			tail.Next = q
		}
		tail = q
	}
	return head, nil
}

// token is one lexed unit; quoted records whether it came from a quoted
// string, which suppresses pipe splitting and pattern interpretation of '|'.
type token struct {
	text   string
	quoted bool
}

func tokenize(input string) ([]token, error) {
	var tokens []token
	var cur strings.Builder
	quote := rune(0)
	quoted := false
	flush := func() {
		if cur.Len() > 0 || quoted {
			tokens = append(tokens, token{text: cur.String(), quoted: quoted})
			cur.Reset()
			quoted = false
		}
	}
	for _, r := range input {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			quoted = true
		case r == ' ' || r == '\t':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	if quote != 0 {
		return nil, cerr.New(cerr.InvalidQuery, "unterminated quote")
	}
	flush()
	return tokens, nil
}

func splitPipeline(tokens []token) [][]token {
	var stages [][]token
	var cur []token
	for _, t := range tokens {
		if t.text == "|" && !t.quoted {
			stages = append(stages, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	stages = append(stages, cur)
	return stages
}

func parseStage(tokens []token, continuation bool) (*Query, error) {
	if len(tokens) == 0 {
		return nil, cerr.New(cerr.InvalidQuery, "empty query")
	}
	action := tokens[0].text
	requiresTarget, known := actions[action]
	if !known || tokens[0].quoted {
		return nil, cerr.Newf(cerr.InvalidQuery, "unknown action: %s", action)
	}

	q := &Query{Action: action, Raw: renderTokens(tokens)}
	for _, t := range tokens[1:] {
		text := t.text
		switch {
		case !t.quoted && strings.HasPrefix(text, "kind:"):
			q.Filters.Kind = text[len("kind:"):]
		case !t.quoted && strings.HasPrefix(text, "in:"):
			q.Filters.In = text[len("in:"):]
		case !t.quoted && strings.HasPrefix(text, "lang:"):
			q.Filters.Lang = text[len("lang:"):]
		case !t.quoted && strings.HasPrefix(text, "--"):
			if err := parseLongFlag(&q.Grep, text); err != nil {
				return nil, err
			}
		case !t.quoted && strings.HasPrefix(text, "-") && len(text) > 1:
			if err := parseShortFlag(&q.Grep, text); err != nil {
				return nil, err
			}
		default:
			if !q.HasTarget {
				q.Target = text
				q.HasTarget = true
			} else {
				// Extra bareword targets fold into the pattern so
				// multi-word grep needles survive unquoted.
				q.Target += " " + text
			}
		}
	}

	if requiresTarget && !q.HasTarget && !continuation {
		return nil, cerr.Newf(cerr.InvalidQuery, "target required for %q", action)
	}
	return q, nil
}

func renderTokens(tokens []token) string {
	parts := make([]string, len(tokens))
	for i, t := range tokens {
		parts[i] = t.text
	}
	return strings.Join(parts, " ")
}

func parseLongFlag(g *GrepFlags, text string) error {
	body := text[2:]
	idx := strings.Index(body, ":")
	if idx < 0 {
		return cerr.Newf(cerr.InvalidQuery, "flag %s requires a value", text)
	}
	name, value := body[:idx], body[idx+1:]
	switch name {
	case "include":
		g.Include = append(g.Include, value)
	case "exclude":
		g.Exclude = append(g.Exclude, value)
	default:
		return cerr.Newf(cerr.InvalidQuery, "unknown flag: --%s", name)
	}
	return nil
}

func parseShortFlag(g *GrepFlags, text string) error {
	body := text[1:]
	name := body
	value := ""
	if idx := strings.Index(body, ":"); idx >= 0 {
		name, value = body[:idx], body[idx+1:]
	}
	switch name {
	case "i":
		g.IgnoreCase = true
	case "v":
		g.Invert = true
	case "w":
		g.Word = true
	case "l":
		// -l and -L are mutually exclusive, last wins.
		g.FilesWith = true
		g.FilesWithout = false
	case "L":
		g.FilesWithout = true
		g.FilesWith = false
	case "o":
		g.OnlyMatch = true
	case "c":
		g.CountPerFile = true
	case "F":
		g.Literal = true
	case "M":
		g.Multiline = true
	case "D":
		g.WithDeps = true
	case "m":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return cerr.Newf(cerr.InvalidQuery, "-m requires a non-negative count, got %q", value)
		}
		g.MaxPerFile = n
	case "C":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return cerr.Newf(cerr.InvalidQuery, "-C requires a non-negative count, got %q", value)
		}
		g.After = n
		g.Before = n
	case "A":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return cerr.Newf(cerr.InvalidQuery, "-A requires a non-negative count, got %q", value)
		}
		g.After = n
	case "B":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return cerr.Newf(cerr.InvalidQuery, "-B requires a non-negative count, got %q", value)
		}
		g.Before = n
	default:
		return cerr.Newf(cerr.InvalidQuery, "unknown flag: -%s", name)
	}
	return nil
}
