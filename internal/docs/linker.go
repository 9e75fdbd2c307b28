package docs

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	cerr "cci/internal/errors"
	"cci/internal/index"
	"cci/internal/scip"
)

// LinkStyle selects the rendered form of resolved links.
type LinkStyle string

const (
	// StyleRelative emits a relative path from the doc file to the source.
	StyleRelative LinkStyle = "relative"
	// StyleGitHub interpolates a configured base URL.
	StyleGitHub LinkStyle = "github"
	// StyleAbsolute emits a file:// URL.
	StyleAbsolute LinkStyle = "absolute"
)

// unresolvedAnchor keeps the markdown well-formed when a URI cannot be
// resolved.
const unresolvedAnchor = "#symbol-not-found"

// SCIPURI is a parsed scip:// link:
// scip://[package@version/]path/file.ext/SymbolName#[member]
// The member suffix is optional; parsing is tolerant of a missing sigil.
type SCIPURI struct {
	Package  string
	Version  string
	FilePath string
	Symbol   string
	Member   string
	Raw      string
}

// ParseSCIPURI decodes a scip:// URI. The file path is everything up to and
// including the last segment with an extension; the remainder names the
// symbol and optional #member.
func ParseSCIPURI(raw string) (*SCIPURI, error) {
	if !strings.HasPrefix(raw, "scip://") {
		return nil, cerr.Newf(cerr.InvalidQuery, "not a scip URI: %s", raw)
	}
	body := strings.TrimPrefix(raw, "scip://")
	if body == "" {
		return nil, cerr.New(cerr.InvalidQuery, "empty scip URI")
	}
	uri := &SCIPURI{Raw: raw}

	segs := strings.Split(body, "/")
	if strings.Contains(segs[0], "@") {
		pv := strings.SplitN(segs[0], "@", 2)
		uri.Package = pv[0]
		uri.Version = pv[1]
		segs = segs[1:]
	}
	if len(segs) == 0 {
		return nil, cerr.Newf(cerr.InvalidQuery, "scip URI missing path: %s", raw)
	}

	// Locate the last path segment with a file extension.
	fileEnd := -1
	for i, seg := range segs {
		if strings.Contains(seg, ".") && !strings.ContainsAny(seg, "#()") {
			fileEnd = i
		}
	}
	if fileEnd == -1 || fileEnd == len(segs)-1 {
		// No symbol part after the file: treat the whole tail as path.
		uri.FilePath = strings.Join(segs, "/")
		if fileEnd == len(segs)-1 {
			return uri, nil
		}
		return nil, cerr.Newf(cerr.InvalidQuery, "scip URI missing file segment: %s", raw)
	}
	uri.FilePath = strings.Join(segs[:fileEnd+1], "/")

	symbolPart := strings.Join(segs[fileEnd+1:], "/")
	if idx := strings.Index(symbolPart, "#"); idx >= 0 {
		uri.Symbol = symbolPart[:idx]
		uri.Member = symbolPart[idx+1:]
	} else {
		uri.Symbol = symbolPart
	}
	uri.Symbol = baseSymbolName(uri.Symbol)
	uri.Member = baseSymbolName(uri.Member)
	return uri, nil
}

// baseSymbolName strips descriptor punctuation from a URI symbol token.
func baseSymbolName(s string) string {
	s = strings.TrimSuffix(s, "().")
	s = strings.TrimSuffix(s, "()")
	s = strings.TrimSuffix(s, "#")
	s = strings.TrimSuffix(s, ".")
	return s
}

// Transformer rewrites symbolic links in generated markdown into navigable
// file/line links.
type Transformer struct {
	ix      *index.Index
	style   LinkStyle
	baseURL string
}

// NewTransformer creates a link transformer. baseURL is only consulted for
// the github style.
func NewTransformer(ix *index.Index, style LinkStyle, baseURL string) *Transformer {
	if style == "" {
		style = StyleRelative
	}
	return &Transformer{ix: ix, style: style, baseURL: strings.TrimSuffix(baseURL, "/")}
}

var (
	// Inline links: [label](scip://...), tolerant of (...) descriptors
	// inside the URI.
	inlineLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((scip://[^()\s]*(?:\([^()]*\)[^()\s]*)*)\)`)

	// Reference-style links: [label]: scip://...
	refLinkRe = regexp.MustCompile(`(?m)^(\s*\[[^\]]+\]:\s*)(scip://\S+)\s*$`)

	// Folder doc links: [label](doc://folder/path)
	docLinkRe = regexp.MustCompile(`\[([^\]]+)\]\((doc://[^)\s]+)\)`)
)

// Transform rewrites every symbolic link in content. docRelPath is the
// markdown file's path relative to the docs root; relative links climb out
// of it to reach the source tree.
func (t *Transformer) Transform(content, docRelPath string) string {
	docDir := path.Dir(docRelPath)

	content = inlineLinkRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := inlineLinkRe.FindStringSubmatch(m)
		return fmt.Sprintf("[%s](%s)", sub[1], t.resolveURI(sub[2], docDir))
	})
	content = refLinkRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := refLinkRe.FindStringSubmatch(m)
		return sub[1] + t.resolveURI(sub[2], docDir)
	})
	content = docLinkRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := docLinkRe.FindStringSubmatch(m)
		folder := strings.TrimPrefix(sub[2], "doc://")
		target := relPath(docDir, path.Join("rendered", "folders", folder, "README.md"))
		return fmt.Sprintf("[%s](%s)", sub[1], target)
	})
	return content
}

// resolveURI turns one scip:// URI into a concrete link, or the
// not-found anchor.
func (t *Transformer) resolveURI(raw, docDir string) string {
	uri, err := ParseSCIPURI(raw)
	if err != nil {
		return unresolvedAnchor
	}
	info, line := t.resolveSymbol(uri)
	if info == nil {
		return unresolvedAnchor
	}
	file := info.File
	if file == "" {
		file = uri.FilePath
	}
	switch t.style {
	case StyleGitHub:
		if t.baseURL != "" {
			return fmt.Sprintf("%s/%s#L%d", t.baseURL, file, line)
		}
		return fmt.Sprintf("/%s#L%d", file, line)
	case StyleAbsolute:
		return fmt.Sprintf("file://%s#L%d", path.Join(t.ix.Root(), file), line)
	default:
		return fmt.Sprintf("%s#L%d", relPath(docDir, file), line)
	}
}

// resolveSymbol tries, in order: an exact symbol-id lookup, a path+name
// match, a base-name search filtered to the URI's file, and finally the
// first by-name match anywhere.
func (t *Transformer) resolveSymbol(uri *SCIPURI) (*scip.SymbolInfo, int) {
	want := uri.Symbol
	if uri.Member != "" {
		want = uri.Member
	}

	if info := t.ix.GetSymbol(uri.Raw); info != nil {
		return t.withLine(info)
	}

	inFile := func(name string) *scip.SymbolInfo {
		for _, info := range t.ix.SymbolsInFile(uri.FilePath) {
			if info.Name == name {
				return info
			}
		}
		return nil
	}
	if uri.Member != "" {
		// Prefer the member inside the named container.
		for _, container := range t.ix.FindSymbolsExact(uri.Symbol) {
			for _, m := range t.ix.MembersOf(container.Symbol) {
				if m.Name == uri.Member {
					return t.withLine(m)
				}
			}
		}
	}
	if info := inFile(want); info != nil {
		return t.withLine(info)
	}
	for _, info := range t.ix.FindSymbolsExact(want) {
		if info.File == uri.FilePath {
			return t.withLine(info)
		}
	}
	if matches := t.ix.FindSymbolsExact(want); len(matches) > 0 {
		return t.withLine(matches[0])
	}
	return nil, 0
}

func (t *Transformer) withLine(info *scip.SymbolInfo) (*scip.SymbolInfo, int) {
	if def := t.ix.FindDefinition(info.Symbol); def != nil {
		return info, def.Line()
	}
	return info, 1
}

// relPath computes a forward-slash relative path from a directory to a
// target, both given relative to the same root.
func relPath(fromDir, target string) string {
	if fromDir == "." || fromDir == "" {
		return target
	}
	ups := strings.Count(fromDir, "/") + 1
	return strings.Repeat("../", ups) + target
}
