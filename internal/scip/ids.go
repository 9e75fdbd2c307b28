package scip

import (
	"strings"
)

// ParsedSymbol is the decomposed form of a SCIP symbol identifier.
//
// Global identifiers have five space-separated tokens followed by a
// path/descriptor chain:
//
//	<manager> <scheme> <package> <version> <path>/<descriptor>...
//
// Example: "pub scip-dart auth_kit 1.2.0 lib/auth/service.dart/AuthService#login()."
// Local identifiers contain the token "local" and carry no package identity.
type ParsedSymbol struct {
	// Manager is the package manager token (e.g. "pub", "gomod", "npm").
	Manager string

	// Scheme is the producer scheme token (e.g. "scip-dart").
	Scheme string

	// Package is the package name token.
	Package string

	// Version is the package version token.
	Version string

	// Path is the file path portion of the descriptor chain.
	Path string

	// Descriptors are the trailing descriptor segments with sigils retained,
	// e.g. ["AuthService#", "login()."].
	Descriptors []string

	// Local is true for local (anonymous) symbols.
	Local bool

	// Raw is the identifier as given.
	Raw string

	// backtickPath records the scip-go quoting style for id recomposition.
	backtickPath bool
}

// sigil suffixes in order of specificity. "()." must be checked before ".".
func descriptorKind(desc string) SymbolKind {
	switch {
	case strings.HasSuffix(desc, "()."):
		return KindMethod
	case strings.HasSuffix(desc, "#"):
		return KindClass
	case strings.HasSuffix(desc, ")"):
		return KindParameter
	case strings.HasSuffix(desc, "."):
		return KindField
	default:
		return KindUnknown
	}
}

// isDescriptorSegment reports whether a slash-separated segment is a symbol
// descriptor rather than part of the file path.
func isDescriptorSegment(seg string) bool {
	return descriptorKind(seg) != KindUnknown
}

// ParseSymbol decomposes a SCIP symbol identifier. It is total: malformed
// identifiers yield a ParsedSymbol with only Raw (and possibly Local) set.
func ParseSymbol(id string) *ParsedSymbol {
	p := &ParsedSymbol{Raw: id}
	if id == "" {
		return p
	}

	for _, tok := range strings.Fields(id) {
		if tok == "local" {
			p.Local = true
			break
		}
	}

	parts := strings.SplitN(id, " ", 5)
	if len(parts) < 5 {
		return p
	}
	p.Manager = parts[0]
	p.Scheme = parts[1]
	p.Package = parts[2]
	p.Version = parts[3]

	tail := parts[4]

	// scip-go style backtick-quoted path: `pkg/path`/Symbol().
	if strings.HasPrefix(tail, "`") {
		if end := strings.Index(tail[1:], "`"); end != -1 {
			p.Path = tail[1 : 1+end]
			p.backtickPath = true
			rest := strings.TrimPrefix(tail[2+end:], "/")
			if rest != "" {
				p.Descriptors = splitDescriptorChain(rest)
			}
			return p
		}
	}

	segs := strings.Split(tail, "/")
	firstDesc := len(segs)
	for i, seg := range segs {
		if isDescriptorSegment(seg) {
			firstDesc = i
			break
		}
	}
	p.Path = strings.Join(segs[:firstDesc], "/")
	if firstDesc < len(segs) {
		p.Descriptors = splitDescriptorChain(strings.Join(segs[firstDesc:], "/"))
	}
	return p
}

// splitDescriptorChain decomposes a concatenated descriptor chain like
// "AuthService#login().(password)" into its sigil-terminated segments.
// Backtick-escaped names may contain sigil characters and are skipped over.
func splitDescriptorChain(s string) []string {
	var out []string
	start := 0
	i := 0
	for i < len(s) {
		switch s[i] {
		case '`':
			if end := strings.IndexByte(s[i+1:], '`'); end >= 0 {
				i += end + 2
			} else {
				i = len(s)
			}
		case '#':
			out = append(out, s[start:i+1])
			i++
			start = i
		case '(':
			close := strings.IndexByte(s[i:], ')')
			if close < 0 {
				i = len(s)
				break
			}
			i += close + 1
			// "()." terminates a method, a bare "(name)" a parameter.
			if i < len(s) && s[i] == '.' {
				i++
			}
			out = append(out, s[start:i])
			start = i
		case '.':
			out = append(out, s[start:i+1])
			i++
			start = i
		default:
			i++
		}
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// LastDescriptor returns the final descriptor segment, or "".
func (p *ParsedSymbol) LastDescriptor() string {
	if len(p.Descriptors) == 0 {
		return ""
	}
	return p.Descriptors[len(p.Descriptors)-1]
}

// Kind infers the symbol kind from the trailing descriptor sigil.
func (p *ParsedSymbol) Kind() SymbolKind {
	if p.Local {
		return KindLocal
	}
	desc := p.LastDescriptor()
	if desc == "" {
		return KindUnknown
	}
	k := descriptorKind(desc)
	if k == KindMethod && strings.Contains(desc, "`<constructor>`") {
		return KindConstructor
	}
	return k
}

// Name extracts the bare symbol name from the identifier. Backtick-escaped
// accessor wrappers (`<get>x`, `<set>x`) unwrap to the accessor target;
// `<constructor>` yields the enclosing class name. The result never contains
// whitespace or SCIP sigils.
func (p *ParsedSymbol) Name() string {
	desc := p.LastDescriptor()
	if desc == "" {
		return ""
	}
	name := stripDescriptorName(desc)
	if name == "<constructor>" {
		if len(p.Descriptors) >= 2 {
			return stripDescriptorName(p.Descriptors[len(p.Descriptors)-2])
		}
		return ""
	}
	return name
}

// stripDescriptorName removes sigils and backtick escaping from one
// descriptor segment.
func stripDescriptorName(desc string) string {
	name := desc
	name = strings.TrimSuffix(name, "().")
	name = strings.TrimSuffix(name, "#")
	// Parameter descriptor: (x) -> x.
	if strings.HasPrefix(name, "(") && strings.HasSuffix(name, ")") {
		return name[1 : len(name)-1]
	}
	name = strings.TrimSuffix(name, ".")
	if strings.HasPrefix(name, "`") && strings.HasSuffix(name, "`") && len(name) >= 2 {
		name = name[1 : len(name)-1]
	}
	name = strings.TrimPrefix(name, "<get>")
	name = strings.TrimPrefix(name, "<set>")
	return name
}

// ParentID returns the identifier of the enclosing symbol (the identifier
// minus its last descriptor segment), or "" when the symbol is top-level.
func (p *ParsedSymbol) ParentID() string {
	if p.Local || len(p.Descriptors) < 2 {
		return ""
	}
	head := strings.Join([]string{p.Manager, p.Scheme, p.Package, p.Version}, " ")
	// Descriptor segments concatenate without a separator; only the file
	// path is slash-delimited.
	rest := strings.Join(p.Descriptors[:len(p.Descriptors)-1], "")
	chain := rest
	if p.Path != "" {
		path := p.Path
		if p.backtickPath {
			path = "`" + path + "`"
		}
		chain = path + "/" + rest
	}
	return head + " " + chain
}

// PackageID returns "name@version" for symbols with package identity, or "".
func (p *ParsedSymbol) PackageID() string {
	if p.Local || p.Package == "" || p.Package == "." {
		return ""
	}
	if p.Version == "" || p.Version == "." {
		return p.Package
	}
	return p.Package + "@" + p.Version
}

// SymbolName derives the display name for a symbol, preferring the
// producer-supplied display name when non-empty.
func SymbolName(id, displayName string) string {
	if displayName != "" {
		return displayName
	}
	return ParseSymbol(id).Name()
}

// IsLocalSymbol reports whether an identifier denotes a local symbol without
// a full parse.
func IsLocalSymbol(id string) bool {
	for _, tok := range strings.Fields(id) {
		if tok == "local" {
			return true
		}
	}
	return false
}

// ComposeMemberID builds the identifier of a member from its container's
// identifier, for qualified lookups of the form container#member.
func ComposeMemberID(containerID, member, sigil string) string {
	return containerID + member + sigil
}
