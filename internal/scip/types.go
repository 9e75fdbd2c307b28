package scip

// SymbolKind classifies a symbol in the semantic index.
type SymbolKind string

const (
	KindClass       SymbolKind = "class"
	KindMethod      SymbolKind = "method"
	KindFunction    SymbolKind = "function"
	KindField       SymbolKind = "field"
	KindConstructor SymbolKind = "constructor"
	KindEnum        SymbolKind = "enum"
	KindMixin       SymbolKind = "mixin"
	KindExtension   SymbolKind = "extension"
	KindGetter      SymbolKind = "getter"
	KindSetter      SymbolKind = "setter"
	KindProperty    SymbolKind = "property"
	KindParameter   SymbolKind = "parameter"
	KindTypeAlias   SymbolKind = "typeAlias"
	KindVariable    SymbolKind = "variable"
	KindLocal       SymbolKind = "local"
	KindUnknown     SymbolKind = "unknown"
)

// PrimaryKinds are the kinds the `def` action considers definition-worthy.
var PrimaryKinds = map[SymbolKind]bool{
	KindClass:       true,
	KindMethod:      true,
	KindFunction:    true,
	KindField:       true,
	KindConstructor: true,
	KindEnum:        true,
	KindMixin:       true,
	KindExtension:   true,
	KindGetter:      true,
	KindSetter:      true,
	KindProperty:    true,
}

// KindPriority orders same-name matches for the `def` action. Lower is better.
var KindPriority = map[SymbolKind]int{
	KindClass:       0,
	KindEnum:        1,
	KindMixin:       2,
	KindExtension:   3,
	KindMethod:      4,
	KindFunction:    5,
	KindConstructor: 6,
	KindGetter:      7,
	KindSetter:      8,
	KindProperty:    9,
	KindField:       10,
}

// SymbolRole constants from the SCIP protocol.
const (
	RoleDefinition  int32 = 1
	RoleImport      int32 = 2
	RoleWriteAccess int32 = 4
	RoleReadAccess  int32 = 8
	RoleGenerated   int32 = 16
	RoleTest        int32 = 32
)

// Range is a 0-based half-open source range.
type Range struct {
	StartLine int32 `json:"startLine"`
	StartCol  int32 `json:"startCol"`
	EndLine   int32 `json:"endLine"`
	EndCol    int32 `json:"endCol"`
}

// Contains reports whether the position (line, col) lies inside the range.
func (r Range) Contains(line, col int32) bool {
	if line < r.StartLine || line > r.EndLine {
		return false
	}
	if line == r.StartLine && col < r.StartCol {
		return false
	}
	if line == r.EndLine && col >= r.EndCol {
		return false
	}
	return true
}

// Area approximates the extent of the range for innermost-enclosing tie breaks.
// Line span dominates; column span breaks same-line ties.
func (r Range) Area() int64 {
	return int64(r.EndLine-r.StartLine)*10000 + int64(r.EndCol-r.StartCol)
}

// RangeFromSlice decodes a SCIP range slice. Three elements means the range
// is on a single line: [line, startCol, endCol].
func RangeFromSlice(raw []int32) (Range, bool) {
	switch len(raw) {
	case 3:
		return Range{StartLine: raw[0], StartCol: raw[1], EndLine: raw[0], EndCol: raw[2]}, true
	case 4:
		return Range{StartLine: raw[0], StartCol: raw[1], EndLine: raw[2], EndCol: raw[3]}, true
	default:
		return Range{}, false
	}
}

// Occurrence is a single appearance of a symbol in a document.
type Occurrence struct {
	// File is the document path relative to the project root.
	File string `json:"file"`

	// Symbol is the SCIP symbol identifier.
	Symbol string `json:"symbol"`

	// Range is the occurrence location, 0-based.
	Range Range `json:"range"`

	// Roles is the SCIP roles bitmask. Bits other than Definition are
	// preserved but not interpreted by the engine.
	Roles int32 `json:"roles"`

	// EnclosingRange is the extent of the definition body, when known.
	EnclosingRange *Range `json:"enclosingRange,omitempty"`
}

// IsDefinition reports whether the occurrence defines its symbol.
func (o Occurrence) IsDefinition() bool {
	return o.Roles&RoleDefinition != 0
}

// Line returns the 1-based start line for external interfaces.
func (o Occurrence) Line() int {
	return int(o.Range.StartLine) + 1
}

// Relationship links a symbol to another symbol.
type Relationship struct {
	Symbol           string `json:"symbol"`
	IsReference      bool   `json:"isReference,omitempty"`
	IsImplementation bool   `json:"isImplementation,omitempty"`
	IsTypeDefinition bool   `json:"isTypeDefinition,omitempty"`
	IsDefinition     bool   `json:"isDefinition,omitempty"`
}

// SymbolInfo describes one symbol known to the index.
type SymbolInfo struct {
	// Symbol is the SCIP symbol identifier, globally unique.
	Symbol string `json:"symbol"`

	// Name is the bare display name, derived deterministically from
	// DisplayName when present, else from the identifier. Never contains
	// whitespace or SCIP sigils.
	Name string `json:"name"`

	// Kind is the symbol kind.
	Kind SymbolKind `json:"kind"`

	// DisplayName is the producer-supplied human-readable name, if any.
	DisplayName string `json:"displayName,omitempty"`

	// Documentation holds the doc comment lines.
	Documentation []string `json:"documentation,omitempty"`

	// Relationships are links to related symbols.
	Relationships []Relationship `json:"relationships,omitempty"`

	// File is the path of the document holding the defining occurrence.
	File string `json:"file,omitempty"`

	// Language is the language tag of that document.
	Language string `json:"language,omitempty"`
}

// Document is one source file's worth of index data.
type Document struct {
	// RelativePath is the path relative to the project root.
	RelativePath string `json:"relativePath"`

	// Language is the programming language tag.
	Language string `json:"language"`

	// Symbols are the symbols defined or described in this document.
	Symbols []*SymbolInfo `json:"symbols"`

	// Occurrences are all symbol occurrences in this document.
	Occurrences []Occurrence `json:"occurrences"`
}

// Metadata is index-level metadata from the SCIP producer.
type Metadata struct {
	Version     string
	ToolName    string
	ToolVersion string
	ProjectRoot string
}

// RawIndex is a decoded SCIP index prior to ingestion.
type RawIndex struct {
	Metadata  *Metadata
	Documents []*Document
}
