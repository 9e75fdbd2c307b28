package scip

import (
	"fmt"
	"os"
	"strings"

	cerr "cci/internal/errors"

	scippb "github.com/sourcegraph/scip/bindings/go/scip"
	"google.golang.org/protobuf/proto"
)

// LoadIndex reads and decodes a serialized SCIP index from disk.
func LoadIndex(path string) (*RawIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, cerr.Wrap(cerr.NotFound, fmt.Sprintf("SCIP index not found at %s", path), err)
		}
		return nil, cerr.Wrap(cerr.IO, fmt.Sprintf("failed to read SCIP index from %s", path), err)
	}
	return DecodeIndex(data)
}

// DecodeIndex decodes SCIP protobuf bytes into the engine's structural form.
func DecodeIndex(data []byte) (*RawIndex, error) {
	var index scippb.Index
	if err := proto.Unmarshal(data, &index); err != nil {
		return nil, cerr.Wrap(cerr.IO, "failed to parse SCIP index", err)
	}
	return FromProto(&index), nil
}

// FromProto converts a decoded protobuf index into the structural form the
// semantic index ingests. The engine is agnostic to protobuf beyond this
// boundary.
func FromProto(index *scippb.Index) *RawIndex {
	raw := &RawIndex{
		Documents: make([]*Document, 0, len(index.Documents)),
	}
	if index.Metadata != nil {
		raw.Metadata = &Metadata{
			Version:     fmt.Sprintf("%d", index.Metadata.Version),
			ProjectRoot: index.Metadata.ProjectRoot,
		}
		if index.Metadata.ToolInfo != nil {
			raw.Metadata.ToolName = index.Metadata.ToolInfo.Name
			raw.Metadata.ToolVersion = index.Metadata.ToolInfo.Version
		}
	}
	for _, doc := range index.Documents {
		raw.Documents = append(raw.Documents, convertDocument(doc))
	}
	return raw
}

func convertDocument(doc *scippb.Document) *Document {
	out := &Document{
		RelativePath: doc.RelativePath,
		Language:     doc.Language,
		Symbols:      make([]*SymbolInfo, 0, len(doc.Symbols)),
		Occurrences:  make([]Occurrence, 0, len(doc.Occurrences)),
	}

	for _, sym := range doc.Symbols {
		info := &SymbolInfo{
			Symbol:        sym.Symbol,
			DisplayName:   sym.DisplayName,
			Documentation: sym.Documentation,
			Language:      doc.Language,
		}
		info.Name = SymbolName(sym.Symbol, sym.DisplayName)
		info.Kind = mapProtoKind(sym.Kind.String())
		if info.Kind == KindUnknown {
			info.Kind = ParseSymbol(sym.Symbol).Kind()
		}
		for _, rel := range sym.Relationships {
			info.Relationships = append(info.Relationships, Relationship{
				Symbol:           rel.Symbol,
				IsReference:      rel.IsReference,
				IsImplementation: rel.IsImplementation,
				IsTypeDefinition: rel.IsTypeDefinition,
				IsDefinition:     rel.IsDefinition,
			})
		}
		out.Symbols = append(out.Symbols, info)
	}

	for _, occ := range doc.Occurrences {
		r, ok := RangeFromSlice(occ.Range)
		if !ok {
			continue
		}
		converted := Occurrence{
			File:   doc.RelativePath,
			Symbol: occ.Symbol,
			Range:  r,
			Roles:  occ.SymbolRoles,
		}
		if er, ok := RangeFromSlice(occ.EnclosingRange); ok {
			converted.EnclosingRange = &er
		}
		out.Occurrences = append(out.Occurrences, converted)
	}

	return out
}

// mapProtoKind translates a SCIP protobuf kind name to the engine's kind
// enum. Matching is by name so new protocol kinds degrade to unknown instead
// of breaking the build.
func mapProtoKind(name string) SymbolKind {
	switch strings.ToLower(name) {
	case "class":
		return KindClass
	case "method", "methodspecification", "staticmethod":
		return KindMethod
	case "function":
		return KindFunction
	case "field", "staticfield":
		return KindField
	case "constructor":
		return KindConstructor
	case "enum", "enummember":
		return KindEnum
	case "mixin":
		return KindMixin
	case "extension":
		return KindExtension
	case "getter":
		return KindGetter
	case "setter":
		return KindSetter
	case "property", "staticproperty":
		return KindProperty
	case "parameter":
		return KindParameter
	case "typealias", "type":
		return KindTypeAlias
	case "variable", "staticvariable", "constant":
		return KindVariable
	default:
		return KindUnknown
	}
}
