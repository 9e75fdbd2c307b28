// Package docs implements the incremental documentation pipeline: structure
// hashing, the persisted manifest, dirty tracking with SCC-aware scheduling,
// and the scip:// link transformer.
package docs

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"

	"cci/internal/index"
	"cci/internal/scip"
)

// StructureHash hashes the doc-relevant projection of a symbol set: ids and
// kinds, display names, doc-comment short hashes, and implements / typedef /
// defines relationships. References are excluded as too noisy, and local
// symbols are skipped. The projection is sorted before hashing so the result
// is independent of declaration order.
func StructureHash(symbols []*scip.SymbolInfo) string {
	var parts []string
	for _, sym := range symbols {
		if scip.IsLocalSymbol(sym.Symbol) {
			continue
		}
		parts = append(parts, fmt.Sprintf("symbol:%s:%s", sym.Symbol, sym.Kind))
		if sym.DisplayName != "" {
			parts = append(parts, fmt.Sprintf("sig:%s:%s", sym.Symbol, sym.DisplayName))
		}
		if len(sym.Documentation) > 0 {
			parts = append(parts, fmt.Sprintf("doc:%s:%s", sym.Symbol, shortHash(sym.Documentation)))
		}
		for _, rel := range sym.Relationships {
			switch {
			case rel.IsImplementation:
				parts = append(parts, fmt.Sprintf("rel:%s:%s:implements", sym.Symbol, rel.Symbol))
			case rel.IsTypeDefinition:
				parts = append(parts, fmt.Sprintf("rel:%s:%s:typedef", sym.Symbol, rel.Symbol))
			case rel.IsDefinition:
				parts = append(parts, fmt.Sprintf("rel:%s:%s:defines", sym.Symbol, rel.Symbol))
			}
		}
	}
	sort.Strings(parts)

	h := md5.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// shortHash condenses doc lines into a short stable token.
func shortHash(lines []string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(lines, "\n")))
}

// ContentHash hashes arbitrary bytes for doc-output comparison.
func ContentHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// FolderHashes computes the structure hash of every folder in the index,
// grouping each file's defining symbols under its directory.
func FolderHashes(ix *index.Index) map[string]string {
	byFolder := make(map[string][]*scip.SymbolInfo)
	for _, file := range ix.Documents() {
		folder := folderOf(file)
		byFolder[folder] = append(byFolder[folder], ix.SymbolsInFile(file)...)
	}
	out := make(map[string]string, len(byFolder))
	for folder, symbols := range byFolder {
		out[folder] = StructureHash(symbols)
	}
	return out
}

func folderOf(file string) string {
	dir := path.Dir(file)
	if dir == "." {
		return ""
	}
	return dir
}
