package index

import (
	"os"
	"path/filepath"
	"strings"

	"cci/internal/scip"
)

// GetSource reads the source text of a symbol's definition, sliced by its
// enclosing range. Without an enclosing range the defining line is returned.
// A missing file on disk yields "", false, never an error.
func (ix *Index) GetSource(id string) (string, bool) {
	def := ix.FindDefinition(id)
	if def == nil {
		return "", false
	}
	lines, ok := ix.readLines(def.File)
	if !ok {
		return "", false
	}
	rng := def.Range
	if def.EnclosingRange != nil {
		rng = *def.EnclosingRange
	}
	start, end := int(rng.StartLine), int(rng.EndLine)
	if start < 0 || start >= len(lines) {
		return "", false
	}
	if end >= len(lines) {
		end = len(lines) - 1
	}
	return strings.Join(lines[start:end+1], "\n"), true
}

// ContextLines is the default number of surrounding lines for GetContext.
const ContextLines = 3

// GetContext reads an occurrence's line plus N surrounding lines from disk.
func (ix *Index) GetContext(occ scip.Occurrence, n int) (string, bool) {
	if n <= 0 {
		n = ContextLines
	}
	lines, ok := ix.readLines(occ.File)
	if !ok {
		return "", false
	}
	line := int(occ.Range.StartLine)
	if line < 0 || line >= len(lines) {
		return "", false
	}
	start := line - n
	if start < 0 {
		start = 0
	}
	end := line + n
	if end >= len(lines) {
		end = len(lines) - 1
	}
	return strings.Join(lines[start:end+1], "\n"), true
}

// ReadFile reads a file under the index root. Grep uses this so candidate
// reads resolve against the same root as the index.
func (ix *Index) ReadFile(rel string) ([]byte, error) {
	return os.ReadFile(filepath.Join(ix.root, rel))
}

func (ix *Index) readLines(rel string) ([]string, bool) {
	if rel == "" {
		return nil, false
	}
	data, err := ix.ReadFile(rel)
	if err != nil {
		return nil, false
	}
	return strings.Split(string(data), "\n"), true
}
