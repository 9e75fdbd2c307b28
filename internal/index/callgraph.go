package index

import (
	"cci/internal/scip"
)

// buildCallEdgesLocked derives call-graph edges for one document. A
// definition with an enclosing range calls every non-definition occurrence
// positioned inside that range; overlapping ranges resolve to the innermost
// enclosing definition by smallest area.
func (ix *Index) buildCallEdgesLocked(path string, occs []scip.Occurrence) {
	type defRange struct {
		symbol string
		rng    scip.Range
	}
	var defs []defRange
	for _, occ := range occs {
		if occ.IsDefinition() && occ.EnclosingRange != nil {
			defs = append(defs, defRange{symbol: occ.Symbol, rng: *occ.EnclosingRange})
		}
	}
	if len(defs) == 0 {
		return
	}

	seen := make(map[[2]string]bool)
	var edges [][2]string
	for _, occ := range occs {
		if occ.IsDefinition() {
			continue
		}
		caller := ""
		var best int64
		for _, d := range defs {
			if !d.rng.Contains(occ.Range.StartLine, occ.Range.StartCol) {
				continue
			}
			if caller == "" || d.rng.Area() < best {
				caller = d.symbol
				best = d.rng.Area()
			}
		}
		if caller == "" || caller == occ.Symbol {
			continue
		}
		edge := [2]string{caller, occ.Symbol}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		edges = append(edges, edge)
		ix.calls[caller] = appendUnique(ix.calls[caller], occ.Symbol)
		ix.callers[occ.Symbol] = appendUnique(ix.callers[occ.Symbol], caller)
	}
	if len(edges) > 0 {
		ix.fileCallEdges[path] = edges
	}
}

// CallEdges returns every (caller, callee) pair in the index.
func (ix *Index) CallEdges() [][2]string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out [][2]string
	for _, edges := range ix.fileCallEdges {
		out = append(out, edges...)
	}
	return out
}
