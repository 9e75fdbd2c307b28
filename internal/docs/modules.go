package docs

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	cerr "cci/internal/errors"
)

// ModuleDefs maps module names to the folder prefixes they own. When
// supplied (from the file named by docs.modules_file) auto-detection is
// skipped.
type ModuleDefs map[string][]string

// LoadModuleDefs reads explicit module definitions. A missing file returns
// nil definitions, which enables auto-detection.
func LoadModuleDefs(path string) (ModuleDefs, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, cerr.Wrap(cerr.IO, "failed to read module definitions", err)
	}
	var defs ModuleDefs
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, cerr.Wrap(cerr.ManifestCorrupt, "failed to parse module definitions", err)
	}
	return defs, nil
}

// ModuleFor determines the module a folder belongs to. Explicit definitions
// win by longest prefix; otherwise the name after a features/ or modules/
// segment is used, then the second-level directory, then "main".
func ModuleFor(folder string, defs ModuleDefs) string {
	if len(defs) > 0 {
		bestModule, bestLen := "", -1
		names := make([]string, 0, len(defs))
		for name := range defs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			for _, prefix := range defs[name] {
				p := strings.TrimSuffix(prefix, "/")
				if (folder == p || strings.HasPrefix(folder, p+"/")) && len(p) > bestLen {
					bestModule, bestLen = name, len(p)
				}
			}
		}
		if bestModule != "" {
			return bestModule
		}
	}

	segs := strings.Split(folder, "/")
	for i, seg := range segs {
		if (seg == "features" || seg == "modules") && i+1 < len(segs) {
			return segs[i+1]
		}
	}
	if len(segs) >= 2 {
		return segs[1]
	}
	return "main"
}

// GroupByModule buckets folders into modules.
func GroupByModule(folders []string, defs ModuleDefs) map[string][]string {
	out := make(map[string][]string)
	for _, folder := range folders {
		m := ModuleFor(folder, defs)
		out[m] = append(out[m], folder)
	}
	for m := range out {
		sort.Strings(out[m])
	}
	return out
}
