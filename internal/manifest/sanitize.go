package manifest

import "errors"

// IdentityKind distinguishes a real package manifest from a pure workspace
// aggregator. It is a tagged variant rather than a "key present" check so
// downstream switches stay exhaustive.
type IdentityKind int

const (
	// PackageIdentity marks a manifest that declares a package of its own.
	PackageIdentity IdentityKind = iota
	// WorkspaceIdentity marks an aggregator manifest with only a
	// [workspace] table; it produces no build targets.
	WorkspaceIdentity
)

// Identity is the package identity of a manifest. Name is empty for
// workspace aggregators.
type Identity struct {
	Kind IdentityKind
	Name string
}

// Sanitized is the cache-stable reduction of a manifest: only fields that
// influence dependency resolution or target shape survive, plus the fully
// resolved target list. Targets is empty for workspace aggregators.
type Sanitized struct {
	Rel      string
	Identity Identity
	Doc      map[string]any
	Targets  []Target
}

// Field allowlists. Anything not listed here is dropped unconditionally,
// which is what makes the output stable under edits to description text,
// author lists, profiles and the rest.
var (
	packageKeep   = []string{"name", "version", "edition", "rust-version", "resolver", "links", "build"}
	workspaceKeep = []string{"members", "exclude", "default-members", "resolver", "dependencies"}
	targetKeep    = []string{"name", "path"}
	depTableKeys  = []string{"dependencies", "dev-dependencies", "build-dependencies"}
	verbatimKeys  = []string{"features", "patch", "replace"}
)

// declKinds maps explicit target-declaration keys to their kind.
var declKinds = []struct {
	key  string
	kind TargetKind
}{
	{"bin", BinTarget},
	{"example", ExampleTarget},
	{"test", TestTarget},
	{"bench", BenchTarget},
}

// Sanitize reduces a parsed manifest to its cache-stable subset.
// It is deterministic and idempotent: sanitizing the result again yields an
// equal Sanitized, and edits confined to dropped fields never change it.
// A manifest with neither [package] nor [workspace] is malformed.
func Sanitize(f *File) (*Sanitized, error) {
	pkg, hasPkg := table(f.Doc["package"])
	ws, hasWS := table(f.Doc["workspace"])
	if !hasPkg && !hasWS {
		return nil, &FormatError{Path: f.Rel, Err: errors.New("no [package] or [workspace] table")}
	}

	out := map[string]any{}
	var id Identity

	if hasPkg {
		name, _ := pkg["name"].(string)
		if name == "" {
			return nil, &FormatError{Path: f.Rel, Err: errors.New("[package] has no name")}
		}
		id = Identity{Kind: PackageIdentity, Name: name}
		out["package"] = filterTable(pkg, packageKeep)
	} else {
		id = Identity{Kind: WorkspaceIdentity}
	}
	if hasWS {
		out["workspace"] = filterTable(ws, workspaceKeep)
	}

	// Dependency tables are copied verbatim field-for-field: version,
	// features, optional, path, git/registry references all change what
	// gets resolved, so none of them may be normalized away.
	for _, k := range depTableKeys {
		if t, ok := table(f.Doc[k]); ok {
			out[k] = copyTable(t)
		}
	}
	for _, k := range verbatimKeys {
		if t, ok := table(f.Doc[k]); ok {
			out[k] = copyTable(t)
		}
	}

	// Platform-specific dependency tables: [target.<cfg>.dependencies] etc.
	// Only the dependency tables under each cfg survive.
	if tgt, ok := table(f.Doc["target"]); ok {
		kept := map[string]any{}
		for cfg, v := range tgt {
			ct, ok := table(v)
			if !ok {
				continue
			}
			sub := map[string]any{}
			for _, k := range depTableKeys {
				if d, ok := table(ct[k]); ok {
					sub[k] = copyTable(d)
				}
			}
			if len(sub) > 0 {
				kept[cfg] = sub
			}
		}
		if len(kept) > 0 {
			out["target"] = kept
		}
	}

	// Target declarations keep kind, name and explicit path only.
	if lib, ok := table(f.Doc["lib"]); ok {
		out["lib"] = filterTable(lib, targetKeep)
	}
	for _, dk := range declKinds {
		arr := tableArray(f.Doc[dk.key])
		if len(arr) == 0 {
			continue
		}
		kept := make([]map[string]any, 0, len(arr))
		for _, decl := range arr {
			kept = append(kept, filterTable(decl, targetKeep))
		}
		out[dk.key] = kept
	}

	s := &Sanitized{Rel: f.Rel, Identity: id, Doc: out}
	s.Targets = resolveTargets(id, out)
	return s, nil
}

// AsFile re-wraps the sanitized document as a File, mainly so tests can
// assert sanitize∘sanitize = sanitize.
func (s *Sanitized) AsFile() *File {
	return &File{Rel: s.Rel, Doc: s.Doc}
}

// resolveTargets computes the full target list for a sanitized document.
// The library and build-script targets are always present for a package
// manifest, explicit declaration or not: the build tool assumes both by
// convention, so the skeleton must satisfy them. Aggregators get nothing.
func resolveTargets(id Identity, doc map[string]any) []Target {
	if id.Kind != PackageIdentity {
		return nil
	}

	var targets []Target

	libName, libPath := id.Name, ""
	if lib, ok := table(doc["lib"]); ok {
		if n, _ := lib["name"].(string); n != "" {
			libName = n
		}
		libPath, _ = lib["path"].(string)
	}
	if libPath == "" {
		libPath = LibTarget.defaultPath(libName)
	}
	targets = append(targets, Target{Kind: LibTarget, Name: libName, Rel: libPath})

	buildPath := BuildScriptTarget.defaultPath(id.Name)
	if pkg, ok := table(doc["package"]); ok {
		if b, _ := pkg["build"].(string); b != "" {
			buildPath = b
		}
	}
	targets = append(targets, Target{Kind: BuildScriptTarget, Name: id.Name, Rel: buildPath})

	for _, dk := range declKinds {
		for _, decl := range tableArray(doc[dk.key]) {
			name, _ := decl["name"].(string)
			if name == "" {
				// A nameless declaration cannot resolve a default path.
				continue
			}
			rel, _ := decl["path"].(string)
			if rel == "" {
				rel = dk.kind.defaultPath(name)
			}
			targets = append(targets, Target{Kind: dk.kind, Name: name, Rel: rel})
		}
	}
	return targets
}

func table(v any) (map[string]any, bool) {
	t, ok := v.(map[string]any)
	return t, ok
}

// tableArray normalizes the two shapes the decoder produces for an array of
// tables.
func tableArray(v any) []map[string]any {
	switch arr := v.(type) {
	case []map[string]any:
		return arr
	case []any:
		out := make([]map[string]any, 0, len(arr))
		for _, e := range arr {
			if t, ok := table(e); ok {
				out = append(out, t)
			}
		}
		return out
	}
	return nil
}

// filterTable deep-copies only the listed keys.
func filterTable(t map[string]any, keys []string) map[string]any {
	out := map[string]any{}
	for _, k := range keys {
		if v, ok := t[k]; ok {
			out[k] = copyValue(v)
		}
	}
	return out
}

func copyTable(t map[string]any) map[string]any {
	out := make(map[string]any, len(t))
	for k, v := range t {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return copyTable(x)
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, e := range x {
			out[i] = copyTable(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = copyValue(e)
		}
		return out
	}
	return v
}
