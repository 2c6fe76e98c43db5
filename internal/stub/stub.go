// Package stub emits inert placeholder sources for build targets. One fixed
// body serves every target kind; it compiles standalone as either a library
// or a binary root, which is all a dependency-resolution pass needs.
package stub

import (
	"path"

	"stubtree/internal/manifest"
)

// Body is the placeholder source written for every target.
const Body = "fn main() {}\n"

// Stub is one placeholder file, addressed relative to the tree root.
type Stub struct {
	Rel  string
	Body []byte
}

// Synthesize returns one stub per resolved target of a sanitized manifest,
// placed relative to the tree root. Workspace aggregators declare no targets
// of their own and produce nothing.
func Synthesize(s *manifest.Sanitized) []Stub {
	switch s.Identity.Kind {
	case manifest.WorkspaceIdentity:
		return nil
	case manifest.PackageIdentity:
	}

	dir := path.Dir(s.Rel)
	stubs := make([]Stub, 0, len(s.Targets))
	for _, t := range s.Targets {
		stubs = append(stubs, Stub{
			Rel:  path.Join(dir, t.Rel),
			Body: []byte(Body),
		})
	}
	return stubs
}
