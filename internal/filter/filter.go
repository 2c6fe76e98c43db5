// Package filter selects the minimal verbatim subtree of a source tree. The
// membership index is built first, in full, and passed in as a value; the
// traversal then only tests membership and never discovers anything on its
// own. That split is what makes the output immune to unrelated files and
// directories appearing anywhere in the tree.
package filter

import (
	"io/fs"
	"path"
	"path/filepath"
	"sort"

	"stubtree/internal/discover"
)

// InterestingSet is the complete set of files that must survive the filter
// unmodified, plus the derived ancestor-directory index used for pruning.
type InterestingSet struct {
	files map[string]struct{}
	dirs  map[string]struct{}
}

// NewSet builds an InterestingSet from slash-relative file paths.
func NewSet(paths ...string) InterestingSet {
	s := InterestingSet{
		files: make(map[string]struct{}, len(paths)),
		dirs:  make(map[string]struct{}),
	}
	for _, p := range paths {
		s.add(p)
	}
	return s
}

func (s InterestingSet) add(rel string) {
	rel = path.Clean(filepath.ToSlash(rel))
	if rel == "." || rel == "" {
		return
	}
	s.files[rel] = struct{}{}
	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		s.dirs[dir] = struct{}{}
	}
}

// HasFile reports whether rel is exactly a member.
func (s InterestingSet) HasFile(rel string) bool {
	_, ok := s.files[rel]
	return ok
}

// HasDir reports whether rel is a proper ancestor of some member.
func (s InterestingSet) HasDir(rel string) bool {
	_, ok := s.dirs[rel]
	return ok
}

// Len is the number of member files.
func (s InterestingSet) Len() int { return len(s.files) }

// Files returns the members, sorted.
func (s InterestingSet) Files() []string {
	out := make([]string, 0, len(s.files))
	for f := range s.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Entry is one surviving tree entry, relative to the root.
type Entry struct {
	Rel string
	Dir bool
}

// Apply traverses root and keeps a directory iff it is an ancestor of a
// member and a file iff it is a member; everything else is pruned without
// descending. The result is bounded by the set: at most Len() files plus
// their ancestor directories, regardless of what else the tree contains.
func Apply(root string, set InterestingSet) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return &discover.TraversalError{Path: p, Err: err}
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return &discover.TraversalError{Path: p, Err: rerr}
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if !set.HasDir(rel) {
				return fs.SkipDir
			}
			entries = append(entries, Entry{Rel: rel, Dir: true})
			return nil
		}
		if set.HasFile(rel) {
			entries = append(entries, Entry{Rel: rel})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}
