// Package discover locates the files that matter to dependency resolution:
// manifests, auxiliary cargo config files, and the lock file. One pass over
// the tree, no parsing; classification is purely by path.
package discover

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"

	"go.uber.org/zap"

	"stubtree/internal/manifest"
)

// DefaultLockfile is the conventional lock file location under the root.
const DefaultLockfile = "Cargo.lock"

// Result is the outcome of one scan. The slices are sets: no ordering is
// guaranteed and callers must not rely on any.
type Result struct {
	Manifests []string // relative paths of every Cargo.toml
	Configs   []string // relative paths of auxiliary config files
	Lockfile  string   // relative path of the lock file, "" when absent
	Dirs      []string // every visited directory, pruned subtrees excluded
}

// TraversalError reports an unreadable directory. It aborts the whole scan:
// a tree that cannot be fully walked cannot be proven minimal.
type TraversalError struct {
	Path string
	Err  error
}

func (e *TraversalError) Error() string {
	return fmt.Sprintf("traverse %s: %v", e.Path, e.Err)
}

func (e *TraversalError) Unwrap() error { return e.Err }

// Scanner walks a source tree and classifies entries.
type Scanner struct {
	log      *zap.Logger
	lockRel  string
	skipDirs map[string]struct{}
	skipRels map[string]struct{}
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLockfile overrides the lock file's expected relative path.
func WithLockfile(rel string) Option {
	return func(s *Scanner) {
		if rel != "" {
			s.lockRel = filepath.ToSlash(rel)
		}
	}
}

// WithSkipDirs replaces the set of directory names pruned during the walk.
func WithSkipDirs(names ...string) Option {
	return func(s *Scanner) {
		s.skipDirs = make(map[string]struct{}, len(names))
		for _, n := range names {
			s.skipDirs[n] = struct{}{}
		}
	}
}

// WithSkipRel prunes an exact root-relative directory, typically the
// skeleton output dir when it lives inside the tree being scanned.
func WithSkipRel(rels ...string) Option {
	return func(s *Scanner) {
		for _, r := range rels {
			if r != "" {
				s.skipRels[filepath.ToSlash(r)] = struct{}{}
			}
		}
	}
}

// NewScanner builds a Scanner. By default it prunes .git and target
// directories; build output never holds manifests.
func NewScanner(log *zap.Logger, opts ...Option) *Scanner {
	s := &Scanner{
		log:     log,
		lockRel: DefaultLockfile,
		skipDirs: map[string]struct{}{
			".git":   {},
			"target": {},
		},
		skipRels: map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Scan walks root once and returns every manifest and config file path plus
// the lock file if present. Unreadable directories are fatal
// (*TraversalError); unreadable individual entries are logged and skipped.
func (s *Scanner) Scan(root string) (*Result, error) {
	res := &Result{}
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && !d.IsDir() {
				s.log.Warn("skipping unreadable entry",
					zap.String("path", p), zap.Error(err))
				return nil
			}
			return &TraversalError{Path: p, Err: err}
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return &TraversalError{Path: p, Err: rerr}
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel == "." {
				return nil
			}
			if _, skip := s.skipDirs[d.Name()]; skip {
				return fs.SkipDir
			}
			if _, skip := s.skipRels[rel]; skip {
				return fs.SkipDir
			}
			res.Dirs = append(res.Dirs, rel)
			return nil
		}

		switch {
		case d.Name() == manifest.FileName:
			res.Manifests = append(res.Manifests, rel)
		case rel == s.lockRel:
			res.Lockfile = rel
		case isConfigPath(rel):
			res.Configs = append(res.Configs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug("scan complete",
		zap.Int("manifests", len(res.Manifests)),
		zap.Int("configs", len(res.Configs)),
		zap.Bool("lockfile", res.Lockfile != ""))
	return res, nil
}

// isConfigPath recognizes auxiliary config files at any depth: cargo config
// files inside a .cargo directory and toolchain pins anywhere.
func isConfigPath(rel string) bool {
	switch path.Base(rel) {
	case "rust-toolchain", "rust-toolchain.toml":
		return true
	case "config", "config.toml":
		return path.Base(path.Dir(rel)) == ".cargo"
	}
	return false
}
