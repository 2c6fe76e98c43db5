// Package skeleton orchestrates the pipeline: discovery feeds manifest
// sanitization/stub synthesis on one side and the source filter on the
// other; the two sides run concurrently and join at the assembler.
package skeleton

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"stubtree/internal/assemble"
	"stubtree/internal/config"
	"stubtree/internal/discover"
	"stubtree/internal/filter"
	"stubtree/internal/manifest"
	"stubtree/internal/stub"
)

// Builder runs the whole synthesis pipeline for one source tree.
type Builder struct {
	cfg  *config.Config
	log  *zap.Logger
	root string
	out  string
}

// NewBuilder prepares a pipeline for the tree rooted at root. A relative
// output path is resolved against root.
func NewBuilder(root string, cfg *config.Config, log *zap.Logger) *Builder {
	out := cfg.Output
	if !filepath.IsAbs(out) {
		out = filepath.Join(root, out)
	}
	return &Builder{cfg: cfg, log: log, root: root, out: out}
}

// Output is the resolved output directory.
func (b *Builder) Output() string { return b.out }

// Report summarizes one run. SkipErrors is non-nil only under the "skip"
// malformed-manifest policy; it aggregates the per-manifest failures without
// failing the run.
type Report struct {
	Manifests  int
	Stubs      int
	Verbatim   int
	Skipped    []string
	SkipErrors error
}

// unit is the synthesized output of one manifest. Each slot is written by
// exactly one goroutine; the slice itself is never resized concurrently.
type unit struct {
	spec    assemble.FileSpec
	stubs   []stub.Stub
	skipErr error
}

// Run executes discovery, then fans sanitization/synthesis out per manifest
// concurrently with filter selection, and finally assembles the output tree.
func (b *Builder) Run(ctx context.Context) (*Report, error) {
	scan, err := b.scan()
	if err != nil {
		return nil, err
	}

	// Phase 1 of the filter: the interesting set is complete before any
	// selection runs. Selection only ever tests membership against it.
	interesting := make([]string, 0, len(scan.Configs)+1)
	interesting = append(interesting, scan.Configs...)
	if scan.Lockfile != "" {
		interesting = append(interesting, scan.Lockfile)
	}
	set := filter.NewSet(interesting...)

	units := make([]unit, len(scan.Manifests))
	var entries []filter.Entry

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var ferr error
		entries, ferr = filter.Apply(b.root, set)
		return ferr
	})
	for i, rel := range scan.Manifests {
		i, rel := i, rel
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return b.synthesize(rel, &units[i])
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := assemble.Inputs{Skeleton: entries}
	rep := &Report{Manifests: len(scan.Manifests), Verbatim: len(entries)}
	for i := range units {
		u := &units[i]
		if u.skipErr != nil {
			rep.Skipped = append(rep.Skipped, scan.Manifests[i])
			rep.SkipErrors = multierr.Append(rep.SkipErrors, u.skipErr)
			continue
		}
		in.Writes = append(in.Writes, u.spec)
		for _, st := range u.stubs {
			in.Writes = append(in.Writes, assemble.FileSpec{Rel: st.Rel, Data: st.Body})
			rep.Stubs++
		}
	}

	if err := assemble.New(b.log).Build(b.root, b.out, in); err != nil {
		return nil, err
	}

	b.log.Info("skeleton built",
		zap.String("root", b.root),
		zap.String("output", b.out),
		zap.Int("manifests", rep.Manifests),
		zap.Int("stubs", rep.Stubs),
		zap.Int("verbatim", rep.Verbatim),
		zap.Int("skipped", len(rep.Skipped)))
	return rep, nil
}

// scan runs discovery, pruning the output directory when it sits inside the
// tree so a previous skeleton is never rediscovered as input.
func (b *Builder) scan() (*discover.Result, error) {
	opts := []discover.Option{discover.WithLockfile(b.cfg.Lockfile)}
	if rel, err := filepath.Rel(b.root, b.out); err == nil &&
		rel != "." && !strings.HasPrefix(rel, "..") {
		opts = append(opts, discover.WithSkipRel(filepath.ToSlash(rel)))
	}
	return discover.NewScanner(b.log, opts...).Scan(b.root)
}

// synthesize parses, sanitizes and stubs one manifest into its unit slot.
// Under the skip policy a format error is recorded instead of returned.
func (b *Builder) synthesize(rel string, u *unit) error {
	f, err := manifest.Parse(b.root, rel)
	var s *manifest.Sanitized
	if err == nil {
		s, err = manifest.Sanitize(f)
	}
	if err != nil {
		var fe *manifest.FormatError
		if errors.As(err, &fe) && b.cfg.OnMalformed == config.OnMalformedSkip {
			b.log.Warn("skipping malformed manifest",
				zap.String("path", rel), zap.Error(err))
			u.skipErr = err
			return nil
		}
		return err
	}

	data, err := s.Encode()
	if err != nil {
		return fmt.Errorf("serialize %s: %w", rel, err)
	}
	u.spec = assemble.FileSpec{Rel: rel, Data: data}
	u.stubs = stub.Synthesize(s)
	return nil
}
