// Package assemble writes the final skeleton tree. The output directory is
// regenerated from scratch on every run: everything is staged next to the
// destination, then swapped into place, so a failed run never leaves a
// half-written skeleton behind.
package assemble

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"stubtree/internal/filter"
)

// FileSpec is one synthesized file: a sanitized manifest or a target stub.
type FileSpec struct {
	Rel  string
	Data []byte
}

// Inputs is the explicit composition of the output tree, in overlay order:
// the filtered verbatim survivors (interesting files, lock file included,
// plus their directory skeleton), then the synthesized writes. Writes take
// precedence over a verbatim copy at the same path. Nothing outside Inputs
// ever appears in the output.
type Inputs struct {
	Skeleton []filter.Entry
	Writes   []FileSpec
}

// PathCollisionError reports two synthesized outputs claiming one path,
// which means the input manifests themselves are malformed.
type PathCollisionError struct {
	Rel string
}

func (e *PathCollisionError) Error() string {
	return fmt.Sprintf("two synthesized files resolve to %s", e.Rel)
}

// Assembler builds output trees.
type Assembler struct {
	log *zap.Logger
}

func New(log *zap.Logger) *Assembler {
	return &Assembler{log: log}
}

// Build stages the composition under a temporary sibling of out, then
// replaces out wholesale. Collisions are detected before anything touches
// the disk.
func (a *Assembler) Build(root, out string, in Inputs) error {
	seen := make(map[string]struct{}, len(in.Writes))
	for _, w := range in.Writes {
		// An explicit target path like "../../x" must never place a
		// stub outside the output tree.
		if !filepath.IsLocal(filepath.FromSlash(w.Rel)) {
			return fmt.Errorf("synthesized path %s escapes the output tree", w.Rel)
		}
		if _, dup := seen[w.Rel]; dup {
			return &PathCollisionError{Rel: w.Rel}
		}
		seen[w.Rel] = struct{}{}
	}

	stage := fmt.Sprintf("%s.stage-%s", out, uuid.NewString()[:8])
	if err := os.MkdirAll(stage, 0o755); err != nil {
		return fmt.Errorf("create staging dir %s: %w", stage, err)
	}
	staged := false
	defer func() {
		if !staged {
			os.RemoveAll(stage)
		}
	}()

	for _, e := range in.Skeleton {
		dst := filepath.Join(stage, filepath.FromSlash(e.Rel))
		if e.Dir {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return fmt.Errorf("create dir %s: %w", e.Rel, err)
			}
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(e.Rel)))
		if err != nil {
			return fmt.Errorf("read %s: %w", e.Rel, err)
		}
		if err := writeFile(dst, data); err != nil {
			return fmt.Errorf("copy %s: %w", e.Rel, err)
		}
	}

	for _, w := range in.Writes {
		dst := filepath.Join(stage, filepath.FromSlash(w.Rel))
		if err := writeFile(dst, w.Data); err != nil {
			return fmt.Errorf("write %s: %w", w.Rel, err)
		}
	}

	if err := os.RemoveAll(out); err != nil {
		return fmt.Errorf("clear output %s: %w", out, err)
	}
	if err := os.Rename(stage, out); err != nil {
		return fmt.Errorf("move staged output into place: %w", err)
	}
	staged = true

	a.log.Debug("skeleton assembled",
		zap.String("output", out),
		zap.Int("verbatim", len(in.Skeleton)),
		zap.Int("synthesized", len(in.Writes)))
	return nil
}

// writeFile writes data at dst, creating parents first. Directory-exists
// ordering is per path only; there is no ordering across unrelated paths.
func writeFile(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
