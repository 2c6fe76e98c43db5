// Package manifest parses Cargo manifests and reduces them to the subset of
// fields that can affect dependency resolution or build-target shape. The
// sanitized form is what gets written into the skeleton tree, so any field
// kept here is a field whose edits invalidate the dependency cache.
package manifest

import (
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file name recognized during discovery.
const FileName = "Cargo.toml"

// File is one discovered manifest: its path relative to the tree root
// (slash-separated) and the raw decoded document tree.
type File struct {
	Rel string
	Doc map[string]any
}

// FormatError reports a single unparseable or structurally invalid manifest.
// It is scoped to that manifest; callers decide whether it aborts the run.
type FormatError struct {
	Path string
	Err  error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("manifest %s: %v", e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// Parse reads and decodes the manifest at rel under root.
// A read failure is an I/O error; a decode failure is a *FormatError.
func Parse(root, rel string) (*File, error) {
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", rel, err)
	}
	return Decode(rel, data)
}

// Decode decodes manifest bytes without touching the filesystem.
func Decode(rel string, data []byte) (*File, error) {
	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, &FormatError{Path: rel, Err: err}
	}
	return &File{Rel: rel, Doc: doc}, nil
}

// Dir returns the manifest's directory relative to the tree root
// ("." for a root manifest).
func (f *File) Dir() string {
	return path.Dir(f.Rel)
}
