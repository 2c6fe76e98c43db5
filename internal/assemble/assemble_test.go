package assemble

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stubtree/internal/filter"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
}

// listFiles returns every file under dir, slash-relative and sorted.
func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	var out []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			rel, _ := filepath.Rel(dir, p)
			out = append(out, filepath.ToSlash(rel))
		}
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func TestBuild_Composition(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"Cargo.lock":          "lock-bytes",
		".cargo/config.toml":  "[build]\njobs = 4\n",
		"src/main.rs":         "real code, not copied",
	})
	out := filepath.Join(t.TempDir(), "skeleton")

	in := Inputs{
		Skeleton: []filter.Entry{
			{Rel: ".cargo", Dir: true},
			{Rel: ".cargo/config.toml"},
			{Rel: "Cargo.lock"},
		},
		Writes: []FileSpec{
			{Rel: "Cargo.toml", Data: []byte("[package]\nname = \"foo\"\n")},
			{Rel: "src/lib.rs", Data: []byte("fn main() {}\n")},
			{Rel: "build.rs", Data: []byte("fn main() {}\n")},
		},
	}
	require.NoError(t, New(zaptest.NewLogger(t)).Build(root, out, in))

	want := []string{".cargo/config.toml", "Cargo.lock", "Cargo.toml", "build.rs", "src/lib.rs"}
	if diff := cmp.Diff(want, listFiles(t, out)); diff != "" {
		t.Errorf("output tree mismatch (-want +got):\n%s", diff)
	}

	lock, err := os.ReadFile(filepath.Join(out, "Cargo.lock"))
	require.NoError(t, err)
	require.Equal(t, "lock-bytes", string(lock), "verbatim copy changed bytes")
}

func TestBuild_FullyRegenerates(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"Cargo.lock": "v2"})
	out := filepath.Join(t.TempDir(), "skeleton")

	// A stale previous skeleton must vanish entirely.
	writeTree(t, out, map[string]string{"stale/leftover.rs": "old"})

	in := Inputs{
		Skeleton: []filter.Entry{{Rel: "Cargo.lock"}},
	}
	require.NoError(t, New(zaptest.NewLogger(t)).Build(root, out, in))

	want := []string{"Cargo.lock"}
	if diff := cmp.Diff(want, listFiles(t, out)); diff != "" {
		t.Errorf("stale output survived (-want +got):\n%s", diff)
	}
}

func TestBuild_WriteOverridesCopy(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"rust-toolchain": "stable"})
	out := filepath.Join(t.TempDir(), "skeleton")

	in := Inputs{
		Skeleton: []filter.Entry{{Rel: "rust-toolchain"}},
		Writes:   []FileSpec{{Rel: "rust-toolchain", Data: []byte("overlay")}},
	}
	require.NoError(t, New(zaptest.NewLogger(t)).Build(root, out, in))

	got, err := os.ReadFile(filepath.Join(out, "rust-toolchain"))
	require.NoError(t, err)
	require.Equal(t, "overlay", string(got), "later overlay must win")
}

func TestBuild_PathCollision(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(t.TempDir(), "skeleton")

	in := Inputs{
		Writes: []FileSpec{
			{Rel: "crates/a/src/lib.rs", Data: []byte("fn main() {}\n")},
			{Rel: "crates/a/src/lib.rs", Data: []byte("fn main() {}\n")},
		},
	}
	err := New(zaptest.NewLogger(t)).Build(root, out, in)

	var ce *PathCollisionError
	require.ErrorAs(t, err, &ce)
	require.Equal(t, "crates/a/src/lib.rs", ce.Rel)

	// Collision detection runs before any write.
	_, statErr := os.Stat(out)
	require.True(t, errors.Is(statErr, fs.ErrNotExist), "output created despite collision")
}

func TestBuild_RejectsEscapingPath(t *testing.T) {
	root := t.TempDir()
	outParent := t.TempDir()
	out := filepath.Join(outParent, "skeleton")

	in := Inputs{
		Writes: []FileSpec{
			{Rel: "../../escape.rs", Data: []byte("fn main() {}\n")},
		},
	}
	err := New(zaptest.NewLogger(t)).Build(root, out, in)
	require.Error(t, err)
	require.Contains(t, err.Error(), "../../escape.rs")

	// Nothing may be written, inside the tree or out.
	_, statErr := os.Stat(out)
	require.True(t, errors.Is(statErr, fs.ErrNotExist))
	_, statErr = os.Stat(filepath.Join(outParent, "..", "escape.rs"))
	require.True(t, errors.Is(statErr, fs.ErrNotExist))
}

func TestBuild_NoStagingLeftovers(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"Cargo.lock": "l"})
	outParent := t.TempDir()
	out := filepath.Join(outParent, "skeleton")

	in := Inputs{Skeleton: []filter.Entry{{Rel: "Cargo.lock"}}}
	require.NoError(t, New(zaptest.NewLogger(t)).Build(root, out, in))

	matches, err := filepath.Glob(out + ".stage-*")
	require.NoError(t, err)
	require.Empty(t, matches, "staging directory left behind")
}
