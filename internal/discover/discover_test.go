package discover

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap/zaptest"
)

// writeTree lays out files under root, creating parents as needed.
func writeTree(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root,
		"Cargo.toml",
		"Cargo.lock",
		"src/main.rs",
		".cargo/config.toml",
		"rust-toolchain.toml",
		"crates/a/Cargo.toml",
		"crates/a/.cargo/config",
		"crates/a/src/lib.rs",
		"crates/deep/nested/member/Cargo.toml",
		"target/debug/Cargo.toml", // build output, pruned
		".git/config",             // pruned
		"docs/config.toml",        // not in a .cargo dir
	)

	res, err := NewScanner(zaptest.NewLogger(t)).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	sort.Strings(res.Manifests)
	sort.Strings(res.Configs)

	wantManifests := []string{
		"Cargo.toml",
		"crates/a/Cargo.toml",
		"crates/deep/nested/member/Cargo.toml",
	}
	if diff := cmp.Diff(wantManifests, res.Manifests); diff != "" {
		t.Errorf("manifests mismatch (-want +got):\n%s", diff)
	}

	wantConfigs := []string{
		".cargo/config.toml",
		"crates/a/.cargo/config",
		"rust-toolchain.toml",
	}
	if diff := cmp.Diff(wantConfigs, res.Configs); diff != "" {
		t.Errorf("configs mismatch (-want +got):\n%s", diff)
	}

	if res.Lockfile != "Cargo.lock" {
		t.Errorf("lockfile = %q, want Cargo.lock", res.Lockfile)
	}

	sort.Strings(res.Dirs)
	wantDirs := []string{
		".cargo",
		"crates",
		"crates/a",
		"crates/a/.cargo",
		"crates/a/src",
		"crates/deep",
		"crates/deep/nested",
		"crates/deep/nested/member",
		"docs",
		"src",
	}
	if diff := cmp.Diff(wantDirs, res.Dirs); diff != "" {
		t.Errorf("dirs mismatch (-want +got):\n%s", diff)
	}
}

func TestScan_NoLockfile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "Cargo.toml")

	res, err := NewScanner(zaptest.NewLogger(t)).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.Lockfile != "" {
		t.Errorf("lockfile = %q, want empty", res.Lockfile)
	}
}

func TestScan_ExplicitLockfile(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "Cargo.toml", "Cargo.lock", "pins/deps.lock")

	res, err := NewScanner(zaptest.NewLogger(t), WithLockfile("pins/deps.lock")).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if res.Lockfile != "pins/deps.lock" {
		t.Errorf("lockfile = %q, want pins/deps.lock", res.Lockfile)
	}
}

func TestScan_SkipRel(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, "Cargo.toml", "skeleton/Cargo.toml", "skeleton/src/lib.rs")

	res, err := NewScanner(zaptest.NewLogger(t), WithSkipRel("skeleton")).Scan(root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(res.Manifests) != 1 || res.Manifests[0] != "Cargo.toml" {
		t.Errorf("skipped dir leaked into results: %v", res.Manifests)
	}
}

func TestIsConfigPath(t *testing.T) {
	cases := []struct {
		rel  string
		want bool
	}{
		{".cargo/config", true},
		{".cargo/config.toml", true},
		{"crates/a/.cargo/config.toml", true},
		{"rust-toolchain", true},
		{"sub/rust-toolchain.toml", true},
		{"docs/config.toml", false},
		{".cargo/other.toml", false},
		{"config.toml", false},
	}
	for _, tc := range cases {
		if got := isConfigPath(tc.rel); got != tc.want {
			t.Errorf("isConfigPath(%q) = %v, want %v", tc.rel, got, tc.want)
		}
	}
}
