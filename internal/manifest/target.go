package manifest

import "path"

// TargetKind classifies a build target.
type TargetKind int

const (
	LibTarget TargetKind = iota
	BinTarget
	ExampleTarget
	TestTarget
	BenchTarget
	BuildScriptTarget
)

func (k TargetKind) String() string {
	switch k {
	case LibTarget:
		return "lib"
	case BinTarget:
		return "bin"
	case ExampleTarget:
		return "example"
	case TestTarget:
		return "test"
	case BenchTarget:
		return "bench"
	case BuildScriptTarget:
		return "build-script"
	}
	return "unknown"
}

// Target is one resolved build target. Rel is the entry-point path relative
// to the manifest's directory, slash-separated; it is the explicit path from
// the declaration when given, else the kind's default.
type Target struct {
	Kind TargetKind
	Name string
	Rel  string
}

// defaultPath returns the conventional entry-point path for a kind.
// The library and build-script defaults are fixed; the named kinds
// place one file per target under the kind's directory.
func (k TargetKind) defaultPath(name string) string {
	switch k {
	case LibTarget:
		return "src/lib.rs"
	case BuildScriptTarget:
		return "build.rs"
	case BinTarget:
		return path.Join("src/bin", name+".rs")
	case ExampleTarget:
		return path.Join("examples", name+".rs")
	case TestTarget:
		return path.Join("tests", name+".rs")
	case BenchTarget:
		return path.Join("benches", name+".rs")
	}
	return ""
}
