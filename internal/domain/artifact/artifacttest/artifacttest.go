// Package artifacttest ships small, valid artifacts for tests.
package artifacttest

import (
	"embed"
	"io/fs"
	"path"

	"github.com/okian/sphere/internal/domain/artifact"
)

//go:embed fixtures
var fixtures embed.FS

// FS exposes the fixtures as <kind>/descriptor.yaml and <kind>/model.json.
func FS() fs.FS {
	sub, err := fs.Sub(fixtures, "fixtures")
	if err != nil {
		panic(err)
	}
	return sub
}

// Files returns the raw descriptor and model bytes for kind.
func Files(kind artifact.Kind) (descriptor, params []byte) {
	var err error
	if descriptor, err = fixtures.ReadFile(path.Join("fixtures", string(kind), "descriptor.yaml")); err != nil {
		panic(err)
	}
	if params, err = fixtures.ReadFile(path.Join("fixtures", string(kind), "model.json")); err != nil {
		panic(err)
	}
	return descriptor, params
}

// Must decodes the fixture for kind, optionally renaming its version.
func Must(kind artifact.Kind, version ...string) *artifact.Artifact {
	desc, params := Files(kind)
	if len(version) > 0 {
		desc = Retag(desc, version[0])
	}
	a, err := artifact.Decode(desc, params)
	if err != nil {
		panic(err)
	}
	return a
}

// Retag rewrites the artifact_version of a descriptor.
func Retag(descriptor []byte, version string) []byte {
	d, err := artifact.ParseDescriptor(descriptor)
	if err != nil {
		panic(err)
	}
	d.ArtifactVersion = version
	out, err := d.Marshal()
	if err != nil {
		panic(err)
	}
	return out
}
