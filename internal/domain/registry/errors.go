package registry

import "errors"

// Registry errors.
var (
	ErrModelNotLoaded = errors.New("model not loaded")
	ErrKindMismatch   = errors.New("artifact kind does not match")
	ErrNoSource       = errors.New("registry has no artifact source")
	// ErrArtifactTooLarge is returned instead of a truncated artifact.
	ErrArtifactTooLarge = errors.New("artifact object too large")
)
