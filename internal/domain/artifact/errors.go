package artifact

import "errors"

// Artifact validation errors.
var (
	ErrMissingDescriptor   = errors.New("artifact descriptor missing")
	ErrMissingModel        = errors.New("artifact model parameters missing")
	ErrUnknownKind         = errors.New("unknown model kind")
	ErrSchemaNotRegistered = errors.New("schema version has no feature schema")
	ErrInvalidArtifact     = errors.New("invalid artifact")
	ErrBaselineMismatch    = errors.New("declared baseline does not match the reference prediction")
)
