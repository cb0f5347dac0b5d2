package artifact

import "github.com/okian/sphere/internal/domain/features"

// Option configures Decode.
type Option func(*decodeOptions)

type decodeOptions struct {
	catalog *features.Catalog
}

// WithCatalog resolves schema versions against c instead of the built-in catalog.
func WithCatalog(c *features.Catalog) Option {
	return func(o *decodeOptions) {
		if c != nil {
			o.catalog = c
		}
	}
}
