// Package adapters resolves the content sources named in a seed manifest.
// Each source type registers a [SourceProvider] that decodes its raw JSON
// config into a [Source].
package adapters

import "context"

// Source produces the full content of one seeded file
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// SourceProvider builds a Source from its raw JSON config
type SourceProvider interface {
	NewSource(raw []byte) (Source, error)
}

// ProviderFunc adapts a plain function to [SourceProvider]
type ProviderFunc func(raw []byte) (Source, error)

func (f ProviderFunc) NewSource(raw []byte) (Source, error) {
	return f(raw)
}
