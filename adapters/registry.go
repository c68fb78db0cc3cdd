package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/puzpuzpuz/xsync/v4"
)

// Registry maps a source "type" key to its provider
type Registry struct {
	providers *xsync.Map[string, SourceProvider]
}

func NewRegistry() *Registry {
	return &Registry{providers: xsync.NewMap[string, SourceProvider]()}
}

// Register ties a provider to a "type" key. The first registration for a
// key wins.
func (r *Registry) Register(sourceType string, provider SourceProvider) {
	r.providers.LoadOrStore(sourceType, provider)
}

func (r *Registry) GetProvider(sourceType string) (SourceProvider, error) {
	p, ok := r.providers.Load(sourceType)
	if !ok {
		return nil, fmt.Errorf("no provider for source type %q", sourceType)
	}
	return p, nil
}

// NewSource picks the provider from the "type" field of raw and hands it the
// whole config
func (r *Registry) NewSource(raw []byte) (Source, error) {
	var meta struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, err
	}
	if meta.Type == "" {
		return nil, fmt.Errorf("source is missing its type")
	}
	p, err := r.GetProvider(meta.Type)
	if err != nil {
		return nil, err
	}
	return p.NewSource(raw)
}
