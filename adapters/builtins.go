package adapters

import "net/http"

// NOTE: If build bloat becomes a concern for unused sources
// look into build tags i.e. +build !nohttp

type BuiltInSourceType = string

const (
	HTTPSourceType   BuiltInSourceType = "http"
	InlineSourceType BuiltInSourceType = "inline"
)

// RegisterBuiltins registers all built-in sources by default
// or only the specific ones if keys are provided
func RegisterBuiltins(r *Registry, sources ...BuiltInSourceType) {
	if len(sources) == 0 {
		sources = append(sources, HTTPSourceType, InlineSourceType)
	}

	for _, key := range sources {
		switch key {
		case HTTPSourceType:
			RegisterHTTP(r, http.DefaultClient)
		case InlineSourceType:
			RegisterInline(r)
		}
	}
}
