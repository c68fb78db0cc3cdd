package requests

import (
	"cmp"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Default permissions for seeded nodes
const (
	DefaultFilePerms = 0o644
	DefaultDirPerms  = 0o755
)

// Unmarshal decodes a manifest: a list of node entries in YAML or JSON.
// JSON is decoded as YAML, which it is a subset of, and then normalized back
// to JSON so every field is decoded by the same tags.
func Unmarshal(data []byte) ([]*NodeRequest, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if doc == nil {
		return nil, nil
	}
	normalized, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("normalizing manifest: %w", err)
	}

	var dtos []NodeRequestDTO
	if err := json.Unmarshal(normalized, &dtos); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	now := time.Now()
	reqs := make([]*NodeRequest, 0, len(dtos))
	for i, dto := range dtos {
		req, err := convertNodeDTO(dto, now)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %d: %w", i, err)
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// Conversion logic with defaults in the unmarshaling layer
func convertNodeDTO(dto NodeRequestDTO, now time.Time) (*NodeRequest, error) {
	p, err := cleanPath(dto.Path)
	if err != nil {
		return nil, err
	}

	perms := uint32(DefaultFilePerms)
	switch dto.Type {
	case FileNodeType:
	case DirNodeType:
		perms = DefaultDirPerms
		if len(dto.Sources) > 0 {
			return nil, fmt.Errorf("%s: directories take no sources", p)
		}
	default:
		return nil, fmt.Errorf("%s: unknown node type %q", p, dto.Type)
	}

	sources := sortSources(dto.Sources)
	for _, s := range sources {
		if s.Type == "" {
			return nil, fmt.Errorf("%s: source is missing its type", p)
		}
	}

	return &NodeRequest{
		ID:       valueOrDefault(dto.UUID, uuid.NewString()),
		Path:     p,
		Type:     dto.Type,
		Atime:    valueOrDefault(dto.Atime, now),
		Mtime:    valueOrDefault(dto.Mtime, now),
		Perms:    valueOrDefault(dto.Perms, perms) & 0o7777,
		OwnerUID: dto.OwnerUID,
		OwnerGID: dto.OwnerGID,
		Sources:  sources,
	}, nil
}

// cleanPath roots a manifest path at "/"
func cleanPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	p = path.Clean("/" + p)
	if p == "/" {
		return "", fmt.Errorf("the root cannot be seeded")
	}
	return p, nil
}

// sortSources orders sources by priority; unset priorities default to the
// array index and ties keep manifest order
func sortSources(in []SourceConfigDTO) []SourceConfigDTO {
	type ranked struct {
		prio int
		src  SourceConfigDTO
	}
	rs := make([]ranked, len(in))
	for i, s := range in {
		rs[i] = ranked{prio: valueOrDefault(s.Priority, i), src: s}
	}
	slices.SortStableFunc(rs, func(a, b ranked) int {
		return cmp.Compare(a.prio, b.prio)
	})

	out := make([]SourceConfigDTO, len(rs))
	for i, r := range rs {
		out[i] = r.src
	}
	return out
}

func valueOrDefault[T any](ptr *T, defaultVal T) T {
	if ptr != nil {
		return *ptr
	}
	return defaultVal
}
