// Package requests decodes seed manifests and applies them to a filesystem
// before it is mounted.
package requests

import (
	"encoding/json"
	"time"
)

// NodeType is the "type" field of a manifest entry
type NodeType string

const (
	FileNodeType NodeType = "file"
	DirNodeType  NodeType = "dir"
)

// NodeRequestDTO is the wire form of one manifest entry
type NodeRequestDTO struct {
	Path     string     `json:"path"`
	Type     NodeType   `json:"type"`
	UUID     *string    `json:"uuid,omitempty"`  // Optional request id used in logs
	Atime    *time.Time `json:"atime,omitempty"` // Last Accessed at (Default current time)
	Mtime    *time.Time `json:"mtime,omitempty"` // Last Modified at (Default current time)
	Perms    *uint32    `json:"perms,omitempty"` // i.e. 0755
	OwnerUID *uint32    `json:"owner_uid,omitempty"`
	OwnerGID *uint32    `json:"owner_gid,omitempty"`

	// Sources is only read for files. Each entry must carry a "type" and
	// the fields of that source type (see the adapters package).
	Sources []SourceConfigDTO `json:"sources,omitempty"`
}

// SourceConfigDTO keeps the static source fields next to the raw config the
// adapter registry decodes
type SourceConfigDTO struct {
	Type     string `json:"type"`
	Priority *int   `json:"priority,omitempty"` // Lower number = higher priority, defaults to array index

	Raw json.RawMessage `json:"-"`
}

func (s *SourceConfigDTO) UnmarshalJSON(data []byte) error {
	type plain SourceConfigDTO
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*s = SourceConfigDTO(p)
	s.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// NodeRequest is a manifest entry with defaults applied
type NodeRequest struct {
	ID       string
	Path     string
	Type     NodeType
	Atime    time.Time
	Mtime    time.Time
	Perms    uint32
	OwnerUID *uint32
	OwnerGID *uint32
	Sources  []SourceConfigDTO // ordered by priority
}
