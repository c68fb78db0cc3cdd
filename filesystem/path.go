package filesystem

import (
	"slices"
	"strings"
)

const delimiter = "/"

// splitParent splits an absolute path into its parent path and final name.
// ok is false when no parent/name can be derived: relative paths, the root
// itself, empty components, or a "." / ".." component anywhere in the path.
func splitParent(path string) (parent, name string, ok bool) {
	if !strings.HasPrefix(path, delimiter) || path == delimiter {
		return "", "", false
	}
	if strings.Contains(path, delimiter+delimiter) {
		return "", "", false
	}
	if slices.ContainsFunc(strings.Split(path[1:], delimiter), isAlias) {
		return "", "", false
	}
	idx := strings.LastIndex(path, delimiter)
	parent, name = path[:idx], path[idx+1:]
	if parent == "" {
		parent = delimiter
	}
	if name == "" {
		return "", "", false
	}
	return parent, name, true
}

// joinPath appends a child name to a directory path
func joinPath(dir, name string) string {
	if dir == delimiter {
		return delimiter + name
	}
	return dir + delimiter + name
}

// isAlias reports whether name is one of the synthetic "." / ".." entries
func isAlias(name string) bool {
	return name == "." || name == ".."
}

// isWithin reports whether path equals root or lies below it
func isWithin(path, root string) bool {
	if path == root || root == delimiter {
		return true
	}
	return strings.HasPrefix(path, root+delimiter)
}
