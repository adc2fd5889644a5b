package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// NormalizePath trims and cleans a path and converts separators to '/'.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	return filepath.ToSlash(filepath.Clean(p))
}

// FileID returns the namespaced id for a file path.
func FileID(path string) string {
	return NamespaceFile.Prefix() + NormalizePath(path)
}

// FolderID returns the namespaced id for a folder.
func FolderID(key string) string {
	return NamespaceFolder.Prefix() + NormalizePath(key)
}

// ChunkID returns the namespaced id of the n-th chunk of a file.
func ChunkID(path string, n int) string {
	return fmt.Sprintf("%s%s#%d", NamespaceChunk.Prefix(), NormalizePath(path), n)
}

// SplitID separates a namespaced id into namespace and key.
func SplitID(id string) (Namespace, string, bool) {
	for _, ns := range Namespaces {
		if strings.HasPrefix(id, ns.Prefix()) {
			return ns, strings.TrimPrefix(id, ns.Prefix()), true
		}
	}
	return "", id, false
}

// QualifyID returns id in canonical form for ns. A bare key gets the
// prefix; an id carrying another namespace's prefix is an error.
func QualifyID(ns Namespace, id string) (string, error) {
	id = strings.TrimSpace(id)
	key := id
	if got, k, ok := SplitID(id); ok {
		if got != ns {
			return "", fmt.Errorf("id %q belongs to namespace %q, not %q", id, got, ns)
		}
		key = k
	}
	key = NormalizePath(key)
	if key == "" || key == "." {
		return "", fmt.Errorf("empty id")
	}
	return ns.Prefix() + key, nil
}

// NamespaceOf returns the namespace of id, defaulting to files.
func NamespaceOf(id string) Namespace {
	if ns, _, ok := SplitID(id); ok {
		return ns
	}
	return NamespaceFile
}
