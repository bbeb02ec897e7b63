package remote

import (
	"fmt"
	"strings"
)

// Object stores have no folders. The S3 and MinIO backends model them as key
// prefixes: a folder id is the prefix ending in "/" (materialized by an empty
// marker object) and a file id is the full key.

// FolderKey returns the id of folder name under parent.
func FolderKey(parentID, name string) string {
	return parentID + name + "/"
}

// FileKey returns the id of file name under parent.
func FileKey(parentID, name string) string {
	return parentID + name
}

// ChildName strips the parent prefix (and a trailing slash) from key.
func ChildName(parentID, key string) string {
	return strings.TrimSuffix(strings.TrimPrefix(key, parentID), "/")
}

// BaseName returns the last path element of a key.
func BaseName(key string) string {
	key = strings.TrimSuffix(key, "/")
	if i := strings.LastIndex(key, "/"); i >= 0 {
		return key[i+1:]
	}
	return key
}

// ValidateName rejects names that cannot be a single key segment.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.Contains(name, "/") {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

// ValidateParent checks that parentID is the root or a folder prefix.
func ValidateParent(parentID string) error {
	if parentID != RootID && !strings.HasSuffix(parentID, "/") {
		return fmt.Errorf("%w: %q is not a folder", ErrNotFound, parentID)
	}
	return nil
}
