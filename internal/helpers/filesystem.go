package helpers

import (
	"os"
	"path/filepath"
)

// ParentPath returns the directory that contains path
func ParentPath(path string) string {
	return filepath.Dir(filepath.Clean(path))
}

// CreateDirectories creates path and all of its missing parents
func CreateDirectories(path string) error {
	if path == "" || path == "." {
		return nil
	}
	return os.MkdirAll(path, 0755)
}

// CreateParentDirectories makes sure that the directory which will hold
// path exists
func CreateParentDirectories(path string) error {
	return CreateDirectories(ParentPath(path))
}

// Exists returns true if something (even a dangling symlink) is at path
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
