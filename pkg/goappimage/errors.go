package goappimage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a file name is not contained in the AppImage.
var ErrNotFound = errors.New("file not found in the AppImage")

// FormatError is returned when a file is neither a type 1 nor a type 2 AppImage.
type FormatError struct {
	Path string
}

func (e *FormatError) Error() string {
	return "given path is NOT an AppImage: " + e.Path
}

// ReadError is returned when the contents of an AppImage cannot be read:
// the image is corrupt, uses an unsupported feature, or an entry cannot be
// inspected.
type ReadError struct {
	Path  string
	Entry string
	Err   error
}

func (e *ReadError) Error() string {
	if e.Entry != "" {
		return fmt.Sprintf("reading %s in %s: %v", e.Entry, e.Path, e.Err)
	}
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// ExtractionError is returned when an entry cannot be written to its target.
type ExtractionError struct {
	Entry  string
	Target string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extracting %s to %s: %v", e.Entry, e.Target, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SymlinkResolutionError is returned when a symlink cannot be followed
// inside the AppImage.
type SymlinkResolutionError struct {
	Entry    string
	Linkname string
	Reason   string
}

func (e *SymlinkResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve symlink %s -> %s: %s", e.Entry, e.Linkname, e.Reason)
}

// ErrClosed is returned when an AppImage is used after Close.
var ErrClosed = errors.New("AppImage is closed")

// ErrNoDesktopFile is returned by Desktop when the AppImage has no
// .desktop file in its root directory.
var ErrNoDesktopFile = errors.New("cannot find desktop file")
