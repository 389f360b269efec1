package goappimage

import (
	"errors"
	"io"
	"io/fs"
)

// FileType is the kind of an entry inside an AppImage.
type FileType int

const (
	TypeRegular FileType = iota
	TypeDirectory
	TypeSymlink
	TypeOther
)

func (t FileType) String() string {
	switch t {
	case TypeRegular:
		return "file"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	default:
		return "other"
	}
}

func fileTypeOf(mode fs.FileMode) FileType {
	switch {
	case mode.IsRegular():
		return TypeRegular
	case mode.IsDir():
		return TypeDirectory
	case mode&fs.ModeSymlink != 0:
		return TypeSymlink
	default:
		return TypeOther
	}
}

var (
	errNoEntry = errors.New("no current entry")
	errIsDir   = errors.New("is a directory")
	errNotDir  = errors.New("not a directory")
)

// traversal is a single pass cursor over the entries of an AppImage.
// Once completed it stays completed; a new traversal is needed to walk
// the entries again.
type traversal interface {
	// next moves to the following entry. It is a no-op once completed.
	next() error
	completed() bool
	// name is the path of the current entry without a leading "./",
	// or "" when completed.
	name() string
	fileType() FileType
	size() int64
	linkname() string
	// extract materializes the current entry at target, without
	// following symlinks.
	extract(target string) error
	// open returns the contents of the current regular file.
	open() (io.ReadCloser, error)
	close() error
}

// entry is an entry looked up by name, outside of any traversal.
type entry struct {
	name     string
	typ      FileType
	size     int64
	linkname string
	open     func() (io.ReadCloser, error)
}

// backend is an opened AppImage of one type. It hands out traversals and
// looks up entries by name.
type backend interface {
	traverse() (traversal, error)
	lookup(name string) (*entry, error)
	close() error
}
