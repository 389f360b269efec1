package goappimage

import (
	"fmt"
	"io"
)

// FileIterator walks the entries of an AppImage once, in the order they
// are stored: record order for type 1, depth-first for type 2.
//
//	it, err := ai.Files()
//	if err != nil {
//		return err
//	}
//	defer it.Close()
//	for it.Next() {
//		fmt.Println(it.Name())
//	}
//	return it.Err()
type FileIterator struct {
	ai  *AppImage
	t   traversal
	err error
}

// Next moves to the next entry and reports whether there is one.
// The first call moves onto the first entry.
func (it *FileIterator) Next() bool {
	if it.t == nil || it.err != nil || it.t.completed() {
		return false
	}
	if err := it.t.next(); err != nil {
		it.err = err
		return false
	}
	return !it.t.completed()
}

// Done reports whether the iterator has passed the last entry. Once true
// it stays true.
func (it *FileIterator) Done() bool {
	return it.t == nil || it.t.completed()
}

// Err returns the error that stopped the iteration, if any.
func (it *FileIterator) Err() error {
	return it.err
}

// Name is the path of the current entry relative to the AppImage root,
// without a leading "./". Empty once Done.
func (it *FileIterator) Name() string {
	if it.t == nil {
		return ""
	}
	return it.t.name()
}

func (it *FileIterator) Type() FileType {
	if it.t == nil {
		return TypeOther
	}
	return it.t.fileType()
}

// Size is the size in bytes of a regular file entry.
func (it *FileIterator) Size() int64 {
	if it.t == nil {
		return 0
	}
	return it.t.size()
}

// Linkname is the stored target of a symlink entry.
func (it *FileIterator) Linkname() string {
	if it.t == nil {
		return ""
	}
	return it.t.linkname()
}

// Read returns the contents of the current entry. Symlinks are followed
// inside the AppImage; links that are absolute, leave the AppImage, loop
// or dangle fail with a *SymlinkResolutionError.
//
// The returned reader is only valid while the AppImage is open.
func (it *FileIterator) Read() (io.ReadCloser, error) {
	if it.t == nil || it.t.completed() || it.t.name() == "" {
		return nil, &ReadError{Path: it.ai.Path, Err: errNoEntry}
	}
	name := it.t.name()
	switch it.t.fileType() {
	case TypeRegular:
		return it.t.open()
	case TypeSymlink:
		e, err := resolveSymlink(it.ai.b, name, it.t.linkname())
		if err != nil {
			return nil, err
		}
		return it.ai.openEntry(name, e)
	case TypeDirectory:
		return nil, &ReadError{Path: it.ai.Path, Entry: name, Err: errIsDir}
	default:
		return nil, &ReadError{Path: it.ai.Path, Entry: name, Err: fmt.Errorf("cannot read a %s", it.t.fileType())}
	}
}

// ExtractTo writes the current entry to target as it is stored: a symlink
// is written as a symlink, not as the file it points to. Missing parent
// directories of target are created.
func (it *FileIterator) ExtractTo(target string) error {
	if it.t == nil {
		return &ExtractionError{Target: target, Err: errNoEntry}
	}
	return it.t.extract(target)
}

// Close releases the iterator. The AppImage stays open.
func (it *FileIterator) Close() error {
	if it.t == nil {
		return nil
	}
	t := it.t
	it.t = nil
	delete(it.ai.sessions, it)
	return t.close()
}
