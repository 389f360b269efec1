package goappimage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/probonopd/libappimage-go/internal/iso9660"
)

// sequentialReader reads the records of a type 1 AppImage one after another.
type sequentialReader interface {
	Next() (*iso9660.Header, error)
	// Data returns the contents of the current record.
	Data() *io.SectionReader
	Close() error
}

type type1Traversal struct {
	path string
	rdr  sequentialReader
	hdr  *iso9660.Header
	done bool
}

func newType1Traversal(path string, rdr sequentialReader) *type1Traversal {
	return &type1Traversal{path: path, rdr: rdr}
}

func (t *type1Traversal) next() error {
	if t.done {
		return nil
	}
	for {
		hdr, err := t.rdr.Next()
		if errors.Is(err, io.EOF) {
			t.done = true
			t.hdr = nil
			return nil
		}
		if err != nil {
			return &ReadError{Path: t.path, Err: err}
		}
		// The image root is reported as "." and is not an entry
		if hdr.Name == "." {
			continue
		}
		t.hdr = hdr
		return nil
	}
}

func (t *type1Traversal) completed() bool {
	return t.done
}

func (t *type1Traversal) name() string {
	if t.done || t.hdr == nil {
		return ""
	}
	return strings.TrimPrefix(t.hdr.Name, "./")
}

func (t *type1Traversal) fileType() FileType {
	if t.hdr == nil {
		return TypeOther
	}
	return fileTypeOf(t.hdr.Mode)
}

func (t *type1Traversal) size() int64 {
	if t.hdr == nil {
		return 0
	}
	return t.hdr.Size
}

func (t *type1Traversal) linkname() string {
	if t.hdr == nil {
		return ""
	}
	return t.hdr.Linkname
}

func (t *type1Traversal) extract(target string) error {
	if t.done || t.hdr == nil {
		return &ExtractionError{Target: target, Err: errNoEntry}
	}
	var err error
	switch t.fileType() {
	case TypeDirectory:
		err = makeDir(target)
	case TypeSymlink:
		err = makeSymlink(target, t.hdr.Linkname)
	case TypeRegular:
		err = writeFile(target, t.rdr.Data())
	default:
		err = fmt.Errorf("unsupported file mode %v", t.hdr.Mode)
	}
	if err != nil {
		return &ExtractionError{Entry: t.name(), Target: target, Err: err}
	}
	return nil
}

func (t *type1Traversal) open() (io.ReadCloser, error) {
	if t.done || t.hdr == nil {
		return nil, &ReadError{Path: t.path, Err: errNoEntry}
	}
	if t.fileType() != TypeRegular {
		return nil, &ReadError{Path: t.path, Entry: t.name(), Err: fmt.Errorf("not a regular file (%s)", t.fileType())}
	}
	return io.NopCloser(t.rdr.Data()), nil
}

func (t *type1Traversal) close() error {
	t.hdr = nil
	return t.rdr.Close()
}

// type1Backend reads type 1 AppImages, which are ISO 9660 images.
// Every traversal gets its own reader over the shared file.
type type1Backend struct {
	path string
	f    *os.File
}

func (b *type1Backend) traverse() (traversal, error) {
	rdr, err := iso9660.NewReader(b.f)
	if err != nil {
		return nil, &ReadError{Path: b.path, Err: err}
	}
	return newType1Traversal(b.path, rdr), nil
}

// lookup walks a fresh traversal until it finds name, since a type 1
// image can only be read sequentially.
func (b *type1Backend) lookup(name string) (*entry, error) {
	t, err := b.traverse()
	if err != nil {
		return nil, err
	}
	defer t.close()
	for {
		if err = t.next(); err != nil {
			return nil, err
		}
		if t.completed() {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		if t.name() != name {
			continue
		}
		e := &entry{
			name:     name,
			typ:      t.fileType(),
			size:     t.size(),
			linkname: t.linkname(),
		}
		if e.typ == TypeRegular {
			data := t.(*type1Traversal).rdr.Data()
			e.open = func() (io.ReadCloser, error) {
				return io.NopCloser(io.NewSectionReader(data, 0, data.Size())), nil
			}
		}
		return e, nil
	}
}

func (b *type1Backend) close() error {
	return b.f.Close()
}
