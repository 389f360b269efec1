package goappimage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
)

// inodeImage gives random access to the inodes of a type 2 AppImage by
// path. The root is ".".
type inodeImage interface {
	stat(name string) (inodeStat, error)
	// children returns the names of the direct children of a directory,
	// without their parent prefix.
	children(name string) ([]string, error)
	readlink(name string) (string, error)
	open(name string) (io.ReadCloser, error)
	close() error
}

type inodeStat struct {
	typ  FileType
	size int64
	mode fs.FileMode
}

type type2Traversal struct {
	path string
	img  inodeImage
	// pending holds the paths still to visit, the top of the stack last.
	pending []string

	cur     string
	curStat inodeStat
	curLink string
	started bool
	done    bool
}

func newType2Traversal(path string, img inodeImage) (*type2Traversal, error) {
	st, err := img.stat(".")
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	if st.typ != TypeDirectory {
		return nil, &ReadError{Path: path, Err: fmt.Errorf("image root is a %s", st.typ)}
	}
	t := &type2Traversal{path: path, img: img}
	if err = t.pushChildren("."); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *type2Traversal) pushChildren(dir string) error {
	names, err := t.img.children(dir)
	if err != nil {
		return &ReadError{Path: t.path, Entry: dir, Err: err}
	}
	for i := len(names) - 1; i >= 0; i-- {
		if dir == "." {
			t.pending = append(t.pending, names[i])
		} else {
			t.pending = append(t.pending, path.Join(dir, names[i]))
		}
	}
	return nil
}

func (t *type2Traversal) next() error {
	if t.done {
		return nil
	}
	if t.started && t.curStat.typ == TypeDirectory {
		if err := t.pushChildren(t.cur); err != nil {
			return err
		}
	}
	t.started = true
	if len(t.pending) == 0 {
		t.done = true
		t.cur, t.curStat, t.curLink = "", inodeStat{}, ""
		return nil
	}
	name := t.pending[len(t.pending)-1]
	t.pending = t.pending[:len(t.pending)-1]

	st, err := t.img.stat(name)
	if err != nil {
		return &ReadError{Path: t.path, Entry: name, Err: err}
	}
	var link string
	if st.typ == TypeSymlink {
		if link, err = t.img.readlink(name); err != nil {
			return &ReadError{Path: t.path, Entry: name, Err: err}
		}
	}
	t.cur, t.curStat, t.curLink = name, st, link
	return nil
}

func (t *type2Traversal) completed() bool {
	return t.done
}

func (t *type2Traversal) name() string {
	return t.cur
}

func (t *type2Traversal) fileType() FileType {
	if t.cur == "" {
		return TypeOther
	}
	return t.curStat.typ
}

func (t *type2Traversal) size() int64 {
	return t.curStat.size
}

func (t *type2Traversal) linkname() string {
	return t.curLink
}

func (t *type2Traversal) extract(target string) error {
	if t.cur == "" {
		return &ExtractionError{Target: target, Err: errNoEntry}
	}
	var err error
	switch t.curStat.typ {
	case TypeDirectory:
		err = makeDir(target)
	case TypeSymlink:
		err = makeSymlink(target, t.curLink)
	case TypeRegular:
		var rc io.ReadCloser
		if rc, err = t.img.open(t.cur); err == nil {
			err = writeFile(target, rc)
			rc.Close()
		}
	default:
		err = fmt.Errorf("unsupported file mode %v", t.curStat.mode)
	}
	if err != nil {
		return &ExtractionError{Entry: t.cur, Target: target, Err: err}
	}
	return nil
}

func (t *type2Traversal) open() (io.ReadCloser, error) {
	if t.cur == "" {
		return nil, &ReadError{Path: t.path, Err: errNoEntry}
	}
	if t.curStat.typ != TypeRegular {
		return nil, &ReadError{Path: t.path, Entry: t.cur, Err: fmt.Errorf("not a regular file (%s)", t.curStat.typ)}
	}
	rc, err := t.img.open(t.cur)
	if err != nil {
		return nil, &ReadError{Path: t.path, Entry: t.cur, Err: err}
	}
	return rc, nil
}

// close releases the traversal. The image is shared between traversals
// and stays open.
func (t *type2Traversal) close() error {
	t.pending = nil
	t.cur = ""
	return nil
}

// type2Backend reads type 2 AppImages, which carry a squashfs image
// after the ELF runtime.
type type2Backend struct {
	path string
	img  inodeImage
}

func (b *type2Backend) traverse() (traversal, error) {
	return newType2Traversal(b.path, b.img)
}

func (b *type2Backend) lookup(name string) (*entry, error) {
	st, err := b.img.stat(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, &ReadError{Path: b.path, Entry: name, Err: err}
	}
	e := &entry{name: name, typ: st.typ, size: st.size}
	switch st.typ {
	case TypeSymlink:
		if e.linkname, err = b.img.readlink(name); err != nil {
			return nil, &ReadError{Path: b.path, Entry: name, Err: err}
		}
	case TypeRegular:
		e.open = func() (io.ReadCloser, error) { return b.img.open(name) }
	}
	return e, nil
}

func (b *type2Backend) close() error {
	return b.img.close()
}
