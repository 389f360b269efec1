// Package goappimage reads the files inside type 1 and type 2 AppImages
// without mounting or unpacking them.
package goappimage

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/probonopd/libappimage-go/internal/helpers"
)

// AppImage is an opened AppImage file.
// It is not safe for concurrent use.
type AppImage struct {
	Path string

	format Format
	opts   *options
	b      backend
	// initial is the traversal set up by Open, handed to the first Files call.
	initial  traversal
	sessions map[*FileIterator]struct{}
	closed   bool
}

// Open opens the AppImage at path. It returns a *FormatError if path is
// neither a type 1 nor a type 2 AppImage and a *ReadError if its contents
// cannot be read.
func Open(path string, opts ...Option) (*AppImage, error) {
	o := newOptions(opts)
	format := DetectFormat(path)
	if format == FormatUnknown {
		return nil, &FormatError{Path: path}
	}
	o.logf("Opening %s as %s AppImage", path, format)

	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Path: path, Err: err}
	}
	var b backend
	switch format {
	case Format1:
		b = &type1Backend{path: path, f: f}
	case Format2:
		img, err := newSquashfsImage(f)
		if err != nil {
			f.Close()
			return nil, &ReadError{Path: path, Err: err}
		}
		b = &type2Backend{path: path, img: img}
	}
	return newAppImage(path, format, b, o)
}

// newAppImage prepares the first traversal of b. b is closed on error.
func newAppImage(path string, format Format, b backend, o *options) (*AppImage, error) {
	t, err := b.traverse()
	if err != nil {
		b.close()
		return nil, err
	}
	return &AppImage{
		Path:     path,
		format:   format,
		opts:     o,
		b:        b,
		initial:  t,
		sessions: make(map[*FileIterator]struct{}),
	}, nil
}

// Format is the type of the AppImage, Format1 or Format2.
func (ai *AppImage) Format() Format {
	return ai.format
}

// Files returns a new iterator over all entries of the AppImage.
//
// Every call starts a new pass over the AppImage, so iterators are
// independent of each other. The first call reuses the pass prepared by
// Open; later calls reparse the image.
func (ai *AppImage) Files() (*FileIterator, error) {
	if ai.closed {
		return nil, ErrClosed
	}
	t := ai.initial
	ai.initial = nil
	if t == nil {
		var err error
		if t, err = ai.b.traverse(); err != nil {
			return nil, err
		}
	}
	it := &FileIterator{ai: ai, t: t}
	ai.sessions[it] = struct{}{}
	return it, nil
}

// Names yields the name of every entry. Each range over the sequence is
// a new pass over the AppImage. A read error is yielded once, last.
func (ai *AppImage) Names() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		it, err := ai.Files()
		if err != nil {
			yield("", err)
			return
		}
		defer it.Close()
		for it.Next() {
			if !yield(it.Name(), nil) {
				return
			}
		}
		if err = it.Err(); err != nil {
			yield("", err)
		}
	}
}

// ReadFile returns the contents of the file name, following symlinks.
func (ai *AppImage) ReadFile(name string) ([]byte, error) {
	rc, err := ai.Open(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, &ReadError{Path: ai.Path, Entry: name, Err: err}
	}
	return data, nil
}

// Open returns a reader for the contents of the file name, following
// symlinks. The reader is only valid while the AppImage is open.
func (ai *AppImage) Open(name string) (io.ReadCloser, error) {
	e, err := ai.resolve(name)
	if err != nil {
		return nil, err
	}
	return ai.openEntry(name, e)
}

// ExtractFile writes the entry name to target. If followSymlinks is true
// and name is a symlink, the file it points to is written in its place.
func (ai *AppImage) ExtractFile(name, target string, followSymlinks bool) error {
	var e *entry
	var err error
	if followSymlinks {
		e, err = ai.resolve(name)
	} else {
		e, err = ai.lookup(name)
	}
	if err != nil {
		return err
	}
	if err = extractEntry(e, target); err != nil {
		return &ExtractionError{Entry: e.name, Target: target, Err: err}
	}
	return nil
}

// ExtractAll writes every entry of the AppImage below dest. Entry names
// are joined to dest so that no entry, nor a symlink extracted before it,
// can place a file outside of dest. onEntry, if set, is called with the
// name of every entry before it is written.
func (ai *AppImage) ExtractAll(dest string, onEntry func(name string)) error {
	if err := helpers.CreateDirectories(dest); err != nil {
		return &ExtractionError{Target: dest, Err: err}
	}
	it, err := ai.Files()
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		name := it.Name()
		if onEntry != nil {
			onEntry(name)
		}
		// Symlinks in the parent are resolved within dest; the entry itself
		// is not, so an existing symlink there is replaced.
		dir, err := securejoin.SecureJoin(dest, path.Dir(name))
		if err != nil {
			return &ExtractionError{Entry: name, Target: dest, Err: err}
		}
		if err = it.ExtractTo(filepath.Join(dir, path.Base(name))); err != nil {
			return err
		}
	}
	return it.Err()
}

// ModTime is the time the AppImage was built. For type 2 AppImages this
// comes from the squashfs superblock, otherwise it is the file's ModTime.
func (ai *AppImage) ModTime() time.Time {
	if b, ok := ai.b.(*type2Backend); ok {
		if img, ok := b.img.(*squashfsImage); ok {
			return img.modTime()
		}
	}
	info, err := os.Stat(ai.Path)
	if err != nil {
		return time.Unix(0, 0)
	}
	return info.ModTime()
}

// Close releases the AppImage and every iterator handed out by Files.
func (ai *AppImage) Close() error {
	if ai.closed {
		return nil
	}
	ai.opts.logf("Closing %s", ai.Path)
	ai.closed = true
	var errs []error
	for it := range ai.sessions {
		errs = append(errs, it.Close())
	}
	if ai.initial != nil {
		errs = append(errs, ai.initial.close())
		ai.initial = nil
	}
	errs = append(errs, ai.b.close())
	return errors.Join(errs...)
}

func (ai *AppImage) lookup(name string) (*entry, error) {
	if ai.closed {
		return nil, ErrClosed
	}
	clean := cleanName(name)
	if clean == "" {
		return nil, &ReadError{Path: ai.Path, Entry: name, Err: errIsDir}
	}
	return ai.b.lookup(clean)
}

// resolve looks up name and follows symlinks, both in name's parents and
// at name itself.
func (ai *AppImage) resolve(name string) (*entry, error) {
	e, err := ai.lookup(name)
	if errors.Is(err, ErrNotFound) {
		return followPath(ai.b, cleanName(name))
	}
	if err != nil {
		return nil, err
	}
	if e.typ == TypeSymlink {
		return resolveSymlink(ai.b, e.name, e.linkname)
	}
	return e, nil
}

// openEntry opens e, which name resolved to.
func (ai *AppImage) openEntry(name string, e *entry) (io.ReadCloser, error) {
	switch {
	case e.typ == TypeDirectory:
		return nil, &ReadError{Path: ai.Path, Entry: name, Err: errIsDir}
	case e.typ != TypeRegular || e.open == nil:
		return nil, &ReadError{Path: ai.Path, Entry: name, Err: fmt.Errorf("cannot read a %s", e.typ)}
	}
	rc, err := e.open()
	if err != nil {
		return nil, &ReadError{Path: ai.Path, Entry: name, Err: err}
	}
	return rc, nil
}

func extractEntry(e *entry, target string) error {
	switch e.typ {
	case TypeDirectory:
		return makeDir(target)
	case TypeSymlink:
		return makeSymlink(target, e.linkname)
	case TypeRegular:
		rc, err := e.open()
		if err != nil {
			return err
		}
		defer rc.Close()
		return writeFile(target, rc)
	default:
		return fmt.Errorf("cannot extract a %s", e.typ)
	}
}

func (ai *AppImage) calculateNiceName() string {
	niceName := filepath.Base(ai.Path)
	niceName = strings.ReplaceAll(niceName, ".AppImage", "")
	niceName = strings.ReplaceAll(niceName, ".appimage", "")
	niceName = strings.ReplaceAll(niceName, ".app", "")
	niceName = strings.ReplaceAll(niceName, ".App", "")
	niceName = strings.ReplaceAll(niceName, "-x86_64", "")
	niceName = strings.ReplaceAll(niceName, "-i386", "")
	niceName = strings.ReplaceAll(niceName, "-i686", "")
	niceName = strings.ReplaceAll(niceName, "-aarch64", "")
	niceName = strings.ReplaceAll(niceName, "-armhf", "")
	niceName = strings.ReplaceAll(niceName, "-", " ")
	niceName = strings.ReplaceAll(niceName, "_", " ")
	return niceName
}
