package goappimage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/CalebQ42/squashfs"

	"github.com/probonopd/libappimage-go/internal/helpers"
)

// squashfsImage is the inode image of a type 2 AppImage, read from the
// squashfs that starts right after the ELF runtime.
type squashfsImage struct {
	f   *os.File
	rdr *squashfs.Reader
}

func newSquashfsImage(f *os.File) (*squashfsImage, error) {
	offset, err := helpers.ElfSize(f)
	if err != nil {
		return nil, fmt.Errorf("locating squashfs: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if offset >= stat.Size() {
		return nil, fmt.Errorf("no squashfs after the ELF runtime (offset %d, size %d)", offset, stat.Size())
	}
	rdr, err := squashfs.NewReader(io.NewSectionReader(f, offset, stat.Size()-offset))
	if err != nil {
		return nil, err
	}
	return &squashfsImage{f: f, rdr: rdr}, nil
}

func (s *squashfsImage) file(name string) (*squashfs.File, error) {
	fsFil, err := s.rdr.Open(name)
	if err != nil {
		return nil, err
	}
	fil, ok := fsFil.(*squashfs.File)
	if !ok {
		fsFil.Close()
		return nil, errors.New("unexpected squashfs file type")
	}
	return fil, nil
}

func (s *squashfsImage) stat(name string) (inodeStat, error) {
	fil, err := s.file(name)
	if err != nil {
		return inodeStat{}, err
	}
	defer fil.Close()
	info, err := fil.Stat()
	if err != nil {
		return inodeStat{}, err
	}
	// The FileInfo mode only knows directories; the inode mode also
	// carries the symlink, device and pipe bits.
	mode := fil.Mode()
	st := inodeStat{typ: fileTypeOf(mode), mode: mode}
	if st.typ == TypeRegular {
		st.size = info.Size()
	}
	return st, nil
}

func (s *squashfsImage) children(name string) ([]string, error) {
	fil, err := s.file(name)
	if err != nil {
		return nil, err
	}
	defer fil.Close()
	if !fil.IsDir() {
		return nil, fmt.Errorf("%s: %w", name, errNotDir)
	}
	ents, err := fil.ReadDir(0)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		out = append(out, e.Name())
	}
	return out, nil
}

func (s *squashfsImage) readlink(name string) (string, error) {
	fil, err := s.file(name)
	if err != nil {
		return "", err
	}
	defer fil.Close()
	if !fil.IsSymlink() {
		return "", fmt.Errorf("%s: not a symlink", name)
	}
	return fil.SymlinkPath(), nil
}

func (s *squashfsImage) open(name string) (io.ReadCloser, error) {
	fil, err := s.file(name)
	if err != nil {
		return nil, err
	}
	if fil.IsDir() {
		fil.Close()
		return nil, fmt.Errorf("%s: %w", name, errIsDir)
	}
	return fil, nil
}

func (s *squashfsImage) modTime() time.Time {
	return s.rdr.ModTime()
}

func (s *squashfsImage) close() error {
	return s.f.Close()
}
