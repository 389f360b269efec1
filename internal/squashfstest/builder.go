// Package squashfstest writes small type 2 AppImages for tests: a minimal
// ELF runtime followed by a squashfs image.
package squashfstest

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"testing"

	"github.com/diskfs/go-diskfs/filesystem/squashfs"
)

// Entry is one file, directory or symlink in the image.
type Entry struct {
	// Path is slash separated and relative to the image root.
	Path     string
	Data     []byte
	Dir      bool
	Linkname string
	// Perm defaults to 0755 for directories and 0644 for files.
	Perm fs.FileMode
}

// Options control the runtime in front of the squashfs.
type Options struct {
	// UpdateInformation is stored in a .upd_info section of the runtime.
	// No section is written when it is empty.
	UpdateInformation string
}

// Build returns the bytes of a squashfs image holding entries. Symlink
// targets must exist inside the image.
func Build(entries []Entry) ([]byte, error) {
	out, err := os.CreateTemp("", "squashfstest-*.sfs")
	if err != nil {
		return nil, err
	}
	defer os.Remove(out.Name())
	defer out.Close()

	sqfs, err := squashfs.Create(out, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	ws := sqfs.Workspace()
	defer os.RemoveAll(ws)

	for _, e := range entries {
		if err = add(sqfs, e); err != nil {
			return nil, fmt.Errorf("%s: %w", e.Path, err)
		}
	}

	// Finalize reads symlink targets relative to the working directory.
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err = os.Chdir(ws); err != nil {
		return nil, err
	}
	err = sqfs.Finalize(squashfs.FinalizeOptions{
		Compression: &squashfs.CompressorGzip{CompressionLevel: 6, WindowSize: 15},
	})
	if cdErr := os.Chdir(wd); err == nil {
		err = cdErr
	}
	if err != nil {
		return nil, err
	}
	return os.ReadFile(out.Name())
}

func add(sqfs *squashfs.FileSystem, e Entry) error {
	p := filepath.Join(sqfs.Workspace(), filepath.FromSlash(e.Path))
	switch {
	case e.Dir:
		if err := sqfs.Mkdir(e.Path); err != nil {
			return err
		}
		return os.Chmod(p, perm(e, 0755))
	case e.Linkname != "":
		if err := sqfs.Mkdir(path.Dir(e.Path)); err != nil {
			return err
		}
		return os.Symlink(e.Linkname, p)
	}
	if err := sqfs.Mkdir(path.Dir(e.Path)); err != nil {
		return err
	}
	f, err := sqfs.OpenFile(e.Path, os.O_CREATE|os.O_RDWR|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err = f.Write(e.Data); err != nil {
		f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Chmod(p, perm(e, 0644))
}

func perm(e Entry, def fs.FileMode) fs.FileMode {
	if e.Perm == 0 {
		return def
	}
	return e.Perm
}

// Runtime returns a minimal x86_64 ELF file carrying the type 2 AppImage
// magic. Its section header table ends the file, so the squashfs starts
// right after it.
func Runtime(opts Options) []byte {
	type section struct {
		name   string
		typ    uint32
		data   []byte
		off    uint64
		nameAt uint32
	}
	strtab := []byte{0}
	sections := []*section{{name: ".shstrtab", typ: 3}}
	if opts.UpdateInformation != "" {
		upd := make([]byte, 1024)
		copy(upd, opts.UpdateInformation)
		sections = append(sections, &section{name: ".upd_info", typ: 1, data: upd})
	}
	for _, s := range sections {
		s.nameAt = uint32(len(strtab))
		strtab = append(strtab, s.name...)
		strtab = append(strtab, 0)
	}
	sections[0].data = strtab

	const ehsize, shentsize = 64, 64
	buf := make([]byte, ehsize)
	for _, s := range sections {
		s.off = uint64(len(buf))
		buf = append(buf, s.data...)
	}
	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	shoff := len(buf)
	// Section 0 is the null section.
	buf = append(buf, make([]byte, shentsize)...)
	for _, s := range sections {
		sh := make([]byte, shentsize)
		le := binary.LittleEndian
		le.PutUint32(sh[0:], s.nameAt)
		le.PutUint32(sh[4:], s.typ)
		le.PutUint64(sh[24:], s.off)
		le.PutUint64(sh[32:], uint64(len(s.data)))
		le.PutUint64(sh[48:], 1)
		buf = append(buf, sh...)
	}

	copy(buf, "\x7fELF\x02\x01\x01\x00AI\x02")
	le := binary.LittleEndian
	le.PutUint16(buf[16:], 2)  // ET_EXEC
	le.PutUint16(buf[18:], 62) // EM_X86_64
	le.PutUint32(buf[20:], 1)
	le.PutUint64(buf[40:], uint64(shoff))
	le.PutUint16(buf[52:], ehsize)
	le.PutUint16(buf[58:], shentsize)
	le.PutUint16(buf[60:], uint16(len(sections)+1))
	le.PutUint16(buf[62:], 1)
	return buf
}

// WriteAppImage writes a type 2 AppImage holding entries into dir and
// returns its path.
func WriteAppImage(t testing.TB, dir string, entries []Entry, opts Options) string {
	t.Helper()
	sfs, err := Build(entries)
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "Test-x86_64.AppImage")
	if err := os.WriteFile(p, append(Runtime(opts), sfs...), 0755); err != nil {
		t.Fatal(err)
	}
	return p
}
