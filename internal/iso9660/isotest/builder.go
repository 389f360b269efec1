// Package isotest writes small ISO 9660 images with Rock Ridge extensions
// for tests, including images laid out as type 1 AppImages.
package isotest

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

const sectorSize = 2048

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

// Options control the layout of the image.
type Options struct {
	// SystemArea is copied to the start of the image (at most 32 KiB).
	SystemArea []byte
	// PlainISO disables Rock Ridge; names are then stored as upper case
	// identifiers.
	PlainISO bool
	// UpdateInformation is stored in the application use area of the
	// primary volume descriptor, where type 1 AppImages keep it.
	UpdateInformation string
}

type node struct {
	name     string
	isoID    string
	entry    Entry
	children []*node
	lba      uint32
	size     uint32
}

func (n *node) isDir() bool { return n.entry.Dir }

// AppImageSystemArea returns the first bytes of a type 1 AppImage: an ELF
// identifier followed by the AppImage magic at offset 8.
func AppImageSystemArea() []byte {
	return []byte("\x7fELF\x02\x01\x01\x00AI\x01")
}

// Build returns the bytes of an image holding entries.
func Build(entries []Entry, opts Options) ([]byte, error) {
	root := &node{name: ".", isoID: "\x00", entry: Entry{Dir: true, Perm: 0755}}
	for _, e := range entries {
		if err := insert(root, e); err != nil {
			return nil, err
		}
	}
	var dirs []*node
	var files []*node
	var walk func(n *node)
	walk = func(n *node) {
		sort.Slice(n.children, func(i, j int) bool { return n.children[i].name < n.children[j].name })
		for i, c := range n.children {
			c.isoID = isoIdentifier(c, i, opts.PlainISO)
		}
		dirs = append(dirs, n)
		for _, c := range n.children {
			if c.isDir() {
				walk(c)
			} else {
				files = append(files, c)
			}
		}
	}
	walk(root)

	// Directory extents follow the volume descriptors.
	next := uint32(18)
	for _, d := range dirs {
		d.size = uint32(dirExtentSize(d, d == root, opts.PlainISO))
		d.lba = next
		next += d.size / sectorSize
	}
	for _, f := range files {
		f.lba = next
		f.size = uint32(len(f.entry.Data))
		next += (f.size + sectorSize - 1) / sectorSize
	}

	img := make([]byte, int(next)*sectorSize)
	if len(opts.SystemArea) > 16*sectorSize {
		return nil, fmt.Errorf("system area too large (%d bytes)", len(opts.SystemArea))
	}
	copy(img, opts.SystemArea)
	writePVD(img[16*sectorSize:], root, next)
	copy(img[16*sectorSize+883:16*sectorSize+1395], opts.UpdateInformation)
	term := img[17*sectorSize:]
	term[0] = 255
	copy(term[1:6], "CD001")
	term[6] = 1

	parents := map[*node]*node{root: root}
	for _, d := range dirs {
		for _, c := range d.children {
			parents[c] = d
		}
	}
	for _, d := range dirs {
		writeDir(img[int(d.lba)*sectorSize:], d, parents[d], d == root, opts.PlainISO)
	}
	for _, f := range files {
		copy(img[int(f.lba)*sectorSize:], f.entry.Data)
	}
	return img, nil
}

// WriteAppImage writes a type 1 AppImage holding entries into dir and
// returns its path.
func WriteAppImage(t testing.TB, dir string, entries []Entry) string {
	t.Helper()
	img, err := Build(entries, Options{SystemArea: AppImageSystemArea()})
	if err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "Test-x86_64.AppImage")
	if err := os.WriteFile(p, img, 0755); err != nil {
		t.Fatal(err)
	}
	return p
}

func insert(root *node, e Entry) error {
	clean := path.Clean(strings.TrimPrefix(e.Path, "/"))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("invalid path %q", e.Path)
	}
	parts := strings.Split(clean, "/")
	cur := root
	for i, part := range parts {
		var found *node
		for _, c := range cur.children {
			if c.name == part {
				found = c
			}
		}
		last := i == len(parts)-1
		if found == nil {
			found = &node{name: part, entry: Entry{Path: strings.Join(parts[:i+1], "/"), Dir: true, Perm: 0755}}
			cur.children = append(cur.children, found)
		}
		if last {
			found.entry = e
			if found.entry.Perm == 0 {
				found.entry.Perm = 0644
				if e.Dir {
					found.entry.Perm = 0755
				}
			}
		} else if !found.isDir() {
			return fmt.Errorf("%s: parent is not a directory", e.Path)
		}
		cur = found
	}
	return nil
}

func isoIdentifier(n *node, i int, plain bool) string {
	if plain {
		id := strings.ToUpper(n.name)
		if !n.isDir() {
			id += ";1"
		}
		return id
	}
	if n.isDir() {
		return fmt.Sprintf("D%03d", i)
	}
	return fmt.Sprintf("F%03d.;1", i)
}

func systemUse(n *node, self, root, plain bool) []byte {
	if plain {
		return nil
	}
	var su []byte
	if self && root {
		su = append(su, 'S', 'P', 7, 1, 0xBE, 0xEF, 0)
	}
	mode := uint32(n.entry.Perm.Perm())
	switch {
	case n.isDir():
		mode |= 0040000
	case n.entry.Linkname != "":
		mode = 0120777
	default:
		mode |= 0100000
	}
	px := make([]byte, 44)
	copy(px, "PX")
	px[2], px[3] = 44, 1
	putBoth32(px[4:], mode)
	putBoth32(px[12:], 1)
	su = append(su, px...)
	if self {
		return su
	}
	su = append(su, 'N', 'M', byte(5+len(n.name)), 1, 0)
	su = append(su, n.name...)
	if n.entry.Linkname != "" {
		var comps []byte
		target := n.entry.Linkname
		if strings.HasPrefix(target, "/") {
			comps = append(comps, 0x08, 0)
			target = strings.TrimPrefix(target, "/")
		}
		for _, c := range strings.Split(target, "/") {
			switch c {
			case "":
			case ".":
				comps = append(comps, 0x02, 0)
			case "..":
				comps = append(comps, 0x04, 0)
			default:
				comps = append(comps, 0, byte(len(c)))
				comps = append(comps, c...)
			}
		}
		su = append(su, 'S', 'L', byte(5+len(comps)), 1, 0)
		su = append(su, comps...)
	}
	return su
}

func recordLen(id string, su []byte) int {
	l := 33 + len(id)
	if len(id)%2 == 0 {
		l++
	}
	l += len(su)
	if l%2 == 1 {
		l++
	}
	return l
}

func dirExtentSize(d *node, root, plain bool) int {
	used, total := 0, sectorSize
	add := func(l int) {
		if used+l > sectorSize {
			total += sectorSize
			used = 0
		}
		used += l
	}
	add(recordLen("\x00", systemUse(d, true, root, plain)))
	add(recordLen("\x01", nil))
	for _, c := range d.children {
		add(recordLen(c.isoID, systemUse(c, false, false, plain)))
	}
	return total
}

func writeDir(buf []byte, d, parent *node, root, plain bool) {
	off := 0
	put := func(id string, target *node, su []byte) {
		l := recordLen(id, su)
		if off%sectorSize+l > sectorSize {
			off = (off/sectorSize + 1) * sectorSize
		}
		writeRecord(buf[off:off+l], id, target, su)
		off += l
	}
	put("\x00", d, systemUse(d, true, root, plain))
	put("\x01", parent, nil)
	for _, c := range d.children {
		put(c.isoID, c, systemUse(c, false, false, plain))
	}
}

func writeRecord(b []byte, id string, n *node, su []byte) {
	b[0] = byte(len(b))
	putBoth32(b[2:], n.lba)
	putBoth32(b[10:], n.size)
	copy(b[18:25], []byte{124, 1, 2, 3, 4, 5, 0})
	if n.isDir() {
		b[25] = 0x02
	}
	putBoth16(b[28:], 1)
	b[32] = byte(len(id))
	copy(b[33:], id)
	start := 33 + len(id)
	if len(id)%2 == 0 {
		start++
	}
	copy(b[start:], su)
}

func writePVD(b []byte, root *node, sectors uint32) {
	b[0] = 1
	copy(b[1:6], "CD001")
	b[6] = 1
	copy(b[8:40], strings.Repeat(" ", 32))
	copy(b[40:72], padRight("TEST", 32))
	putBoth32(b[80:], sectors)
	putBoth16(b[120:], 1)
	putBoth16(b[124:], 1)
	putBoth16(b[128:], sectorSize)
	writeRecord(b[156:190], "\x00", root, nil)
	b[881] = 1
}

func padRight(s string, n int) string {
	return s + strings.Repeat(" ", n-len(s))
}

func putBoth32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b[0:4], v)
	binary.BigEndian.PutUint32(b[4:8], v)
}

func putBoth16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b[0:2], v)
	binary.BigEndian.PutUint16(b[2:4], v)
}
