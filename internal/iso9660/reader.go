// Package iso9660 reads ISO 9660 images with Rock Ridge extensions the way
// an archive reader does: one directory record after another, in depth-first
// order, with access to the data of the record under the cursor.
package iso9660

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"
)

const (
	// SectorSize is the size of a logical sector.
	SectorSize = 2048

	firstDescriptorSector = 16
	maxDescriptors        = 64
	maxDepth              = 256
	// maxDirectorySize bounds a single directory extent.
	maxDirectorySize = 64 << 20

	descriptorPrimary    = 1
	descriptorTerminator = 255

	flagDirectory   = 0x02
	flagMultiExtent = 0x80
)

var (
	// ErrNotISO9660 is returned when no primary volume descriptor is found.
	ErrNotISO9660 = errors.New("iso9660: no primary volume descriptor")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("iso9660: reader closed")
)

// Header describes one directory record.
type Header struct {
	// Name is the slash separated path relative to the image root.
	// The root directory itself is reported as ".".
	Name     string
	Mode     fs.FileMode
	Size     int64
	Linkname string
	ModTime  time.Time
}

// IsDir reports whether the record is a directory.
func (h Header) IsDir() bool { return h.Mode.IsDir() }

// IsSymlink reports whether the record is a Rock Ridge symbolic link.
func (h Header) IsSymlink() bool { return h.Mode&fs.ModeSymlink != 0 }

type record struct {
	name    string
	flags   byte
	lba     uint32
	size    uint32
	modTime time.Time
	rr      rockRidge
}

func (rec *record) isDir() bool {
	if rec.rr.childLink != 0 {
		return true
	}
	return rec.flags&flagDirectory != 0
}

func (rec *record) mode() fs.FileMode {
	switch {
	case rec.rr.linkname != "" || rec.rr.hasMode && rec.rr.mode&fs.ModeSymlink != 0:
		perm := fs.FileMode(0777)
		if rec.rr.hasMode {
			perm = rec.rr.mode.Perm()
		}
		return fs.ModeSymlink | perm
	case rec.isDir():
		if rec.rr.hasMode {
			return fs.ModeDir | rec.rr.mode.Perm()
		}
		return fs.ModeDir | 0555
	default:
		if rec.rr.hasMode {
			return rec.rr.mode
		}
		return 0444
	}
}

type frame struct {
	prefix  string
	records []record
	next    int
}

// Reader walks the directory hierarchy of an image.
type Reader struct {
	r io.ReaderAt
	// size is the length of the image, or -1 when r cannot tell.
	size      int64
	blockSize int64
	root      record
	rockRidge bool
	suspSkip  int

	started bool
	closed  bool
	err     error
	stack   []*frame
	visited map[uint32]bool

	cur  *Header
	rec  *record
	data io.Reader
}

// NewReader parses the volume descriptors of the image in r.
func NewReader(r io.ReaderAt) (*Reader, error) {
	rdr := &Reader{r: r, size: sizeOf(r), visited: make(map[uint32]bool)}
	if err := rdr.readVolumeDescriptors(); err != nil {
		return nil, err
	}
	if err := rdr.detectRockRidge(); err != nil {
		return nil, err
	}
	return rdr, nil
}

func (r *Reader) readVolumeDescriptors() error {
	buf := make([]byte, SectorSize)
	for i := 0; i < maxDescriptors; i++ {
		off := int64(firstDescriptorSector+i) * SectorSize
		if _, err := r.r.ReadAt(buf, off); err != nil {
			if errors.Is(err, io.EOF) {
				return ErrNotISO9660
			}
			return fmt.Errorf("iso9660: reading volume descriptor: %w", err)
		}
		if string(buf[1:6]) != "CD001" {
			return ErrNotISO9660
		}
		switch buf[0] {
		case descriptorPrimary:
			r.blockSize = int64(binary.LittleEndian.Uint16(buf[128:130]))
			if r.blockSize == 0 {
				r.blockSize = SectorSize
			}
			root, _, err := parseRecord(buf[156:190])
			if err != nil {
				return fmt.Errorf("iso9660: root directory record: %w", err)
			}
			root.name = "."
			r.root = root
			return nil
		case descriptorTerminator:
			return ErrNotISO9660
		}
	}
	return ErrNotISO9660
}

// detectRockRidge looks for the SUSP "SP" entry in the first record of the
// root directory.
func (r *Reader) detectRockRidge() error {
	buf, err := r.readAt(int64(r.root.lba)*r.blockSize, SectorSize)
	if err != nil {
		return fmt.Errorf("iso9660: reading root directory: %w", err)
	}
	recLen := int(buf[0])
	if recLen < 34 {
		return nil
	}
	_, su, err := parseRecord(buf[:recLen])
	if err != nil {
		return fmt.Errorf("iso9660: root directory self record: %w", err)
	}
	if len(su) >= 7 && su[0] == 'S' && su[1] == 'P' && su[4] == 0xBE && su[5] == 0xEF {
		r.rockRidge = true
		r.suspSkip = int(su[6])
		rr, err := r.parseSystemUse(su)
		if err != nil {
			return err
		}
		r.root.rr = rr
	}
	return nil
}

// RockRidge reports whether the image carries Rock Ridge extensions.
func (r *Reader) RockRidge() bool { return r.rockRidge }

// Next advances to the next record. The root directory is returned first
// as ".". At the end of the image Next returns io.EOF.
func (r *Reader) Next() (*Header, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.err != nil {
		return nil, r.err
	}
	if !r.started {
		r.started = true
		root := r.root
		if err := r.push("", &root); err != nil {
			r.err = err
			return nil, err
		}
		return r.emit(".", &root), nil
	}
	for len(r.stack) > 0 {
		top := r.stack[len(r.stack)-1]
		if top.next >= len(top.records) {
			r.stack = r.stack[:len(r.stack)-1]
			continue
		}
		rec := &top.records[top.next]
		top.next++
		if top.prefix == "" && r.rockRidge && rec.name == "rr_moved" {
			continue
		}
		name := rec.name
		if top.prefix != "" {
			name = top.prefix + "/" + rec.name
		}
		if rec.isDir() {
			if err := r.push(name, rec); err != nil {
				r.err = err
				return nil, err
			}
		}
		return r.emit(name, rec), nil
	}
	r.cur, r.rec, r.data = nil, nil, nil
	return nil, io.EOF
}

func (r *Reader) push(prefix string, dir *record) error {
	if len(r.stack) >= maxDepth {
		return fmt.Errorf("iso9660: %s: directory hierarchy too deep", prefix)
	}
	extent := dir.lba
	if dir.rr.childLink != 0 {
		extent = dir.rr.childLink
	}
	if r.visited[extent] {
		return fmt.Errorf("iso9660: %s: directory loop at sector %d", prefix, extent)
	}
	r.visited[extent] = true
	records, err := r.readDir(dir)
	if err != nil {
		return fmt.Errorf("iso9660: %s: %w", path.Clean("/"+prefix), err)
	}
	r.stack = append(r.stack, &frame{prefix: prefix, records: records})
	return nil
}

func (r *Reader) emit(name string, rec *record) *Header {
	mode := rec.mode()
	hdr := &Header{
		Name:     name,
		Mode:     mode,
		Linkname: rec.rr.linkname,
		ModTime:  rec.modTime,
	}
	if mode.IsRegular() {
		hdr.Size = int64(rec.size)
	}
	r.cur, r.rec = hdr, rec
	r.data = r.Data()
	return hdr
}

// Read reads from the data of the current record.
func (r *Reader) Read(p []byte) (int, error) {
	if r.data == nil {
		return 0, io.EOF
	}
	return r.data.Read(p)
}

// Data returns a new reader over the data of the current record, starting
// at its first byte. Directories and symlinks have no data.
func (r *Reader) Data() *io.SectionReader {
	if r.cur == nil || !r.cur.Mode.IsRegular() {
		return io.NewSectionReader(r.r, 0, 0)
	}
	return io.NewSectionReader(r.r, int64(r.rec.lba)*r.blockSize, r.cur.Size)
}

// Close releases the walk state. The underlying io.ReaderAt is not closed.
func (r *Reader) Close() error {
	r.closed = true
	r.stack, r.visited = nil, nil
	r.cur, r.rec, r.data = nil, nil, nil
	return nil
}

func (r *Reader) readDir(dir *record) ([]record, error) {
	lba, size := dir.lba, dir.size
	if dir.rr.childLink != 0 {
		var err error
		lba, size, err = r.relocatedExtent(dir.rr.childLink)
		if err != nil {
			return nil, err
		}
	}
	if size > maxDirectorySize {
		return nil, fmt.Errorf("directory extent of %d bytes is too large", size)
	}
	data, err := r.readAt(int64(lba)*r.blockSize, int64(size))
	if err != nil {
		return nil, err
	}
	var records []record
	offset := 0
	for offset < len(data) {
		recLen := int(data[offset])
		if recLen == 0 {
			next := (offset/SectorSize + 1) * SectorSize
			if next >= len(data) {
				break
			}
			offset = next
			continue
		}
		if offset+recLen > len(data) {
			return nil, fmt.Errorf("directory record at offset %d overruns its extent", offset)
		}
		rec, su, err := parseRecord(data[offset : offset+recLen])
		if err != nil {
			return nil, err
		}
		offset += recLen
		if rec.name == "\x00" || rec.name == "\x01" {
			continue
		}
		if rec.flags&flagMultiExtent != 0 {
			return nil, fmt.Errorf("%s: multi-extent files are not supported", rec.name)
		}
		if r.rockRidge {
			if len(su) > r.suspSkip {
				su = su[r.suspSkip:]
			}
			rec.rr, err = r.parseSystemUse(su)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", rec.name, err)
			}
			if rec.rr.relocated {
				continue
			}
			if rec.rr.name != "" {
				rec.name = rec.rr.name
			}
		}
		if !rec.isDir() && rec.rr.linkname == "" && rec.size > 0 && !r.fits(int64(rec.lba)*r.blockSize, int64(rec.size)) {
			return nil, fmt.Errorf("%s: file extent runs past the end of the image", rec.name)
		}
		if strings.Contains(rec.name, "/") || rec.name == "." || rec.name == ".." {
			return nil, fmt.Errorf("invalid file name %q", rec.name)
		}
		records = append(records, rec)
	}
	return records, nil
}

// relocatedExtent reads the "." record of a directory moved by Rock Ridge
// deep directory relocation.
func (r *Reader) relocatedExtent(lba uint32) (uint32, uint32, error) {
	buf, err := r.readAt(int64(lba)*r.blockSize, SectorSize)
	if err != nil {
		return 0, 0, err
	}
	recLen := int(buf[0])
	if recLen < 34 {
		return 0, 0, fmt.Errorf("relocated directory at sector %d has no self record", lba)
	}
	self, _, err := parseRecord(buf[:recLen])
	if err != nil {
		return 0, 0, err
	}
	return self.lba, self.size, nil
}

// fits reports whether n bytes at off lie inside the image.
func (r *Reader) fits(off, n int64) bool {
	if off < 0 || n < 0 {
		return false
	}
	return r.size < 0 || off+n <= r.size
}

// readAt reads exactly n bytes at off. Ranges past the end of the image
// are an error rather than zero filled.
func (r *Reader) readAt(off, n int64) ([]byte, error) {
	if !r.fits(off, n) {
		return nil, fmt.Errorf("%d bytes at offset %d run past the end of the image", n, off)
	}
	buf := make([]byte, n)
	k, err := r.r.ReadAt(buf, off)
	if k == len(buf) {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return nil, err
}

// sizeOf returns the length of r, or -1 if it is unknown.
func sizeOf(r io.ReaderAt) int64 {
	switch v := r.(type) {
	case interface{ Size() int64 }:
		return v.Size()
	case interface{ Stat() (fs.FileInfo, error) }:
		if fi, err := v.Stat(); err == nil && fi.Mode().IsRegular() {
			return fi.Size()
		}
	}
	return -1
}

// parseRecord decodes the fixed part of a directory record and returns the
// remaining System Use area.
func parseRecord(buf []byte) (record, []byte, error) {
	if len(buf) < 34 {
		return record{}, nil, fmt.Errorf("short directory record (%d bytes)", len(buf))
	}
	recLen := int(buf[0])
	if recLen > len(buf) {
		recLen = len(buf)
	}
	nameLen := int(buf[32])
	if 33+nameLen > recLen {
		return record{}, nil, errors.New("directory record name overruns record")
	}
	rec := record{
		lba:     binary.LittleEndian.Uint32(buf[2:6]),
		size:    binary.LittleEndian.Uint32(buf[10:14]),
		modTime: recordingTime(buf[18:25]),
		flags:   buf[25],
		name:    isoName(string(buf[33:33+nameLen]), buf[25]&flagDirectory != 0),
	}
	start := 33 + nameLen
	if nameLen%2 == 0 {
		start++
	}
	if start > recLen {
		start = recLen
	}
	return rec, buf[start:recLen], nil
}

// isoName turns a d-character file identifier into a file name.
func isoName(id string, dir bool) string {
	if id == "\x00" || id == "\x01" || dir {
		return id
	}
	if idx := strings.IndexByte(id, ';'); idx >= 0 {
		id = id[:idx]
	}
	return strings.TrimSuffix(id, ".")
}

func recordingTime(b []byte) time.Time {
	if b[0] == 0 && b[1] == 0 && b[2] == 0 {
		return time.Time{}
	}
	zone := time.FixedZone("", int(int8(b[6]))*15*60)
	return time.Date(1900+int(b[0]), time.Month(b[1]), int(b[2]), int(b[3]), int(b[4]), int(b[5]), 0, zone)
}

// ReadCloser is a Reader over an image file it owns.
type ReadCloser struct {
	*Reader
	f *os.File
}

// Open opens the image at name.
func Open(name string) (*ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &ReadCloser{Reader: r, f: f}, nil
}

// Close closes the walk and the image file.
func (rc *ReadCloser) Close() error {
	rc.Reader.Close()
	return rc.f.Close()
}
