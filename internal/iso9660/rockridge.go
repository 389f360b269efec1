package iso9660

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"strings"
)

const maxContinuations = 32

// POSIX file type bits as stored in the PX entry.
const (
	sIFMT  = 0170000
	sIFDIR = 0040000
	sIFLNK = 0120000
	sIFREG = 0100000
)

// rockRidge holds the Rock Ridge entries of one directory record.
type rockRidge struct {
	name      string
	linkname  string
	mode      fs.FileMode
	hasMode   bool
	childLink uint32
	relocated bool
}

// parseSystemUse decodes the SUSP entries in su, following CE
// continuation areas.
func (r *Reader) parseSystemUse(su []byte) (rockRidge, error) {
	var (
		rr       rockRidge
		name     strings.Builder
		link     symlinkBuilder
		hasLink  bool
		areas    int
		nameDone bool
	)
	for su != nil {
		var next []byte
		for len(su) >= 4 {
			sig := string(su[0:2])
			entryLen := int(su[2])
			if entryLen < 4 || entryLen > len(su) {
				break
			}
			entry := su[:entryLen]
			su = su[entryLen:]
			switch sig {
			case "ST":
				su = nil
			case "CE":
				if len(entry) < 28 {
					return rr, errors.New("short CE entry")
				}
				block := binary.LittleEndian.Uint32(entry[4:8])
				offset := binary.LittleEndian.Uint32(entry[12:16])
				length := binary.LittleEndian.Uint32(entry[20:24])
				// A continuation area lies within a single block.
				if int64(offset)+int64(length) > r.blockSize {
					return rr, fmt.Errorf("CE area of %d bytes at offset %d crosses its block", length, offset)
				}
				var err error
				if next, err = r.readAt(int64(block)*r.blockSize+int64(offset), int64(length)); err != nil {
					return rr, fmt.Errorf("reading continuation area: %w", err)
				}
			case "PX":
				if len(entry) < 12 {
					return rr, errors.New("short PX entry")
				}
				rr.mode = posixMode(binary.LittleEndian.Uint32(entry[4:8]))
				rr.hasMode = true
			case "NM":
				if len(entry) < 5 || nameDone {
					continue
				}
				flags := entry[4]
				if flags&0x06 != 0 {
					continue
				}
				name.Write(entry[5:])
				nameDone = flags&0x01 == 0
			case "SL":
				if len(entry) < 5 {
					return rr, errors.New("short SL entry")
				}
				if err := link.add(entry[5:]); err != nil {
					return rr, err
				}
				hasLink = true
			case "CL":
				if len(entry) < 12 {
					return rr, errors.New("short CL entry")
				}
				rr.childLink = binary.LittleEndian.Uint32(entry[4:8])
			case "RE":
				rr.relocated = true
			}
		}
		su = next
		if su != nil {
			areas++
			if areas > maxContinuations {
				return rr, errors.New("too many SUSP continuation areas")
			}
		}
	}
	rr.name = name.String()
	if hasLink {
		rr.linkname = link.String()
		if rr.linkname == "" {
			return rr, errors.New("empty symbolic link")
		}
	}
	return rr, nil
}

func posixMode(m uint32) fs.FileMode {
	mode := fs.FileMode(m & 0777)
	switch m & sIFMT {
	case sIFDIR:
		mode |= fs.ModeDir
	case sIFLNK:
		mode |= fs.ModeSymlink
	case sIFREG:
	default:
		mode |= fs.ModeIrregular
	}
	if m&04000 != 0 {
		mode |= fs.ModeSetuid
	}
	if m&02000 != 0 {
		mode |= fs.ModeSetgid
	}
	if m&01000 != 0 {
		mode |= fs.ModeSticky
	}
	return mode
}

// symlinkBuilder joins SL component records, which may span several SL
// entries.
type symlinkBuilder struct {
	b          strings.Builder
	pendingSep bool
}

func (l *symlinkBuilder) add(components []byte) error {
	for len(components) > 0 {
		if len(components) < 2 {
			return errors.New("truncated SL component")
		}
		flags := components[0]
		n := int(components[1])
		if 2+n > len(components) {
			return errors.New("SL component overruns entry")
		}
		content := components[2 : 2+n]
		components = components[2+n:]

		var text string
		switch {
		case flags&0x08 != 0:
			l.b.WriteString("/")
			l.pendingSep = false
			continue
		case flags&0x02 != 0:
			text = "."
		case flags&0x04 != 0:
			text = ".."
		default:
			text = string(content)
		}
		if l.pendingSep {
			l.b.WriteString("/")
		}
		l.b.WriteString(text)
		l.pendingSep = flags&0x01 == 0
	}
	return nil
}

func (l *symlinkBuilder) String() string { return l.b.String() }
