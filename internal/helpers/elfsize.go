// Based on https://forum.golangbridge.org/t/calculate-the-size-of-an-elf/16064/5
// Author: Holloway, Chew Kean Ho <kean.ho.chew@zoralab.com>

package helpers

import (
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ElfSize returns the number of bytes occupied by the ELF file at the
// start of r. For a type 2 AppImage this is the offset of the squashfs image.
func ElfSize(r io.ReaderAt) (int64, error) {
	e, err := elf.NewFile(r)
	if err != nil {
		return 0, fmt.Errorf("elfsize: %w", err)
	}

	// Read identifier
	var ident [16]uint8
	if _, err = r.ReadAt(ident[0:], 0); err != nil {
		return 0, fmt.Errorf("elfsize read identifier: %w", err)
	}

	// Decode identifier
	if ident[0] != '\x7f' ||
		ident[1] != 'E' ||
		ident[2] != 'L' ||
		ident[3] != 'F' {
		return 0, fmt.Errorf("bad magic number %x", ident[0:4])
	}

	// Process by architecture
	sr := io.NewSectionReader(r, 0, 1<<63-1)
	var shoff, shentsize, shnum int64
	switch e.Class {
	case elf.ELFCLASS64:
		hdr := new(elf.Header64)
		if err = binary.Read(sr, e.ByteOrder, hdr); err != nil {
			return 0, fmt.Errorf("elfsize: %w", err)
		}
		shoff = int64(hdr.Shoff)
		shnum = int64(hdr.Shnum)
		shentsize = int64(hdr.Shentsize)
	case elf.ELFCLASS32:
		hdr := new(elf.Header32)
		if err = binary.Read(sr, e.ByteOrder, hdr); err != nil {
			return 0, fmt.Errorf("elfsize: %w", err)
		}
		shoff = int64(hdr.Shoff)
		shnum = int64(hdr.Shnum)
		shentsize = int64(hdr.Shentsize)
	default:
		return 0, errors.New("unsupported elf architecture")
	}

	// Calculate ELF size
	return shoff + (shentsize * shnum), nil
}

// CalculateElfSize returns the size of the ELF file at path, or 0 if it
// cannot be determined
func CalculateElfSize(file string) int64 {
	f, err := os.Open(file)
	PrintError("ioReader", err)
	if err != nil {
		return 0
	}
	defer f.Close()
	size, err := ElfSize(f)
	PrintError("elfsize", err)
	return size
}
