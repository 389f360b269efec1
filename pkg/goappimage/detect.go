package goappimage

import (
	"io"
	"os"

	"github.com/probonopd/libappimage-go/internal/helpers"
)

// Format is the AppImage type of a file.
type Format int

const (
	FormatUnknown Format = -1
	// Format1 AppImages are ISO 9660 images that also start with an ELF
	// runtime.
	Format1 Format = 1
	// Format2 AppImages are an ELF runtime followed by a squashfs image.
	Format2 Format = 2
)

func (f Format) String() string {
	switch f {
	case Format1:
		return "Type 1"
	case Format2:
		return "Type 2"
	default:
		return "unknown"
	}
}

// DetectFormat reports the AppImage type of the file at path.
// Anything that cannot be opened or read is FormatUnknown.
func DetectFormat(path string) Format {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown
	}
	defer f.Close()
	info, err := f.Stat()
	// Directories cannot be AppImages, so return fast
	if err != nil || info.IsDir() {
		return FormatUnknown
	}
	return detectFormat(f)
}

func detectFormat(r io.ReaderAt) Format {
	if helpers.CheckMagicAtOffset(r, "414902", 8) {
		return Format2
	}
	if helpers.CheckMagicAtOffset(r, "414901", 8) {
		return Format1
	}
	// ISO9660 files that are also ELF files
	if helpers.CheckMagicAtOffset(r, "7f454c", 0) && helpers.CheckMagicAtOffset(r, "4344303031", 32769) {
		return Format1
	}
	return FormatUnknown
}
