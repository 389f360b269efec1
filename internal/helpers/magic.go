package helpers

import (
	"bytes"
	"encoding/hex"
	"io"
)

// CheckMagicAtOffset returns true if the bytes at offset in r
// are equal to the hex encoded magic
func CheckMagicAtOffset(r io.ReaderAt, magic string, offset int64) bool {
	want, err := hex.DecodeString(magic)
	if err != nil || len(want) == 0 {
		return false
	}
	got := make([]byte, len(want))
	n, err := r.ReadAt(got, offset)
	if n != len(want) {
		return false
	}
	if err != nil && err != io.EOF {
		return false
	}
	return bytes.Equal(got, want)
}
