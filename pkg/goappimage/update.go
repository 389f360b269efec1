package goappimage

import (
	"errors"
	"io"
	"os"

	"github.com/probonopd/libappimage-go/internal/helpers"
)

// UpdateInformation returns the update information embedded in the
// AppImage, or "" if it has none.
func (ai *AppImage) UpdateInformation() (string, error) {
	f, err := os.Open(ai.Path)
	if err != nil {
		return "", &ReadError{Path: ai.Path, Err: err}
	}
	defer f.Close()

	var raw []byte
	switch ai.format {
	case Format1:
		raw = make([]byte, helpers.Type1UpdateInformationLength)
		if _, err = f.ReadAt(raw, helpers.Type1UpdateInformationOffset); err != nil && !errors.Is(err, io.EOF) {
			return "", &ReadError{Path: ai.Path, Err: err}
		}
	case Format2:
		raw, err = helpers.ElfSection(f, ".upd_info")
		if errors.Is(err, helpers.ErrNoElfSection) {
			return "", nil
		}
		if err != nil {
			return "", &ReadError{Path: ai.Path, Err: err}
		}
	}
	return helpers.TrimNul(raw), nil
}
