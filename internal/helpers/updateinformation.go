package helpers

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
)

// Update information tells AppImageUpdate where to look for newer versions
// of an AppImage, e.g. "gh-releases-zsync|probonopd|go-appimage|continuous|appimagetool-*x86_64.AppImage.zsync".
// https://github.com/AppImage/AppImageSpec/blob/master/draft.md#update-information

// Type 1 AppImages keep it in the application use area of the ISO 9660
// primary volume descriptor.
const (
	Type1UpdateInformationOffset = 33651
	Type1UpdateInformationLength = 512
)

// UpdateInformation is parsed update information.
type UpdateInformation struct {
	TransportMechanism string
	FileURL            string
	Username           string
	Repository         string
	ReleaseName        string // "latest" uses the latest release as determined by the GitHub API
	Filename           string // filename of the zsync file, * is a wildcard
	PackageName        string
}

// ParseUpdateInformation parses and validates an update information string.
func ParseUpdateInformation(updateinformation string) (UpdateInformation, error) {
	ui := UpdateInformation{}
	parts := strings.Split(updateinformation, "|")
	ui.TransportMechanism = parts[0]
	switch ui.TransportMechanism {
	case "zsync":
		if len(parts) != 2 {
			return ui, errors.New("zsync update information needs exactly one URL")
		}
		ui.FileURL = parts[1]
	case "gh-releases-zsync":
		if len(parts) != 5 {
			return ui, errors.New("gh-releases-zsync update information needs 5 fields")
		}
		ui.Username, ui.Repository, ui.ReleaseName, ui.Filename = parts[1], parts[2], parts[3], parts[4]
	case "bintray-zsync":
		if len(parts) != 5 {
			return ui, errors.New("bintray-zsync update information needs 5 fields")
		}
		ui.Username, ui.Repository, ui.PackageName, ui.Filename = parts[1], parts[2], parts[3], parts[4]
	default:
		return ui, fmt.Errorf("unknown transport mechanism %q", ui.TransportMechanism)
	}

	// Note that it is allowable to have something like "some.zsync?foo=bar", which is why we parse it as an URL
	u, err := url.Parse(parts[len(parts)-1])
	if err != nil {
		return ui, fmt.Errorf("cannot parse %s: %w", parts[len(parts)-1], err)
	}
	if ui.TransportMechanism == "zsync" && u.Scheme == "" {
		return ui, errors.New("scheme is missing, zsync needs e.g. http:// or https://")
	}
	if !strings.HasSuffix(u.Path, ".zsync") {
		return ui, errors.New(updateinformation + " does not end in .zsync")
	}
	return ui, nil
}

// ErrNoElfSection is returned by ElfSection when the section is absent.
var ErrNoElfSection = errors.New("no such ELF section")

// ElfSection returns the contents of the named section of the ELF file at
// the start of r.
func ElfSection(r io.ReaderAt, name string) ([]byte, error) {
	e, err := elf.NewFile(r)
	if err != nil {
		return nil, fmt.Errorf("elf: %w", err)
	}
	s := e.Section(name)
	if s == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoElfSection)
	}
	return s.Data()
}

// TrimNul cuts b at its first NUL byte and trims surrounding whitespace.
func TrimNul(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
