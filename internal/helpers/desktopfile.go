package helpers

import (
	"errors"
	"path/filepath"
	"strings"

	"gopkg.in/ini.v1"
)

// CheckDesktopEntry checks that the Desktop Entry section of d carries the
// keys an AppImage needs, and an icon name without a path or suffix.
func CheckDesktopEntry(d *ini.File) error {
	section, err := d.GetSection("Desktop Entry")
	if err != nil {
		return errors.New("desktop file has no [Desktop Entry] section")
	}
	neededKeys := []string{"Categories", "Name", "Exec", "Type", "Icon"}
	for _, k := range neededKeys {
		if !section.HasKey(k) {
			return errors.New(".desktop file is missing a '" + k + "'= key")
		}
	}

	iconname := section.Key("Icon").String()
	if strings.Contains(iconname, "/") {
		return errors.New("desktop file contains Icon= entry with a path")
	}
	switch filepath.Ext(iconname) {
	case ".png", ".svg", ".svgz", ".xpm":
		return errors.New("desktop file contains Icon= entry with a suffix, please remove the suffix")
	}
	return nil
}
