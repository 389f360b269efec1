package goappimage

import (
	"errors"
	"io"
	"strings"

	"gopkg.in/ini.v1"
)

const desktopSection = "Desktop Entry"

// Desktop returns the main desktop file of the AppImage: the first
// .desktop file in its root directory.
func (ai *AppImage) Desktop() (*ini.File, error) {
	var desk string
	for name, err := range ai.Names() {
		if err != nil {
			return nil, err
		}
		if isMainDesktopFile(name) {
			desk = name
			break
		}
	}
	if desk == "" {
		return nil, ErrNoDesktopFile
	}
	data, err := ai.ReadFile(desk)
	if err != nil {
		return nil, err
	}
	// Exec and Categories lines carry ";" and "#" as part of their values
	return ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, data)
}

func isMainDesktopFile(name string) bool {
	return strings.Contains(name, ".desktop") && !strings.Contains(name, "/")
}

// Name is the Name of the AppImage's desktop file, or a name derived
// from the file name if there is none.
func (ai *AppImage) Name() string {
	if d, err := ai.Desktop(); err == nil {
		if name := d.Section(desktopSection).Key("Name").Value(); name != "" {
			return name
		}
	}
	return ai.calculateNiceName()
}

// Thumbnail returns the contents of the AppImage's .DirIcon.
func (ai *AppImage) Thumbnail() (io.ReadCloser, error) {
	return ai.Open(".DirIcon")
}

// Icon returns the icon named by the desktop file, looked up in the root
// of the AppImage, together with the name of the file it was read from.
func (ai *AppImage) Icon() (io.ReadCloser, string, error) {
	d, err := ai.Desktop()
	if err != nil {
		return nil, "", err
	}
	icon := d.Section(desktopSection).Key("Icon").Value()
	if icon == "" {
		return nil, "", errors.New("desktop file doesn't specify an icon")
	}
	candidates := []string{icon + ".png", icon + ".svg"}
	if strings.HasSuffix(icon, ".png") || strings.HasSuffix(icon, ".svg") {
		candidates = append([]string{icon}, candidates...)
	}
	for _, name := range candidates {
		rc, err := ai.Open(name)
		if err == nil {
			return rc, name, nil
		}
	}
	return nil, "", errors.New("cannot find the AppImage's icon: " + icon)
}
