package goappimage

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"go.lsp.dev/uri"

	"github.com/probonopd/libappimage-go/internal/helpers"
)

// The functions in this file report failure through their return values
// only. They are meant for callers that treat any broken AppImage the
// same way, such as desktop integration scanning a directory.

// GetType returns 1 or 2 for type 1 and type 2 AppImages, -1 otherwise.
func GetType(path string) int {
	return int(DetectFormat(path))
}

// ListFiles returns the names of all entries, or an empty list if the
// AppImage cannot be read.
func ListFiles(path string) []string {
	ai, err := Open(path)
	if err != nil {
		helpers.LogError("ListFiles", err)
		return []string{}
	}
	defer ai.Close()
	files := []string{}
	for name, err := range ai.Names() {
		if err != nil {
			helpers.LogError("ListFiles", err)
			return []string{}
		}
		if name != "" {
			files = append(files, name)
		}
	}
	return files
}

// ReadFileFollowingSymlinks returns the contents of filePath inside the
// AppImage, and whether it could be read.
func ReadFileFollowingSymlinks(aiPath, filePath string) ([]byte, bool) {
	ai, err := Open(aiPath)
	if err != nil {
		helpers.LogError("ReadFileFollowingSymlinks", err)
		return nil, false
	}
	defer ai.Close()
	data, err := ai.ReadFile(filePath)
	if err != nil {
		helpers.LogError("ReadFileFollowingSymlinks", err)
		return nil, false
	}
	return data, true
}

// ExtractFileFollowingSymlinks writes the contents of filePath inside the
// AppImage to target, and reports whether it succeeded.
func ExtractFileFollowingSymlinks(aiPath, filePath, target string) bool {
	ai, err := Open(aiPath)
	if err != nil {
		helpers.LogError("ExtractFileFollowingSymlinks", err)
		return false
	}
	defer ai.Close()
	err = ai.ExtractFile(filePath, target, true)
	helpers.LogError("ExtractFileFollowingSymlinks", err)
	return err == nil
}

// ShallNotBeIntegrated returns a positive value if the AppImage's desktop
// file opts out of desktop integration, 0 if it does not and a negative
// value on error.
func ShallNotBeIntegrated(path string) int {
	return desktopFlag(path, "X-AppImage-Integrate", "false")
}

// IsTerminalApp returns a positive value if the AppImage's desktop file
// sets Terminal=true, 0 if not and a negative value on error.
func IsTerminalApp(path string) int {
	return desktopFlag(path, "Terminal", "true")
}

// desktopFlag reports whether key has value in the main desktop file. An
// AppImage without a desktop file has no flags set.
func desktopFlag(path, key, value string) int {
	ai, err := Open(path)
	if err != nil {
		helpers.LogError("desktop", err)
		return -1
	}
	defer ai.Close()
	d, err := ai.Desktop()
	if errors.Is(err, ErrNoDesktopFile) {
		return 0
	}
	if err != nil {
		helpers.LogError("desktop", err)
		return -1
	}
	if strings.EqualFold(strings.TrimSpace(d.Section(desktopSection).Key(key).Value()), value) {
		return 1
	}
	return 0
}

// GetMD5 returns the md5 of the file:// URI of path, as used for names in
// the desktop and thumbnail caches. It returns "" if path cannot be made
// absolute.
func GetMD5(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	hasher := md5.New()
	io.WriteString(hasher, strings.TrimSpace(string(uri.File(filepath.Clean(abs)))))
	return hex.EncodeToString(hasher.Sum(nil))
}

// DesktopFilePath is where desktop integration installs the desktop file
// of the AppImage at path.
func DesktopFilePath(path string) string {
	md5 := GetMD5(path)
	if md5 == "" {
		return ""
	}
	return filepath.Join(xdg.DataHome, "applications", "appimagekit_"+md5+".desktop")
}

// ThumbnailPath is where the normal size thumbnail of the AppImage at path
// is cached.
func ThumbnailPath(path string) string {
	md5 := GetMD5(path)
	if md5 == "" {
		return ""
	}
	return filepath.Join(xdg.CacheHome, "thumbnails", "normal", md5+".png")
}

// IsRegisteredInSystem reports whether a desktop file for the AppImage at
// path is installed.
func IsRegisteredInSystem(path string) bool {
	p := DesktopFilePath(path)
	if p == "" {
		return false
	}
	_, err := os.Stat(p)
	return err == nil
}
