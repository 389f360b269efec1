package goappimage

import (
	"errors"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"

	"github.com/probonopd/libappimage-go/internal/helpers"
)

const (
	filePerm fs.FileMode = 0644
	dirPerm  fs.FileMode = 0755
)

// writeFile writes the contents of r to target, replacing whatever file or
// symlink is there.
func writeFile(target string, r io.Reader) error {
	if err := helpers.CreateParentDirectories(target); err != nil {
		return err
	}
	if err := removeSymlink(target); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|unix.O_NOFOLLOW, filePerm)
	if err != nil {
		return err
	}
	if err = f.Chmod(filePerm); err != nil {
		f.Close()
		return err
	}
	if _, err = io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func makeDir(target string) error {
	if err := removeSymlink(target); err != nil {
		return err
	}
	return os.MkdirAll(target, dirPerm)
}

func makeSymlink(target, linkname string) error {
	if err := helpers.CreateParentDirectories(target); err != nil {
		return err
	}
	info, err := os.Lstat(target)
	switch {
	case err == nil && info.IsDir():
		return &fs.PathError{Op: "symlink", Path: target, Err: errIsDir}
	case err == nil:
		if err = os.Remove(target); err != nil {
			return err
		}
	case !errors.Is(err, fs.ErrNotExist):
		return err
	}
	return os.Symlink(linkname, target)
}

func removeSymlink(target string) error {
	info, err := os.Lstat(target)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return os.Remove(target)
	}
	return nil
}
