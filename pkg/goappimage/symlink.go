package goappimage

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// maxSymlinkHops matches the Linux limit on nested symlinks (ELOOP).
const maxSymlinkHops = 40

// resolveSymlink follows the symlink name, pointing at linkname, until it
// reaches an entry that is not a symlink. Targets are resolved relative to
// the directory of the link and must stay inside the AppImage. Symlinked
// directories on the way are followed too.
func resolveSymlink(b backend, name, linkname string) (*entry, error) {
	r := &resolver{b: b, entry: name, link: linkname}
	target, err := r.expand(name, linkname)
	if err != nil {
		return nil, err
	}
	return r.follow(target)
}

// followPath looks up name, which was not found as written, through the
// symlinked directories among its parents.
func followPath(b backend, name string) (*entry, error) {
	r := &resolver{b: b, entry: name}
	target, ok, err := r.expandParent(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return r.follow(target)
}

type resolver struct {
	b backend
	// entry and link name the symlink being resolved, for errors.
	entry string
	link  string
	hops  int
}

func (r *resolver) fail(format string, v ...any) error {
	return &SymlinkResolutionError{Entry: r.entry, Linkname: r.link, Reason: fmt.Sprintf(format, v...)}
}

// expand returns the path the symlink name points to.
func (r *resolver) expand(name, linkname string) (string, error) {
	r.hops++
	if r.hops > maxSymlinkHops {
		return "", r.fail("too many levels of symbolic links")
	}
	if linkname == "" {
		return "", r.fail("%s has an empty target", name)
	}
	if path.IsAbs(linkname) {
		return "", r.fail("%s points outside the AppImage to absolute path %s", name, linkname)
	}
	target := path.Join(path.Dir(name), linkname)
	if target == ".." || strings.HasPrefix(target, "../") {
		return "", r.fail("%s points outside the AppImage", name)
	}
	return target, nil
}

// follow looks up p until it names an entry that is not a symlink.
func (r *resolver) follow(p string) (*entry, error) {
	for {
		if p == "." {
			return &entry{name: ".", typ: TypeDirectory}, nil
		}
		e, err := r.b.lookup(p)
		switch {
		case err == nil && e.typ != TypeSymlink:
			return e, nil
		case err == nil:
			if p, err = r.expand(p, e.linkname); err != nil {
				return nil, err
			}
		case errors.Is(err, ErrNotFound):
			next, ok, err := r.expandParent(p)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, r.fail("%s does not exist", p)
			}
			p = next
		default:
			return nil, err
		}
	}
}

// expandParent replaces the first symlinked directory in p by its target.
// It reports false when no parent of p is a symlink.
func (r *resolver) expandParent(p string) (string, bool, error) {
	parts := strings.Split(p, "/")
	for i := 1; i < len(parts); i++ {
		dir := strings.Join(parts[:i], "/")
		e, err := r.b.lookup(dir)
		if errors.Is(err, ErrNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, err
		}
		switch e.typ {
		case TypeDirectory:
		case TypeSymlink:
			target, err := r.expand(dir, e.linkname)
			if err != nil {
				return "", false, err
			}
			return path.Join(target, strings.Join(parts[i:], "/")), true, nil
		default:
			return "", false, r.fail("%s is not a directory", dir)
		}
	}
	return "", false, nil
}

// cleanName turns a caller supplied path into the form entries are named by.
func cleanName(name string) string {
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}
