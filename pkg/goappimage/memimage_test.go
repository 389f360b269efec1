package goappimage

import (
	"io"
	"io/fs"
	"path"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// memImage is an inodeImage held in memory.
type memImage struct {
	nodes   map[string]*memNode
	statErr map[string]error
	closed  bool
}

type memNode struct {
	typ      FileType
	data     string
	link     string
	children []string
}

// newMemImage builds an image from slash separated paths. Names ending in
// "/" are directories, values starting with "->" are symlinks, anything
// else is the content of a regular file. Parents are added as needed and
// children keep the order they are given in.
func newMemImage(entries ...[2]string) *memImage {
	m := &memImage{
		nodes:   map[string]*memNode{".": {typ: TypeDirectory}},
		statErr: map[string]error{},
	}
	for _, e := range entries {
		name, value := e[0], e[1]
		n := &memNode{typ: TypeRegular, data: value}
		switch {
		case strings.HasSuffix(name, "/"):
			name = strings.TrimSuffix(name, "/")
			n = &memNode{typ: TypeDirectory}
		case strings.HasPrefix(value, "->"):
			n = &memNode{typ: TypeSymlink, link: strings.TrimPrefix(value, "->")}
		}
		m.add(name, n)
	}
	return m
}

func (m *memImage) add(name string, n *memNode) {
	if _, ok := m.nodes[name]; ok {
		return
	}
	dir := path.Dir(name)
	if _, ok := m.nodes[dir]; !ok {
		m.add(dir, &memNode{typ: TypeDirectory})
	}
	m.nodes[dir].children = append(m.nodes[dir].children, path.Base(name))
	m.nodes[name] = n
}

func (m *memImage) node(name string) (*memNode, error) {
	if err := m.statErr[name]; err != nil {
		return nil, err
	}
	n, ok := m.nodes[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return n, nil
}

func (m *memImage) stat(name string) (inodeStat, error) {
	n, err := m.node(name)
	if err != nil {
		return inodeStat{}, err
	}
	st := inodeStat{typ: n.typ}
	switch n.typ {
	case TypeRegular:
		st.size, st.mode = int64(len(n.data)), 0644
	case TypeDirectory:
		st.mode = fs.ModeDir | 0755
	case TypeSymlink:
		st.mode = fs.ModeSymlink | 0777
	}
	return st, nil
}

func (m *memImage) children(name string) ([]string, error) {
	n, err := m.node(name)
	if err != nil {
		return nil, err
	}
	return n.children, nil
}

func (m *memImage) readlink(name string) (string, error) {
	n, err := m.node(name)
	if err != nil {
		return "", err
	}
	return n.link, nil
}

func (m *memImage) open(name string) (io.ReadCloser, error) {
	n, err := m.node(name)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(n.data)), nil
}

func (m *memImage) close() error {
	m.closed = true
	return nil
}

func (m *memImage) names() []string {
	var out []string
	for name := range m.nodes {
		if name != "." {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// openMem opens img as a type 2 AppImage.
func openMem(t *testing.T, img *memImage) *AppImage {
	t.Helper()
	ai, err := newAppImage("Mem-x86_64.AppImage", Format2, &type2Backend{path: "Mem-x86_64.AppImage", img: img}, newOptions(nil))
	require.NoError(t, err)
	t.Cleanup(func() { ai.Close() })
	return ai
}

func collect(t *testing.T, ai *AppImage) []string {
	t.Helper()
	var out []string
	for name, err := range ai.Names() {
		require.NoError(t, err)
		out = append(out, name)
	}
	return out
}
