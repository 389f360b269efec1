package goappimage

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probonopd/libappimage-go/internal/iso9660"
	"github.com/probonopd/libappimage-go/internal/iso9660/isotest"
)

// recordReader replays a fixed list of records.
type recordReader struct {
	hdrs   []*iso9660.Header
	data   map[string]string
	pos    int
	err    error
	closed bool
}

func (r *recordReader) Next() (*iso9660.Header, error) {
	if r.pos == len(r.hdrs) {
		if r.err != nil {
			return nil, r.err
		}
		return nil, io.EOF
	}
	r.pos++
	return r.hdrs[r.pos-1], nil
}

func (r *recordReader) Data() *io.SectionReader {
	d := r.data[r.hdrs[r.pos-1].Name]
	return io.NewSectionReader(strings.NewReader(d), 0, int64(len(d)))
}

func (r *recordReader) Close() error {
	r.closed = true
	return nil
}

func physicalRecords() *recordReader {
	return &recordReader{
		hdrs: []*iso9660.Header{
			{Name: ".", Mode: fs.ModeDir | 0755},
			{Name: "./a.txt", Mode: 0644, Size: 1},
			{Name: "./b.txt", Mode: 0644, Size: 2},
		},
		data: map[string]string{"./a.txt": "a", "./b.txt": "bb"},
	}
}

func TestType1SkipsRootAndStripsPrefix(t *testing.T) {
	rdr := physicalRecords()
	tr := newType1Traversal("test", rdr)
	var names []string
	for {
		require.NoError(t, tr.next())
		if tr.completed() {
			break
		}
		names = append(names, tr.name())
	}
	assert.Equal(t, []string{"a.txt", "b.txt"}, names)
	assert.Equal(t, "", tr.name())

	require.NoError(t, tr.next())
	assert.True(t, tr.completed(), "completed stays true")

	require.NoError(t, tr.close())
	assert.True(t, rdr.closed)
}

func TestType1CloseBeforeCompletion(t *testing.T) {
	rdr := physicalRecords()
	tr := newType1Traversal("test", rdr)
	require.NoError(t, tr.next())
	require.NoError(t, tr.close())
	assert.True(t, rdr.closed)
}

func TestType1ReadFailure(t *testing.T) {
	rdr := physicalRecords()
	rdr.err = errors.New("bad sector")
	tr := newType1Traversal("test", rdr)
	require.NoError(t, tr.next())
	require.NoError(t, tr.next())
	err := tr.next()
	var re *ReadError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "test", re.Path)
	assert.False(t, tr.completed())
}

func TestType1ExtractAndReadAgree(t *testing.T) {
	tr := newType1Traversal("test", physicalRecords())
	require.NoError(t, tr.next())
	require.NoError(t, tr.next())
	require.Equal(t, "b.txt", tr.name())

	target := filepath.Join(t.TempDir(), "x", "y", "b.txt")
	require.NoError(t, tr.extract(target))
	require.NoError(t, tr.extract(target))
	onDisk, err := os.ReadFile(target)
	require.NoError(t, err)

	rc, err := tr.open()
	require.NoError(t, err)
	read, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "bb", string(onDisk))
	assert.Equal(t, onDisk, read)
}

func type1Fixture(t *testing.T) string {
	t.Helper()
	return isotest.WriteAppImage(t, t.TempDir(), []isotest.Entry{
		{Path: "AppRun", Data: []byte("#!/bin/sh\nexec usr/bin/app\n"), Perm: 0755},
		{Path: "app.desktop", Data: []byte("[Desktop Entry]\nName=Test App\nExec=app %F\nIcon=app\nTerminal=true\nCategories=Utility;\n")},
		{Path: "app.png", Data: []byte("\x89PNG")},
		{Path: ".DirIcon", Linkname: "app.png"},
		{Path: "usr/bin/app", Data: []byte("binary"), Perm: 0755},
		{Path: "usr/lib/libapp.so.1", Data: []byte("library")},
		{Path: "usr/lib/libapp.so", Linkname: "libapp.so.1"},
		{Path: "usr/share/doc", Dir: true},
		{Path: "usr/share/app/icon.png", Linkname: "../../../app.png"},
		{Path: "passwd", Linkname: "/etc/passwd"},
		{Path: "escape", Linkname: "../outside"},
	})
}

func TestType1AppImage(t *testing.T) {
	p := type1Fixture(t)
	assert.Equal(t, Format1, DetectFormat(p))

	ai, err := Open(p)
	require.NoError(t, err)
	defer ai.Close()
	assert.Equal(t, Format1, ai.Format())

	want := []string{
		".DirIcon",
		"AppRun",
		"app.desktop",
		"app.png",
		"escape",
		"passwd",
		"usr",
		"usr/bin",
		"usr/bin/app",
		"usr/lib",
		"usr/lib/libapp.so",
		"usr/lib/libapp.so.1",
		"usr/share",
		"usr/share/app",
		"usr/share/app/icon.png",
		"usr/share/doc",
	}
	assert.Equal(t, want, collect(t, ai))
	assert.Equal(t, want, collect(t, ai), "a second pass sees the same entries")

	data, err := ai.ReadFile("usr/lib/libapp.so")
	require.NoError(t, err)
	assert.Equal(t, "library", string(data))

	data, err = ai.ReadFile("/usr/share/app/icon.png")
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(data))

	_, err = ai.ReadFile("passwd")
	var se *SymlinkResolutionError
	assert.ErrorAs(t, err, &se)

	_, err = ai.ReadFile("escape")
	assert.ErrorAs(t, err, &se)

	_, err = ai.ReadFile("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = ai.ReadFile("usr/share")
	var re *ReadError
	assert.ErrorAs(t, err, &re)
}

func TestType1IteratorReadFollowsSymlinks(t *testing.T) {
	ai, err := Open(type1Fixture(t))
	require.NoError(t, err)
	defer ai.Close()

	it, err := ai.Files()
	require.NoError(t, err)
	defer it.Close()
	dest := t.TempDir()
	seen := 0
	for it.Next() {
		if it.Type() != TypeRegular {
			continue
		}
		seen++
		target := filepath.Join(dest, filepath.FromSlash(it.Name()))
		require.NoError(t, it.ExtractTo(target))
		rc, err := it.Read()
		require.NoError(t, err)
		read, err := io.ReadAll(rc)
		require.NoError(t, err)
		onDisk, err := os.ReadFile(target)
		require.NoError(t, err)
		assert.Equal(t, read, onDisk, it.Name())
		info, err := os.Stat(target)
		require.NoError(t, err)
		assert.Equal(t, fs.FileMode(0644), info.Mode().Perm())
	}
	require.NoError(t, it.Err())
	assert.Equal(t, 5, seen)
	assert.True(t, it.Done())
}

func TestOpenType1NotISO(t *testing.T) {
	p := filepath.Join(t.TempDir(), "broken.AppImage")
	data := make([]byte, 64*1024)
	copy(data, isotest.AppImageSystemArea())
	require.NoError(t, os.WriteFile(p, data, 0755))

	_, err := Open(p)
	var re *ReadError
	require.ErrorAs(t, err, &re)
	assert.ErrorIs(t, err, iso9660.ErrNotISO9660)
}

func TestOpenType1CorruptDirectory(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(img []byte)
	}{
		{"root record name overruns the record", func(img []byte) {
			img[18*iso9660.SectorSize+32] = 200
		}},
		{"root extent larger than the image", func(img []byte) {
			copy(img[16*iso9660.SectorSize+156+10:], []byte{0xF0, 0xFF, 0xFF, 0xFF})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := type1Fixture(t)
			img, err := os.ReadFile(p)
			require.NoError(t, err)
			tt.corrupt(img)
			require.NoError(t, os.WriteFile(p, img, 0755))
			require.Equal(t, Format1, DetectFormat(p))

			var re *ReadError
			ai, err := Open(p)
			if err == nil {
				defer ai.Close()
				_, err = ai.ReadFile("AppRun")
			}
			assert.ErrorAs(t, err, &re)
		})
	}
}
