package goappimage

import (
	"bytes"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probonopd/libappimage-go/internal/iso9660/isotest"
)

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0755))
	return p
}

func withMagic(offset int, magic string, size int) []byte {
	b := make([]byte, size)
	copy(b[offset:], magic)
	return b
}

func TestDetectFormat(t *testing.T) {
	legacy, err := isotest.Build([]isotest.Entry{{Path: "a", Data: []byte("a")}}, isotest.Options{SystemArea: []byte("\x7fELF")})
	require.NoError(t, err)
	plainISO, err := isotest.Build([]isotest.Entry{{Path: "a", Data: []byte("a")}}, isotest.Options{})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"type 2 magic", withMagic(8, "AI\x02", 1024), Format2},
		{"type 1 magic", withMagic(8, "AI\x01", 1024), Format1},
		{"ELF and ISO 9660", legacy, Format1},
		{"ISO 9660 without ELF", plainISO, FormatUnknown},
		{"ELF only", withMagic(0, "\x7fELF\x02\x01\x01", 40000), FormatUnknown},
		{"empty", nil, FormatUnknown},
		{"short", []byte("\x7fELF\x02\x01\x01\x00A"), FormatUnknown},
		{"text", []byte("#!/bin/sh\necho hello\n"), FormatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := writeTemp(t, "file", tt.data)
			assert.Equal(t, tt.want, DetectFormat(p))
			assert.Equal(t, tt.want, DetectFormat(p), "detection is repeatable")
		})
	}

	assert.Equal(t, FormatUnknown, DetectFormat(t.TempDir()))
	assert.Equal(t, FormatUnknown, DetectFormat(filepath.Join(t.TempDir(), "missing")))
}

func TestOpenUnknownFormat(t *testing.T) {
	p := writeTemp(t, "notes.txt", []byte("not an AppImage"))
	ai, err := Open(p)
	assert.Nil(t, ai)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, p, fe.Path)
}

func TestOpenBrokenType2(t *testing.T) {
	p := writeTemp(t, "broken.AppImage", withMagic(8, "AI\x02", 4096))
	_, err := Open(p)
	var re *ReadError
	assert.ErrorAs(t, err, &re)
}

func TestOpenLogsWhenVerbose(t *testing.T) {
	var buf bytes.Buffer
	p := type1Fixture(t)
	ai, err := Open(p, WithVerbose(true), WithLogger(log.New(&buf, "", 0)))
	require.NoError(t, err)
	require.NoError(t, ai.Close())
	assert.Equal(t, "Opening "+p+" as Type 1 AppImage\nClosing "+p+"\n", buf.String())

	buf.Reset()
	ai, err = Open(p, WithLogger(log.New(&buf, "", 0)))
	require.NoError(t, err)
	require.NoError(t, ai.Close())
	assert.Empty(t, buf.String())
}

func TestFilesAreIndependent(t *testing.T) {
	ai := openMem(t, scenarioImage())

	first, err := ai.Files()
	require.NoError(t, err)
	require.True(t, first.Next())
	assert.Equal(t, "a.txt", first.Name())

	second, err := ai.Files()
	require.NoError(t, err)
	var names []string
	for second.Next() {
		names = append(names, second.Name())
	}
	assert.Equal(t, []string{"a.txt", "dir", "link"}, names)

	require.True(t, first.Next())
	assert.Equal(t, "dir", first.Name(), "first iterator is unaffected by the second")
	require.NoError(t, first.Close())
	require.NoError(t, second.Close())

	third, err := ai.Files()
	require.NoError(t, err)
	defer third.Close()
	assert.True(t, third.Next(), "exhausted sessions do not leak into new iterators")
}

func TestDoneIsMonotonic(t *testing.T) {
	ai := openMem(t, scenarioImage())
	it, err := ai.Files()
	require.NoError(t, err)
	defer it.Close()

	assert.False(t, it.Done())
	for it.Next() {
		assert.False(t, it.Done(), it.Name())
	}
	assert.True(t, it.Done())
	assert.Equal(t, "", it.Name())
	for i := 0; i < 3; i++ {
		assert.False(t, it.Next())
		assert.True(t, it.Done())
	}
	_, err = it.Read()
	var re *ReadError
	assert.ErrorAs(t, err, &re)
}

func TestEmptyAppImage(t *testing.T) {
	ai := openMem(t, newMemImage())
	it, err := ai.Files()
	require.NoError(t, err)
	defer it.Close()
	assert.False(t, it.Next())
	assert.True(t, it.Done())
	assert.NoError(t, it.Err())
}

func TestNamesStopsEarly(t *testing.T) {
	ai := openMem(t, scenarioImage())
	for name, err := range ai.Names() {
		require.NoError(t, err)
		assert.Equal(t, "a.txt", name)
		break
	}
	assert.Empty(t, ai.sessions, "breaking out of Names releases its iterator")
}

func TestClose(t *testing.T) {
	img := scenarioImage()
	ai := openMem(t, img)
	it, err := ai.Files()
	require.NoError(t, err)
	require.True(t, it.Next())

	require.NoError(t, ai.Close())
	assert.True(t, img.closed)
	assert.False(t, it.Next())
	assert.True(t, it.Done())
	require.NoError(t, ai.Close())

	_, err = ai.Files()
	assert.ErrorIs(t, err, ErrClosed)
	_, err = ai.ReadFile("a.txt")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestExtractAll(t *testing.T) {
	ai, err := Open(type1Fixture(t))
	require.NoError(t, err)
	defer ai.Close()

	dest := filepath.Join(t.TempDir(), "squashfs-root")
	var seen []string
	require.NoError(t, ai.ExtractAll(dest, func(name string) { seen = append(seen, name) }))
	assert.Len(t, seen, 16)

	b, err := os.ReadFile(filepath.Join(dest, "usr", "bin", "app"))
	require.NoError(t, err)
	assert.Equal(t, "binary", string(b))

	link, err := os.Readlink(filepath.Join(dest, "passwd"))
	require.NoError(t, err)
	assert.Equal(t, "/etc/passwd", link, "symlinks are stored, not followed")

	b, err = os.ReadFile(filepath.Join(dest, "usr", "lib", "libapp.so"))
	require.NoError(t, err)
	assert.Equal(t, "library", string(b))

	info, err := os.Stat(filepath.Join(dest, "usr", "share", "doc"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Extracting again over the existing tree replaces its contents
	require.NoError(t, ai.ExtractAll(dest, nil))
}

func TestExtractAllStaysInsideDest(t *testing.T) {
	outside := t.TempDir()
	// A crafted image that lists "lib/evil" after a symlink named "lib".
	img := newMemImage([2]string{"lib", "->" + outside})
	img.nodes["."].children = append(img.nodes["."].children, "lib/evil")
	img.nodes["lib/evil"] = &memNode{typ: TypeRegular, data: "pwned"}
	ai := openMem(t, img)

	dest := t.TempDir()
	require.NoError(t, ai.ExtractAll(dest, nil))
	ents, err := os.ReadDir(outside)
	require.NoError(t, err)
	assert.Empty(t, ents, "nothing is written outside dest")

	b, err := os.ReadFile(filepath.Join(dest, outside, "evil"))
	require.NoError(t, err)
	assert.Equal(t, "pwned", string(b))
}

func TestDesktop(t *testing.T) {
	ai, err := Open(type1Fixture(t))
	require.NoError(t, err)
	defer ai.Close()

	d, err := ai.Desktop()
	require.NoError(t, err)
	assert.Equal(t, "Test App", d.Section("Desktop Entry").Key("Name").Value())
	assert.Equal(t, "Utility;", d.Section("Desktop Entry").Key("Categories").Value())
	assert.Equal(t, "Test App", ai.Name())

	rc, name, err := ai.Icon()
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "app.png", name)
	assert.Equal(t, "\x89PNG", string(b))

	rc, err = ai.Thumbnail()
	require.NoError(t, err)
	b, err = io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "\x89PNG", string(b))

	assert.False(t, ai.ModTime().IsZero())
}

func TestNameWithoutDesktopFile(t *testing.T) {
	img := scenarioImage()
	ai, err := newAppImage("/opt/Some_Tool-1.2-x86_64.AppImage", Format2, &type2Backend{path: "x", img: img}, newOptions(nil))
	require.NoError(t, err)
	defer ai.Close()
	_, err = ai.Desktop()
	assert.ErrorIs(t, err, ErrNoDesktopFile)
	assert.Equal(t, "Some Tool 1.2", ai.Name())
}

func TestIsMainDesktopFile(t *testing.T) {
	assert.True(t, isMainDesktopFile("app.desktop"))
	assert.False(t, isMainDesktopFile("usr/share/applications/app.desktop"))
	assert.False(t, isMainDesktopFile("AppRun"))
}
