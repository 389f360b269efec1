package helpers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/ini.v1"

	"github.com/probonopd/libappimage-go/internal/helpers"
)

func TestParseUpdateInformation(t *testing.T) {
	tests := []struct {
		in      string
		want    helpers.UpdateInformation
		wantErr bool
	}{
		{
			in: "gh-releases-zsync|probonopd|go-appimage|continuous|appimagetool-*x86_64.AppImage.zsync",
			want: helpers.UpdateInformation{
				TransportMechanism: "gh-releases-zsync",
				Username:           "probonopd",
				Repository:         "go-appimage",
				ReleaseName:        "continuous",
				Filename:           "appimagetool-*x86_64.AppImage.zsync",
			},
		},
		{
			in:   "zsync|https://example.com/App.AppImage.zsync?channel=beta",
			want: helpers.UpdateInformation{TransportMechanism: "zsync", FileURL: "https://example.com/App.AppImage.zsync?channel=beta"},
		},
		{
			in: "bintray-zsync|user|repo|pkg|App-_latestVersion-x86_64.AppImage.zsync",
			want: helpers.UpdateInformation{
				TransportMechanism: "bintray-zsync",
				Username:           "user",
				Repository:         "repo",
				PackageName:        "pkg",
				Filename:           "App-_latestVersion-x86_64.AppImage.zsync",
			},
		},
		{in: "zsync|example.com/App.AppImage.zsync", wantErr: true},
		{in: "zsync|https://example.com/App.AppImage", wantErr: true},
		{in: "gh-releases-zsync|probonopd|go-appimage", wantErr: true},
		{in: "rsync|host:/App.AppImage.zsync", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := helpers.ParseUpdateInformation(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrimNul(t *testing.T) {
	assert.Equal(t, "zsync|x", helpers.TrimNul([]byte("zsync|x\x00\x00\x00garbage")))
	assert.Equal(t, "", helpers.TrimNul(make([]byte, 512)))
	assert.Equal(t, "a", helpers.TrimNul([]byte(" a \n")))
}

func TestCheckDesktopEntry(t *testing.T) {
	valid := "[Desktop Entry]\nType=Application\nName=App\nExec=app %F\nIcon=app\nCategories=Utility;\n"
	tests := []struct {
		name    string
		desktop string
		wantErr string
	}{
		{"valid", valid, ""},
		{"no section", "[Other]\nName=App\n", "no [Desktop Entry] section"},
		{"missing key", "[Desktop Entry]\nType=Application\nName=App\nExec=app\nIcon=app\n", "'Categories'"},
		{"icon path", "[Desktop Entry]\nType=Application\nName=App\nExec=app\nIcon=/usr/share/app.png\nCategories=Utility;\n", "with a path"},
		{"icon suffix", "[Desktop Entry]\nType=Application\nName=App\nExec=app\nIcon=app.svg\nCategories=Utility;\n", "with a suffix"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true}, []byte(tt.desktop))
			require.NoError(t, err)
			err = helpers.CheckDesktopEntry(d)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
