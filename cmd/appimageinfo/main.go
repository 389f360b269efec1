package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

// commit is set with -ldflags "-X main.commit=..."
var commit string

func main() {
	version := commit
	if version == "" {
		version = "unsupported custom build"
	}

	app := &cli.App{
		Name:    "appimageinfo",
		Version: version,
		Usage:   "Inspect and extract the contents of AppImages without mounting them",
	}

	app.Commands = []*cli.Command{
		{
			Name:      "type",
			Usage:     "Print the AppImage type (1 or 2) of each file",
			ArgsUsage: "<appimage>...",
			Action:    typeCmd,
		},
		{
			Name:      "list",
			Usage:     "List the entries of an AppImage",
			ArgsUsage: "<appimage>",
			Action:    listCmd,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:    "long",
					Aliases: []string{"l"},
					Usage:   "Show type, size and symlink targets",
				},
			},
		},
		{
			Name:      "cat",
			Usage:     "Write the contents of a file in an AppImage to stdout, following symlinks",
			ArgsUsage: "<appimage> <file>",
			Action:    catCmd,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "force",
					Usage: "Write to stdout even if it is a terminal",
				},
			},
		},
		{
			Name:      "extract",
			Usage:     "Extract a single entry of an AppImage",
			ArgsUsage: "<appimage> <file> <target>",
			Action:    extractCmd,
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "follow",
					Usage: "Extract the file a symlink points to instead of the symlink",
				},
			},
		},
		{
			Name:      "extract-all",
			Usage:     "Extract all entries of an AppImage into a directory",
			ArgsUsage: "<appimage> <directory>",
			Action:    extractAllCmd,
		},
		{
			Name:      "icon",
			Usage:     "Extract the .DirIcon of an AppImage, following symlinks",
			ArgsUsage: "<appimage> <target>",
			Action:    iconCmd,
		},
		{
			Name:      "md5",
			Usage:     "Print the md5 used to name desktop files and thumbnails of an AppImage",
			ArgsUsage: "<appimage>",
			Action:    md5Cmd,
		},
		{
			Name:      "desktop",
			Usage:     "Print the main desktop file of an AppImage and its integration settings",
			ArgsUsage: "<appimage>",
			Action:    desktopCmd,
		},
	}

	app.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Log what is being opened and closed",
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
