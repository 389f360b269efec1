package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v2"

	"github.com/probonopd/libappimage-go/internal/helpers"
	"github.com/probonopd/libappimage-go/pkg/goappimage"
)

func open(c *cli.Context) (*goappimage.AppImage, error) {
	return goappimage.Open(c.Args().Get(0), goappimage.WithVerbose(c.Bool("verbose")))
}

func requireArgs(c *cli.Context, n int) error {
	if c.NArg() != n {
		return fmt.Errorf("%s takes %d arguments: %s", c.Command.Name, n, c.Command.ArgsUsage)
	}
	return nil
}

func typeCmd(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("please specify at least one file")
	}
	for _, p := range c.Args().Slice() {
		format := goappimage.DetectFormat(p)
		if format == goappimage.Format2 {
			fmt.Printf("%s: %s (squashfs at offset %d)\n", p, format, helpers.CalculateElfSize(p))
			continue
		}
		fmt.Printf("%s: %s\n", p, format)
	}
	return nil
}

func listCmd(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	ai, err := open(c)
	if err != nil {
		return err
	}
	defer ai.Close()
	it, err := ai.Files()
	if err != nil {
		return err
	}
	defer it.Close()
	for it.Next() {
		if !c.Bool("long") {
			fmt.Println(it.Name())
			continue
		}
		switch it.Type() {
		case goappimage.TypeRegular:
			fmt.Printf("%-9s %8s  %s\n", it.Type(), humanize.IBytes(uint64(it.Size())), it.Name())
		case goappimage.TypeSymlink:
			fmt.Printf("%-9s %8s  %s -> %s\n", it.Type(), "", it.Name(), it.Linkname())
		default:
			fmt.Printf("%-9s %8s  %s\n", it.Type(), "", it.Name())
		}
	}
	return it.Err()
}

func catCmd(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	if isatty.IsTerminal(os.Stdout.Fd()) && !c.Bool("force") {
		return errors.New("refusing to write file contents to a terminal, use --force")
	}
	ai, err := open(c)
	if err != nil {
		return err
	}
	defer ai.Close()
	rc, err := ai.Open(c.Args().Get(1))
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(os.Stdout, rc)
	return err
}

func extractCmd(c *cli.Context) error {
	if err := requireArgs(c, 3); err != nil {
		return err
	}
	ai, err := open(c)
	if err != nil {
		return err
	}
	defer ai.Close()
	target := c.Args().Get(2)
	if helpers.Exists(target) {
		helpers.LogError("extract", fmt.Errorf("%s exists and will be replaced", target))
	}
	return ai.ExtractFile(c.Args().Get(1), target, c.Bool("follow"))
}

func extractAllCmd(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	ai, err := open(c)
	if err != nil {
		return err
	}
	defer ai.Close()

	onEntry := func(string) {}
	if isatty.IsTerminal(os.Stderr.Fd()) {
		count := 0
		for _, err := range ai.Names() {
			if err != nil {
				return err
			}
			count++
		}
		bar := progressbar.NewOptions(count,
			progressbar.OptionSetDescription("extracting"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(20),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Finish()
		onEntry = func(string) { bar.Add(1) }
	} else if c.Bool("verbose") {
		onEntry = func(name string) { fmt.Fprintln(os.Stderr, name) }
	}
	return ai.ExtractAll(c.Args().Get(1), onEntry)
}

func iconCmd(c *cli.Context) error {
	if err := requireArgs(c, 2); err != nil {
		return err
	}
	ai, err := open(c)
	if err != nil {
		return err
	}
	defer ai.Close()
	data, err := ai.ReadFile(".DirIcon")
	if err != nil {
		return err
	}
	switch helpers.IconFormat(data) {
	case "png":
	case "svg":
		log.Println(".DirIcon in", ai.Path, "is an SVG, this is discouraged")
	default:
		return fmt.Errorf(".DirIcon in %s is neither PNG nor SVG", ai.Path)
	}
	return ai.ExtractFile(".DirIcon", c.Args().Get(1), true)
}

func md5Cmd(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	p := c.Args().Get(0)
	md5 := goappimage.GetMD5(p)
	if md5 == "" {
		return fmt.Errorf("cannot compute md5 of %s", p)
	}
	fmt.Println(md5)
	return nil
}

func desktopCmd(c *cli.Context) error {
	if err := requireArgs(c, 1); err != nil {
		return err
	}
	ai, err := open(c)
	if err != nil {
		return err
	}
	defer ai.Close()
	d, err := ai.Desktop()
	if err != nil {
		return err
	}
	if _, err = d.WriteTo(os.Stdout); err != nil {
		return err
	}
	p := c.Args().Get(0)
	fmt.Println()
	valid := "yes"
	if err = helpers.CheckDesktopEntry(d); err != nil {
		valid = err.Error()
	}
	fmt.Println("# Name:", ai.Name())
	fmt.Println("# Valid:", valid)
	fmt.Println("# Built:", humanize.Time(ai.ModTime()))
	fmt.Println("# Terminal:", goappimage.IsTerminalApp(p) > 0)
	fmt.Println("# Integrate:", goappimage.ShallNotBeIntegrated(p) == 0)
	fmt.Println("# Desktop file:", goappimage.DesktopFilePath(p))
	fmt.Println("# Registered:", goappimage.IsRegisteredInSystem(p))
	fmt.Println("# Thumbnail:", goappimage.ThumbnailPath(p))
	if ui, err := ai.UpdateInformation(); err == nil && ui != "" {
		fmt.Println("# Update information:", ui)
		if _, err = helpers.ParseUpdateInformation(ui); err != nil {
			helpers.PrintError("update information", err)
		}
	}
	return nil
}
