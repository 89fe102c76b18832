package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/photoscan"
	"github.com/poiesic/photoscan/metadata"
	"github.com/poiesic/photoscan/metadata/exif"
	"github.com/poiesic/photoscan/metadata/exiftool"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Show the stored description, dimensions and preview of a photo",
		ArgsUsage: "<file>",
		Action:    inspectAction,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "metadata",
				Usage:   "Metadata store (exif, exiftool)",
				Value:   photoscan.MetadataExif,
				EnvVars: []string{"PHOTOSCAN_METADATA"},
			},
			&cli.StringFlag{
				Name:    "exiftool",
				Usage:   "Path to the exiftool executable",
				EnvVars: []string{"EXIFTOOL_PATH"},
			},
		},
	}
}

func inspectAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return fmt.Errorf("file is required")
	}
	if c.NArg() > 1 {
		return fmt.Errorf("unexpected arguments after %s: %s", path, strings.Join(c.Args().Tail(), " "))
	}

	store, err := openInspector(c.String("metadata"), c.String("exiftool"))
	if err != nil {
		return err
	}
	defer store.Close()

	info, err := store.Inspect(c.Context, path)
	if err != nil {
		return err
	}
	printInfo(c.App.Writer, info)
	return nil
}

func openInspector(kind, binary string) (metadata.Store, error) {
	switch strings.ToLower(kind) {
	case photoscan.MetadataExif:
		return exif.New(), nil
	case photoscan.MetadataExiftool:
		var opts []exiftool.Option
		if binary != "" {
			opts = append(opts, exiftool.WithBinary(binary))
		}
		return exiftool.New(opts...)
	default:
		return nil, fmt.Errorf("unknown metadata store %q", kind)
	}
}

func printInfo(w io.Writer, info *metadata.Info) {
	fmt.Fprintf(w, "File:        %s\n", info.Path)
	desc := info.Description
	if desc == "" {
		desc = "(none)"
	}
	fmt.Fprintf(w, "Description: %s\n", desc)
	if info.Width > 0 && info.Height > 0 {
		fmt.Fprintf(w, "Dimensions:  %dx%d\n", info.Width, info.Height)
	}
	switch {
	case info.HasPreview() && info.PreviewWidth > 0:
		fmt.Fprintf(w, "Preview:     %dx%d (%d bytes)\n", info.PreviewWidth, info.PreviewHeight, info.PreviewBytes)
	case info.HasPreview():
		fmt.Fprintf(w, "Preview:     %d bytes\n", info.PreviewBytes)
	}
	if len(info.Hints.Persons) > 0 {
		fmt.Fprintf(w, "Persons:     %s\n", strings.Join(info.Hints.Persons, ", "))
	}
	if info.Hints.Location != "" {
		fmt.Fprintf(w, "Location:    %s\n", info.Hints.Location)
	}
}
