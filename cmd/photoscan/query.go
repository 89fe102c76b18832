package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/photoscan"
	"github.com/poiesic/photoscan/core"
	"github.com/poiesic/photoscan/search"
)

func queryCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of photos to return",
			Value:   search.DefaultLimit,
		},
		&cli.Float64Flag{
			Name:  "min-score",
			Usage: "Minimum cosine similarity of returned photos",
		},
		&cli.BoolFlag{
			Name:  "answer",
			Usage: "Let the text model answer the question from the matching descriptions",
		},
	}
	return &cli.Command{
		Name:      "query",
		Usage:     "Find photos matching a question",
		ArgsUsage: "<question>",
		Action:    queryAction,
		Flags:     append(flags, backendFlags()...),
	}
}

func queryAction(c *cli.Context) error {
	question := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
	if question == "" {
		return fmt.Errorf("question is required")
	}

	cfg, err := libraryConfig(c)
	if err != nil {
		return err
	}
	lib, err := photoscan.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open library: %w", err)
	}
	defer lib.Close()

	searcher, err := lib.NewSearcher(search.WithMinScore(float32(c.Float64("min-score"))))
	if err != nil {
		return err
	}

	out := c.App.Writer
	if !c.Bool("answer") {
		results, err := searcher.Find(c.Context, question, c.Int("limit"))
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		printResults(out, results)
		return nil
	}

	answer, err := searcher.Ask(c.Context, question, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	printResults(out, answer.Results)
	if answer.Text != "" {
		fmt.Fprintf(out, "\n%s\n", answer.Text)
	}
	return nil
}

func printResults(w io.Writer, results []*core.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No matching photos.")
		return
	}
	for _, r := range results {
		fmt.Fprintf(w, "%.3f  %s\n       %s\n", r.Score, r.Path, r.Description)
	}
}
