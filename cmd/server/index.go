package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"
)

func indexCommand(log *slog.Logger) *cli.Command {
	fileFlag := &cli.StringFlag{
		Name:     "file",
		Usage:    "Path to the source file",
		Required: true,
	}

	return &cli.Command{
		Name:  "index",
		Usage: "Load vocabulary and patient data into the search engine",
		Commands: []*cli.Command{
			{
				Name:  "hpo",
				Usage: "Index the Human Phenotype Ontology from an OBO file",
				Flags: []cli.Flag{fileFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return indexFile(ctx, log, cmd.String("file"), "hpo")
				},
			},
			{
				Name:  "genes",
				Usage: "Index the HGNC gene crosswalk from a TSV file",
				Flags: []cli.Flag{fileFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return indexFile(ctx, log, cmd.String("file"), "genes")
				},
			},
			{
				Name:  "patients",
				Usage: "Index patient records from a JSON file",
				Flags: []cli.Flag{fileFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return indexFile(ctx, log, cmd.String("file"), "patients")
				},
			},
		},
	}
}

func indexFile(ctx context.Context, log *slog.Logger, path, kind string) error {
	a, err := newApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch kind {
	case "hpo":
		n, err := a.vocab.IngestOntology(ctx, f)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d ontology terms\n", n)
	case "genes":
		n, err := a.vocab.IngestGenes(ctx, f)
		if err != nil {
			return err
		}
		fmt.Printf("indexed %d genes\n", n)
	case "patients":
		n, err := a.matcher.IngestCorpus(ctx, f)
		if err != nil {
			return err
		}
		fmt.Printf("datastore now contains %d patient records\n", n)
	}
	return nil
}
