// Command server runs the match gateway and its administrative tooling:
// vocabulary and patient ingestion, and the server authorization registry.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"match-gateway/internal/platform/logger"
)

func main() {
	log := logger.New()
	slog.SetDefault(log)

	cmd := &cli.Command{
		Name:  "match-gateway",
		Usage: "Federated rare-disease patient matching gateway",
		Commands: []*cli.Command{
			serveCommand(log),
			indexCommand(log),
			authCommand(log),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
