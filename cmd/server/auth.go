package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/urfave/cli/v3"

	"match-gateway/internal/trust"
)

func authCommand(log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage server authorizations",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Authorize a server (prints the shared key)",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Server identifier", Required: true},
					&cli.StringFlag{
						Name:     "direction",
						Usage:    "'in': the other server may query us, 'out': we may query it",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "key",
						Usage: "Shared secret (default: generate a secure key)",
					},
					&cli.StringFlag{Name: "label", Usage: "Human-readable name (default: the id)"},
					&cli.StringFlag{
						Name:  "base-url",
						Usage: "Remote base URL, required for outgoing servers (https only)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return authAdd(ctx, log, cmd)
				},
			},
			{
				Name:    "rm",
				Aliases: []string{"remove"},
				Usage:   "Remove a server authorization",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Usage: "Server identifier", Required: true},
					&cli.StringFlag{
						Name:  "direction",
						Usage: "Authorization direction to remove (default: both)",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return authRemove(ctx, log, cmd)
				},
			},
			{
				Name:  "list",
				Usage: "List server authorizations",
				Action: func(ctx context.Context, _ *cli.Command) error {
					return authList(ctx, log)
				},
			},
		},
	}
}

func authAdd(ctx context.Context, log *slog.Logger, cmd *cli.Command) error {
	a, err := newApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.registry.Add(ctx, trust.AddParams{
		ServerID:  cmd.String("id"),
		Label:     cmd.String("label"),
		Key:       cmd.String("key"),
		Direction: trust.Direction(cmd.String("direction")),
		BaseURL:   cmd.String("base-url"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("authorized %s (%s)\nkey: %s\n", entry.ServerID, entry.Direction, entry.Key)
	return nil
}

func authRemove(ctx context.Context, log *slog.Logger, cmd *cli.Command) error {
	a, err := newApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.registry.Remove(ctx, cmd.String("id"), trust.Direction(cmd.String("direction")))
}

func authList(ctx context.Context, log *slog.Logger) error {
	a, err := newApp(ctx, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.registry.List(ctx, "")
	if err != nil {
		return err
	}

	fmt.Println(strings.Join([]string{"server_id", "server_label", "direction", "base_url"}, "\t"))
	for _, entry := range entries {
		fmt.Println(strings.Join([]string{
			entry.ServerID, entry.Label, string(entry.Direction), entry.BaseURL,
		}, "\t"))
	}
	return nil
}
