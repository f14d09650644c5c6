package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/glide/internal"
	pkgconfig "github.com/starford/glide/pkg/config"
)

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.Root().String("config")

	cfg := internal.NewDefaultConfig()
	found, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		slog.Warn("config file not found, using defaults", slog.String("path", configPath))
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func syncOnce(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	res, err := internal.SyncOnce(ctx, opts...)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return printJSON(res)
}

func hydrate(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	res, err := internal.Hydrate(ctx, cmd.Bool("force"), opts...)
	if err != nil {
		return fmt.Errorf("hydrate: %w", err)
	}
	return printJSON(res)
}

func reset(ctx context.Context, cmd *cli.Command) error {
	if !cmd.Bool("yes") {
		return fmt.Errorf("reset deletes all local data including unsynced changes; pass --yes to confirm")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.Reset(ctx, opts...)
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:   "glide",
		Usage:  "Offline-first voice notes with background sync",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the local API, sync loop, upload loop and inbox watcher",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "Run one push-then-pull cycle and exit",
				Action: syncOnce,
			},
			{
				Name:  "hydrate",
				Usage: "Download all server data into the local store",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Usage: "Hydrate even if already hydrated"},
				},
				Action: hydrate,
			},
			{
				Name:  "reset",
				Usage: "Delete the local store",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "yes", Usage: "Confirm data loss"},
				},
				Action: reset,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
