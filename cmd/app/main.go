package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/robotdb/internal"
	pkgconfig "github.com/starford/robotdb/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.Root().String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func scan(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.IsSet("workspace") {
		cfg.Workspace.Path = cmd.String("workspace")
	}
	if cmd.IsSet("db") {
		cfg.Store.Path = cmd.String("db")
	}
	if cmd.IsSet("ext") {
		cfg.Workspace.Extension = cmd.String("ext")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}

	opts := []internal.Option{internal.WithConfig(cfg), internal.WithVersion(version)}
	if cmd.Bool("verbose") {
		cfg.App.LogLevel = slog.LevelDebug
		opts = append(opts, internal.WithConsole(os.Stderr))
	}

	res, err := internal.Scan(ctx, opts...)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return printJSON(res)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithVersion(version))
}

func search(ctx context.Context, cmd *cli.Command) error {
	query := cmd.Args().First()
	if query == "" {
		return errors.New("search: query is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	hits, err := internal.Search(ctx, query, int(cmd.Int("limit")), internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	return printJSON(hits)
}

func show(ctx context.Context, cmd *cli.Command) error {
	identity := cmd.Args().First()
	if identity == "" {
		return errors.New("show: identity is required")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	detail, err := internal.Show(ctx, identity, internal.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("show: %w", err)
	}
	return printJSON(detail)
}

func main() {
	cmd := &cli.Command{
		Name:    "robotdb",
		Usage:   "Crawl Robot Framework test assets into a searchable record store",
		Version: version,
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
				Name:   "scan",
				Usage:  "Scan a workspace once and write one JSON document per asset",
				Action: scan,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "workspace", Aliases: []string{"w"}, Usage: "Workspace root to crawl"},
					&cli.StringFlag{Name: "db", Usage: "Directory the documents are written to"},
					&cli.StringFlag{Name: "ext", Usage: "Suite and resource file extension"},
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "Print parser diagnostics"},
				},
			},
			{
				Name:   "serve",
				Usage:  "Scan, watch and serve the HTTP API",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Scan, watch and serve MCP on stdio",
				Action: mcp,
			},
			{
				Name:      "search",
				Usage:     "Search keywords from the last scan",
				ArgsUsage: "<query>",
				Action:    search,
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum number of hits"},
				},
			},
			{
				Name:      "show",
				Usage:     "Print the stored record of a file or library",
				ArgsUsage: "<path|library>",
				Action:    show,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
