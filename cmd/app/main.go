package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/fennec/internal"
	"github.com/starford/fennec/internal/frontmatter"
	pkgconfig "github.com/starford/fennec/pkg/config"
)

var version = "dev"

const defaultConfigFile = "config/config.yaml"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(cmd.String("config"), defaultConfigFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func ingest(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req := internal.IngestRequest{
		File:   cmd.String("file"),
		Delete: cmd.Bool("delete"),
		Actor:  "cli:" + currentUser(),
		Output: os.Stdout,
	}
	return internal.Ingest(ctx, req, internal.WithConfig(cfg), internal.WithLogOutput(os.Stderr))
}

func validate(_ context.Context, cmd *cli.Command) error {
	files := cmd.Args().Slice()
	if len(files) == 0 {
		return errors.New("validate: no files given")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	failed := 0
	for _, path := range files {
		res := frontmatter.ValidateFile(path, cfg.Frontmatter.AllowedTags)
		if res.OK() {
			continue
		}
		failed++
		for _, msg := range res.Errors {
			fmt.Fprintf(os.Stderr, "%s: %s\n", res.Path, msg)
		}
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d files failed validation", failed, len(files)), 1)
	}
	fmt.Fprintf(os.Stdout, "%d files valid\n", len(files))
	return nil
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// stdout carries the MCP protocol.
	return internal.ServeMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	)
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "unknown"
}

func main() {
	cmd := &cli.Command{
		Name:    "fennec",
		Usage:   "Note catalog service that reconciles published batches into categories, notes and tags",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: defaultConfigFile,
				Value:       defaultConfigFile,
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and spool inbox",
				Action: serve,
			},
			{
				Name:   "ingest",
				Usage:  "Apply one batch file against the configured database and print the report",
				Action: ingest,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to a JSON batch file",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "delete",
						Usage: "Treat the file as a list of deletion requests",
					},
				},
			},
			{
				Name:      "validate",
				Usage:     "Check the frontmatter of Markdown sources",
				ArgsUsage: "<file>...",
				Action:    validate,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the catalog to MCP clients over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
