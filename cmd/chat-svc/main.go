package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"quickchat/internal/config"
	"quickchat/internal/logging"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

// flags carries state shared by every subcommand after Before has run.
type flags struct {
	LogLevel string
	Config   *config.Config
	Log      zerolog.Logger
}

func main() {
	f := &flags{}

	app := &cli.Command{
		Name:      "chat-svc",
		Usage:     "Realtime one-to-one chat service",
		UsageText: "chat-svc [global options] [command]",
		Description: `Serves the message API, the websocket push channel and the gRPC
presence stream. Run with no command to serve.`,
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			cfg := config.LoadConfig()
			cfg.Logging.Level = f.LogLevel

			logger, err := logging.Setup(cfg.Logging)
			if err != nil {
				return ctx, err
			}
			f.Config = cfg
			f.Log = logger.With().Str("service", "chat-svc").Logger()
			return ctx, nil
		},
	}

	app = newServeCmd(f).Register(app)
	app = newMigrateCmd(f).Register(app)
	app = newTokenCmd(f).Register(app)
	app = newWatchCmd(f).Register(app)

	app.Action = func(ctx context.Context, c *cli.Command) error {
		if c.Args().Len() > 0 {
			return fmt.Errorf("unknown command %q. Run 'chat-svc --help' for usage", c.Args().First())
		}
		return newServeCmd(f).run(ctx, c)
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
