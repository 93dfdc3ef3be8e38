package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"quickchat/internal/chat/stream"
)
type watchCmd struct {
	flags *flags
	addr  string
	token string
}

func newWatchCmd(f *flags) *watchCmd {
	return &watchCmd{flags: f}
}

func (cmd *watchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Subscribe to the presence stream and print every event",
		UsageText: "chat-svc watch --token <jwt> [--addr host:port]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "gRPC address (defaults to localhost and CHAT_GRPC_PORT)",
				Destination: &cmd.addr,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "bearer token identifying the watcher",
				Sources:     cli.EnvVars("CHAT_TOKEN"),
				Required:    true,
				Destination: &cmd.token,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *watchCmd) run(ctx context.Context, c *cli.Command) error {
	addr := cmd.addr
	if addr == "" {
		addr = net.JoinHostPort("localhost", cmd.flags.Config.Server.GRPCPort)
	}

	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+cmd.token)
	sub, err := stream.NewPresenceClient(conn).Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	out := c.Root().Writer
	for {
		evt, err := sub.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "%s\t%s\n", evt.Type, evt.Data); err != nil {
			return err
		}
	}
}
