package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"quickchat/internal/common"
)
type tokenCmd struct {
	flags  *flags
	userID uint64
}

func newTokenCmd(f *flags) *tokenCmd {
	return &tokenCmd{flags: f}
}

func (cmd *tokenCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "token",
		Usage:       "Print a signed token for a user id",
		UsageText:   "chat-svc token --user 42",
		Description: "Signs with JWT_SECRET. Meant for local testing against a running service.",
		Flags: []cli.Flag{
			&cli.Uint64Flag{
				Name:        "user",
				Usage:       "user id to embed",
				Required:    true,
				Destination: &cmd.userID,
			},
		},
		Action: cmd.run,
	})
	return app
}

func (cmd *tokenCmd) run(ctx context.Context, c *cli.Command) error {
	jwtManager, err := common.NewJWTManager(cmd.flags.Config)
	if err != nil {
		return err
	}
	token, err := jwtManager.GenerateToken(cmd.userID)
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	_, err = fmt.Fprintln(c.Root().Writer, token)
	return err
}
