package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"quickchat/internal/dbmysql"
)

type migrateCmd struct {
	flags *flags
}

func newMigrateCmd(f *flags) *migrateCmd {
	return &migrateCmd{flags: f}
}

func (cmd *migrateCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:   "migrate",
		Usage:  "Create or update the messages and users tables",
		Action: cmd.run,
	})
	return app
}

func (cmd *migrateCmd) run(ctx context.Context, c *cli.Command) error {
	db, err := dbmysql.NewMySQL(cmd.flags.Config, cmd.flags.Log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	if err := dbmysql.Migrate(db); err != nil {
		return err
	}
	cmd.flags.Log.Info().Msg("database migration completed")
	return nil
}
