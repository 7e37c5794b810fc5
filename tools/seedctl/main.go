// Command seedctl applies the schema and loads operator data: staff users,
// the notification staff directory and recurring rules.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/config"
	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	databaseURL string
	timeout     time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "seedctl",
		Short:         "Schema and seed data tooling for the salon booking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return config.LoadDotEnv()
		},
	}
	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL URL (default $DATABASE_URL)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall command timeout")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newUserCommand(opts))
	cmd.AddCommand(newStaffCommand(opts))
	cmd.AddCommand(newSeedCommand(opts))
	return cmd
}

// connect opens a small pool bounded by the command timeout.
func (o *rootOptions) connect(parent context.Context) (context.Context, *db.Pool, func(), error) {
	url := o.databaseURL
	if url == "" {
		var err error
		if url, err = config.RequiredString("DATABASE_URL"); err != nil {
			return nil, nil, nil, err
		}
	}
	ctx, cancel := context.WithTimeout(parent, o.timeout)
	pool, err := db.Open(ctx, url, db.Options{MaxConns: 2})
	if err != nil {
		cancel()
		return nil, nil, nil, fmt.Errorf("connect: %w", err)
	}
	return ctx, pool, func() {
		pool.Close()
		cancel()
	}, nil
}
