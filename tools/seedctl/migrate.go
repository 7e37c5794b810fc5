package main

import (
	"context"
	"fmt"

	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/itaybe6/barber-English-sub002/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/spf13/cobra"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, pool, done, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			all, err := migrations.All()
			if err != nil {
				return err
			}
			applied, err := appliedMigrations(ctx, pool)
			if err != nil {
				return err
			}
			todo := pending(all, applied)
			if len(todo) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, m := range todo {
				if dryRun {
					fmt.Fprintf(cmd.OutOrStdout(), "pending %s\n", m.Name)
					continue
				}
				if err := apply(ctx, pool, m); err != nil {
					return fmt.Errorf("apply %s: %w", m.Name, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", m.Name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "list pending migrations without applying them")
	return cmd
}

func appliedMigrations(ctx context.Context, pool *db.Pool) (map[string]bool, error) {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`); err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func pending(all []migrations.Migration, applied map[string]bool) []migrations.Migration {
	var out []migrations.Migration
	for _, m := range all {
		if !applied[m.Name] {
			out = append(out, m)
		}
	}
	return out
}

func apply(ctx context.Context, pool *db.Pool, m migrations.Migration) error {
	return pool.InTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, m.SQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, m.Name)
		return err
	})
}
