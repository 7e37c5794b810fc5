package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/itaybe6/barber-English-sub002/libs/phone"
	"github.com/spf13/cobra"
)

func newStaffCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "staff",
		Short: "Manage the staff directory used for notifications",
	}
	cmd.AddCommand(newStaffAddCommand(opts))
	return cmd
}

func newStaffAddCommand(opts *rootOptions) *cobra.Command {
	var (
		businessID string
		name       string
		rawPhone   string
		region     string
		admin      bool
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a staff member who receives waitlist and cancellation notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(businessID) == "" || strings.TrimSpace(name) == "" {
				return errors.New("--business and --name are required")
			}
			p, err := phone.Normalize(rawPhone, region)
			if err != nil {
				return fmt.Errorf("--phone: %w", err)
			}

			ctx, pool, done, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var id string
			if err := pool.QueryRow(ctx, `
				INSERT INTO staff_members (business_id, name, phone, is_admin)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, businessID, strings.TrimSpace(name), p, admin).Scan(&id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added staff member %s (%s)\n", id, p)
			return nil
		},
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&rawPhone, "phone", "", "phone the staff app signs in with")
	cmd.Flags().StringVar(&region, "region", "IL", "default region for numbers without a country prefix")
	cmd.Flags().BoolVar(&admin, "admin", false, "receive business-wide notifications")
	return cmd
}
