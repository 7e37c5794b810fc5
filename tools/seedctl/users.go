package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/itaybe6/barber-English-sub002/libs/auth"
	"github.com/itaybe6/barber-English-sub002/libs/db"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func newUserCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff sign-in accounts",
	}
	cmd.AddCommand(newUserCreateCommand(opts))
	return cmd
}

type userInput struct {
	BusinessID string
	Email      string
	Password   string
	Role       string
}

func (in userInput) validate() error {
	switch {
	case strings.TrimSpace(in.BusinessID) == "":
		return errors.New("--business is required")
	case !strings.Contains(in.Email, "@"):
		return errors.New("--email must be an email address")
	case len(in.Password) < 8:
		return errors.New("--password must be at least 8 characters")
	case in.Role != auth.RoleAdmin && in.Role != auth.RoleStaff:
		return fmt.Errorf("--role must be %s or %s", auth.RoleAdmin, auth.RoleStaff)
	}
	return nil
}

func newUserCreateCommand(opts *rootOptions) *cobra.Command {
	var in userInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff user with a bcrypt-hashed password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in.Email = strings.ToLower(strings.TrimSpace(in.Email))
			if err := in.validate(); err != nil {
				return err
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
			if err != nil {
				return err
			}

			ctx, pool, done, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var id string
			err = pool.QueryRow(ctx, `
				INSERT INTO users (business_id, email, password_hash, role)
				VALUES ($1, $2, $3, $4)
				RETURNING id
			`, in.BusinessID, in.Email, string(hash), in.Role).Scan(&id)
			if db.IsUniqueViolation(err) {
				return fmt.Errorf("a user with email %s already exists", in.Email)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", id, in.Email)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.BusinessID, "business", "", "business id the user belongs to")
	cmd.Flags().StringVar(&in.Email, "email", "", "sign-in email")
	cmd.Flags().StringVar(&in.Password, "password", "", "initial password")
	cmd.Flags().StringVar(&in.Role, "role", auth.RoleStaff, "admin or staff")
	return cmd
}
