package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"clinicslots/internal/domain"
	"clinicslots/internal/store"
	"clinicslots/internal/store/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeDB(log, db)

			applied, err := postgres.Migrate(cmd.Context(), db)
			if err != nil {
				log.Error("migration failed", slog.Any("err", err), slog.Any("applied", applied))
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
			}
			return nil
		},
	})
	return cmd
}

func newProviderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "provider",
		Short: "Manage providers",
	}

	var username, name, specialization string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeDB(log, db)

			p, err := postgres.NewBookingRepo(db).CreateProvider(cmd.Context(), domain.Provider{
				Username:       strings.TrimSpace(username),
				Name:           strings.TrimSpace(name),
				Specialization: strings.TrimSpace(specialization),
			})
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("provider %q already exists", username)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created provider %q with id %s\n", p.Username, p.ID)
			return nil
		},
	}
	add.Flags().StringVar(&username, "username", "", "identity the gateway asserts for this provider")
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&specialization, "specialization", "", "specialization")
	_ = add.MarkFlagRequired("username")
	_ = add.MarkFlagRequired("name")

	cmd.AddCommand(add)
	return cmd
}

func newSubjectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "subject",
		Short: "Manage subjects",
	}

	var username, name string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a subject",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadRuntime()
			if err != nil {
				return err
			}
			db, err := openDB(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeDB(log, db)

			s, err := postgres.NewBookingRepo(db).CreateSubject(cmd.Context(), domain.Subject{
				Username: strings.TrimSpace(username),
				Name:     strings.TrimSpace(name),
			})
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("subject %q already exists", username)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created subject %q with id %s\n", s.Username, s.ID)
			return nil
		},
	}
	add.Flags().StringVar(&username, "username", "", "identity the gateway asserts for this subject")
	add.Flags().StringVar(&name, "name", "", "display name")
	_ = add.MarkFlagRequired("username")
	_ = add.MarkFlagRequired("name")

	cmd.AddCommand(add)
	return cmd
}
