package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/authledger/internal/config"
	"github.com/iliyamo/authledger/internal/database"
	"github.com/iliyamo/authledger/internal/model"
	"github.com/iliyamo/authledger/internal/queue"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create missing tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := wire(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer s.Close()
			return runMigrate(cmd.Context(), s, opts.cfg.DBDriver, opts.log)
		},
	}
}

func runMigrate(ctx context.Context, s *services, driver string, log *zap.Logger) error {
	if err := database.Migrate(ctx, s.db, driver); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("schema up to date", zap.String("driver", driver))
	return nil
}

func newUserAddCommand(opts *rootOptions) *cobra.Command {
	var name, password, start, end, days string
	cmd := &cobra.Command{
		Use:   "useradd <login>",
		Short: "Create a user with an initial password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := model.ValidateSchedule(start, end, days); err != nil {
				return err
			}
			s, err := wire(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer s.Close()
			id, err := s.tokens.RegisterUser(cmd.Context(), args[0], name, password)
			if err != nil {
				return err
			}
			if start != model.ScheduleStart || end != model.ScheduleEnd || days != model.ScheduleDays {
				if err := s.users.SetSchedule(cmd.Context(), id, start, end, days); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "user %s created with id %d\n", args[0], id)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&password, "password", "", "initial password (required)")
	cmd.Flags().StringVar(&start, "start", model.ScheduleStart, "start of the daily access window, HH:MM:SS UTC")
	cmd.Flags().StringVar(&end, "end", model.ScheduleEnd, "end of the daily access window, HH:MM:SS UTC")
	cmd.Flags().StringVar(&days, "days", model.ScheduleDays, "allowed weekdays as 7 flags, Monday first")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newConsumeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Append version.recorded events to the audit log",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			c := &queue.AuditConsumer{URL: config.AMQPURL(), LogPath: opts.cfg.AuditLogPath, Log: opts.log.Named("audit")}
			err := c.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func newSweepCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate expired and off-schedule credentials once",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := wire(cmd.Context(), opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer s.Close()
			st, err := s.tokens.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired tokens: %d, expired passwords: %d, orphan tokens: %d, off-schedule tokens: %d\n",
				st.ExpiredTokens, st.ExpiredPasswords, st.OrphanTokens, st.OffScheduleTokens)
			return nil
		},
	}
}
