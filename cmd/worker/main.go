// Package main runs the background worker: outbound email delivery and the
// reminder sweep, plus one-shot maintenance commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/corkboard/backend/config"
	"github.com/corkboard/backend/internal/auth"
	"github.com/corkboard/backend/internal/emaillogs"
	"github.com/corkboard/backend/internal/mailer"
	"github.com/corkboard/backend/internal/models"
	"github.com/corkboard/backend/internal/reminders"
	"github.com/corkboard/backend/internal/worker"
	"github.com/corkboard/backend/pkg/database"
	"github.com/corkboard/backend/pkg/queue"
	"github.com/corkboard/backend/pkg/redis"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "worker",
	Short:         "Corkboard background worker",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	promoteAdminCmd.Flags().String("email", "", "email of the user to promote")
	_ = promoteAdminCmd.MarkFlagRequired("email")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(promoteAdminCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Deliver queued email and run the reminder ticker",
	Long: `Run drains the outbound email queue and, when REMINDER_INTERVAL_MINUTES
is positive, sweeps for due reminders on that interval. It stops on SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		env, err := setup(ctx)
		if err != nil {
			return err
		}
		defer env.close()

		sender := mailer.NewSender(env.cfg.Email, env.logger)
		if !sender.Enabled() {
			env.logger.Warn("SMTP not configured, queued email will be marked failed")
		}
		processor := worker.NewEmailProcessor(env.queue, sender, env.logs, env.logger)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return processor.Run(ctx) })
		if minutes := env.cfg.Reminder.IntervalMinutes; minutes > 0 {
			interval := time.Duration(minutes) * time.Minute
			if interval > reminders.MaxInterval() {
				env.logger.Warn("REMINDER_INTERVAL_MINUTES exceeds the 1 hour reminder window width",
					zap.Int("minutes", minutes),
					zap.Duration("max", reminders.MaxInterval()),
				)
			}
			sched := reminders.NewScheduler(env.reminders(), interval, env.logger)
			g.Go(func() error { return sched.Run(ctx) })
		}
		err = g.Wait()
		env.outbox.Wait()
		env.logger.Info("worker stopped")
		return err
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reminder sweep and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer env.close()

		res, err := env.reminders().Sweep(cmd.Context(), time.Now())
		if err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "events=%d sent=%d failed=%d skipped=%d\n", res.Events, res.Sent, res.Failed, res.Skipped)
		return nil
	},
}

var promoteAdminCmd = &cobra.Command{
	Use:   "promote-admin",
	Short: "Give an existing user the admin role",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		logger := newLogger()
		defer logger.Sync()

		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		pool, err := database.NewPostgresPool(cmd.Context(), cfg.Database.DSN(), logger)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer pool.Close()

		if err := auth.NewRepository(pool).SetRole(cmd.Context(), email, models.RoleAdmin); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is now an admin\n", email)
		return nil
	},
}

type environment struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
	rdb    *redis.Client
	queue  *queue.Queue
	logs   *emaillogs.Repository
	outbox *mailer.Outbox
}

func setup(ctx context.Context) (*environment, error) {
	logger := newLogger()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	rdb, err := redis.NewClient(ctx, cfg.Redis, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("redis: %w", err)
	}

	logs := emaillogs.NewRepository(pool)
	q := queue.NewQueue(rdb.Client, logger)
	return &environment{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		rdb:    rdb,
		queue:  q,
		logs:   logs,
		outbox: mailer.NewOutbox(logs, q, logger),
	}, nil
}

func (e *environment) reminders() *reminders.Service {
	return reminders.NewService(reminders.NewRepository(e.pool), e.logs, e.outbox,
		reminders.Options{Dedup: e.cfg.Reminder.Dedup, BaseURL: e.cfg.App.BaseURL}, e.logger)
}

func (e *environment) close() {
	_ = e.rdb.Close()
	e.pool.Close()
	_ = e.logger.Sync()
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
