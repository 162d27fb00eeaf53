package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/BradenHooton/directory-search/internal/app"
	"github.com/BradenHooton/directory-search/internal/background"
	"github.com/BradenHooton/directory-search/internal/config"
	"github.com/BradenHooton/directory-search/internal/migrate"
	pkglogger "github.com/BradenHooton/directory-search/pkg/logger"
)

type taskCommand struct {
	use   string
	short string
	job   string
	audit bool
}

var taskCommands = []taskCommand{
	{use: "reindex-users", short: "Build a new users index", job: background.JobReindexUsers},
	{use: "update-users", short: "Index changed users and invitations", job: background.JobUpdateUsersIndex},
	{use: "reindex-devices", short: "Build a new devices index", job: background.JobReindexDevices},
	{use: "update-audit-cache", short: "Update login statistics from the audit log", job: background.JobUpdateAuditCache, audit: true},
	{use: "tidy-indexes", short: "Delete unused index generations", job: background.JobTidyIndexes},
}

func newTaskCommand(t taskCommand) *cobra.Command {
	return &cobra.Command{
		Use:   t.use,
		Short: t.short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTask(cmd.Context(), t)
		},
	}
}

// singleCorrelationID names a one-off run, e.g. Single-ReindexUsers-<uuid>.
func singleCorrelationID(job string) string {
	if job == "" {
		return pkglogger.NewCorrelationID("Single")
	}
	return pkglogger.NewCorrelationID("Single-" + strings.ToUpper(job[:1]) + job[1:])
}

func runTask(ctx context.Context, t taskCommand) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	logger := pkglogger.New(os.Stderr, cfg.Server.Env, cfg.Server.LogLevel)

	if err := cfg.ValidateSharedIndexes(); err != nil {
		return errors.WithStack(err)
	}

	switch {
	case t.audit:
		if err := cfg.ValidateDatabase(); err != nil {
			return errors.WithStack(err)
		}
	case t.job != background.JobTidyIndexes:
		if err := cfg.ValidateUpstream(); err != nil {
			return errors.WithStack(err)
		}
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger, app.Options{Audit: t.audit})
	if err != nil {
		return errors.Wrap(err, "failed to initialise")
	}
	defer application.Close(context.Background())

	run, ok := application.Tasks().Lookup(t.job)
	if !ok {
		return errors.Errorf("unknown task %s", t.job)
	}

	runner := background.NewRunner(background.NewJobGuard(), logger)
	start := time.Now()
	if err := runner.RunAs(ctx, t.job, singleCorrelationID(t.job), run); err != nil {
		return errors.Wrapf(err, "task %s failed", t.use)
	}
	logger.Info("task complete", slog.String("task", t.use), slog.Duration("duration", time.Since(start)))
	return nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the audit schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "failed to load configuration")
		}
		logger := pkglogger.New(os.Stderr, cfg.Server.Env, cfg.Server.LogLevel)

		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
		defer cancel()
		if err := migrate.Up(ctx, cfg.Database.DSN(), logger); err != nil {
			return errors.Wrap(err, "migrate failed")
		}
		return nil
	},
}
