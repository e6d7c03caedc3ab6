package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/buildinfo"
	"github.com/Aiven-Open/aiven-mysql-migrate/pkg/migration"
)

// Populated via -ldflags by the release pipeline.
var (
	version string
	commit  string
	date    string
)

var cli struct {
	migration.Migration

	Debug   bool             `name:"debug" short:"d" help:"Enable debug logging." optional:"" default:"false"`
	Version kong.VersionFlag `name:"version" help:"Print version information and quit."`
}

func main() {
	buildinfo.Set(version, commit, date)
	kctx := kong.Parse(&cli,
		kong.Name("mysql_migrate"),
		kong.Description("Migrate a MySQL database from a source server to a target."),
		kong.UsageOnError(),
		kong.Vars{"version": buildinfo.Get().String()},
	)

	level := slog.LevelInfo
	if cli.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// SIGINT/SIGTERM cancel the run context: subprocesses are killed
	// through it and the interruption shows up in the report.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runner, err := migration.NewRunner(&cli.Migration)
	kctx.FatalIfErrorf(err)
	runner.SetLogger(logger)
	kctx.FatalIfErrorf(runner.Run(ctx))
}
