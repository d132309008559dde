package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/packfinderz-rewards/pkg/config"
	"github.com/angelmondragon/packfinderz-rewards/pkg/db"
	"github.com/angelmondragon/packfinderz-rewards/pkg/logger"
	"github.com/angelmondragon/packfinderz-rewards/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// offline commands work on the migrations directory only.
var offline = map[string]func(options) (string, error){
	"create": func(o options) (string, error) {
		if o.name == "" {
			return "", errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(o.dir, o.name)
		if err != nil {
			return "", err
		}
		return "created migration: " + path, nil
	},
	"validate": func(o options) (string, error) {
		if err := migrate.ValidateDir(o.dir); err != nil {
			return "", err
		}
		return "migration validation passed", nil
	},
}

func main() {
	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	cfg, err := config.Load()
	if err != nil {
		exit(context.Background(), logg, "load config", err)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if run, ok := offline[opts.cmd]; ok {
		out, err := run(opts)
		if err != nil {
			exit(ctx, logg, opts.cmd, err)
		}
		fmt.Println(out)
		return
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		exit(ctx, logg, "connect database", err)
	}
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		exit(ctx, logg, "open sql handle", err)
	}

	if err := apply(ctx, sqlDB, opts); err != nil {
		exit(ctx, logg, "goose "+opts.cmd, err)
	}
	logg.Info(ctx, "migrations applied")
}

func apply(ctx context.Context, sqlDB *sql.DB, opts options) error {
	switch opts.cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, opts.dir, opts.cmd)
	case "version":
		if opts.version == "" {
			return errors.New("missing -version for version command")
		}
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return err
		}
		return migrate.To(ctx, sqlDB, opts.dir, target)
	default:
		return fmt.Errorf("unknown -cmd value %q", opts.cmd)
	}
}

func exit(ctx context.Context, logg *logger.Logger, step string, err error) {
	logg.Error(ctx, "migrate failed: "+step, err)
	os.Exit(1)
}
