package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/zakupai/search-core/config"
	"github.com/zakupai/search-core/internal/migration"
)

func runMigrate(args []string) {
	if len(args) == 0 {
		printMigrateUsage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "up":
		err = runMigrateUp(args[1:])
	case "down":
		err = runMigrateDown(args[1:])
	case "status":
		err = runMigrateStatus(args[1:])
	case "version":
		err = runMigrateVersion(args[1:])
	case "goto":
		err = runMigrateGoto(args[1:])
	case "force":
		err = runMigrateForce(args[1:])
	case "reset":
		err = runMigrateReset(args[1:])
	case "help", "-h", "--help":
		printMigrateUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate command: %s\n", args[0])
		printMigrateUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration error: %v\n", err)
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`searchd migrate - search_metrics database migrations

Usage:
  searchd migrate <command> [options]

Commands:
  up              Apply all pending migrations
  down            Rollback the last migration (--all to rollback everything)
  status          Show current migration status
  version         Show current migration version
  goto <version>  Migrate to a specific version
  force <version> Force set migration version without running it
  reset           Rollback all migrations

Options:
  --config <path>  Path to configuration file (YAML)
  --db-url <dsn>   Explicit golang-migrate database URL, overrides --config

Examples:
  searchd migrate up
  searchd migrate down --all
  searchd migrate goto 1
  searchd migrate status`)
}

// createMigrator builds a migrator either from an explicit --db-url, or from
// the database path in the loaded config.
func createMigrator(fs *flag.FlagSet, args []string) (*migration.DefaultMigrator, error) {
	configPath := fs.String("config", "", "Path to config file")
	dbURL := fs.String("db-url", "", "Explicit database URL, overrides --config")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *dbURL != "" {
		return migration.NewMigratorFromURL(*dbURL)
	}

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	return migration.NewMigratorFromPath(cfg.Metrics.DatabasePath)
}

func runMigrateUp(args []string) error {
	fs := flag.NewFlagSet("migrate up", flag.ExitOnError)
	m, err := createMigrator(fs, args)
	if err != nil {
		return err
	}
	defer m.Close()

	return migration.NewCLI(m).RunUp(context.Background())
}

func runMigrateDown(args []string) error {
	fs := flag.NewFlagSet("migrate down", flag.ExitOnError)
	all := fs.Bool("all", false, "Rollback every applied migration")
	m, err := createMigrator(fs, args)
	if err != nil {
		return err
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	if *all {
		return cli.RunDownAll(context.Background())
	}
	return cli.RunDown(context.Background())
}

func runMigrateStatus(args []string) error {
	fs := flag.NewFlagSet("migrate status", flag.ExitOnError)
	m, err := createMigrator(fs, args)
	if err != nil {
		return err
	}
	defer m.Close()

	return migration.NewCLI(m).RunStatus(context.Background())
}

func runMigrateVersion(args []string) error {
	fs := flag.NewFlagSet("migrate version", flag.ExitOnError)
	m, err := createMigrator(fs, args)
	if err != nil {
		return err
	}
	defer m.Close()

	return migration.NewCLI(m).RunVersion(context.Background())
}

func runMigrateGoto(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("goto requires a version argument")
	}
	version, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}

	fs := flag.NewFlagSet("migrate goto", flag.ExitOnError)
	m, err := createMigrator(fs, args[1:])
	if err != nil {
		return err
	}
	defer m.Close()

	return migration.NewCLI(m).RunGoto(context.Background(), uint(version))
}

func runMigrateForce(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("force requires a version argument")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q: %w", args[0], err)
	}

	fs := flag.NewFlagSet("migrate force", flag.ExitOnError)
	m, err := createMigrator(fs, args[1:])
	if err != nil {
		return err
	}
	defer m.Close()

	return migration.NewCLI(m).RunForce(context.Background(), version)
}

func runMigrateReset(args []string) error {
	fs := flag.NewFlagSet("migrate reset", flag.ExitOnError)
	m, err := createMigrator(fs, args)
	if err != nil {
		return err
	}
	defer m.Close()

	return migration.NewCLI(m).RunDownAll(context.Background())
}
