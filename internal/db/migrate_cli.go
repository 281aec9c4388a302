package db

import (
	"fmt"
	"io"
	"strconv"
)

// RunMigrateCommand runs the 'migrate' subcommand against the database at
// dbPath, writing progress to out.
func RunMigrateCommand(args []string, dbPath string, out io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(out)
		return fmt.Errorf("missing migrate action")
	}

	// OpenDB, not NewDB: the command decides which migrations run.
	database, err := OpenDB(dbPath)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	switch action := args[0]; action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		return printStatus(database, out)

	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		return printStatus(database, out)

	case "status":
		return printStatus(database, out)

	case "version", "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: tracker migrate %s <version>", action)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil || v < 0 {
			return fmt.Errorf("invalid version %q", args[1])
		}
		if action == "version" {
			err = database.MigrateTo(uint(v))
		} else {
			err = database.MigrateForce(v)
		}
		if err != nil {
			return err
		}
		return printStatus(database, out)

	case "help":
		PrintMigrateHelp(out)
		return nil

	default:
		PrintMigrateHelp(out)
		return fmt.Errorf("unknown migrate action %q", action)
	}
}

func printStatus(database *DB, out io.Writer) error {
	current, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Database: %s\n", database.path)
	fmt.Fprintf(out, "Current version: %d\n", current)
	fmt.Fprintf(out, "Latest version: %d\n", latest)
	switch {
	case dirty:
		fmt.Fprintln(out, "Status: DIRTY (a migration failed; fix it and run 'migrate force <version>')")
	case current < latest:
		fmt.Fprintf(out, "Status: %d migration(s) pending\n", latest-current)
	default:
		fmt.Fprintln(out, "Status: up to date")
	}
	return nil
}

// PrintMigrateHelp lists the migrate actions.
func PrintMigrateHelp(out io.Writer) {
	fmt.Fprint(out, `Usage: tracker [flags] migrate <action> [args]

Actions:
  up                 Apply all pending migrations
  down               Roll back the most recent migration
  status             Show current and latest schema versions
  version <N>        Migrate up or down to version N
  force <N>          Mark version N as applied without running it
  help               Show this help
`)
}
