package db

import (
	"fmt"
	"log"
	"os"
	"strconv"
)

// RunMigrateCommand implements the "migrate" subcommand: it opens the
// database at dbPath without touching the schema (the migration files own
// it) and runs one action against it. Failures are fatal, so this must only
// be called from main.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) == 0 {
		PrintMigrateHelp()
		os.Exit(1)
	}
	action, rest := args[0], args[1:]

	switch action {
	case "help":
		PrintMigrateHelp()
		return
	case "up", "down", "status", "version", "force":
		// handled below once the database is open
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate action %q\n\n", action)
		PrintMigrateHelp()
		os.Exit(1)
	}

	database, err := Open(dbPath)
	if err != nil {
		log.Fatalf("migrate: opening %s: %v", dbPath, err)
	}
	defer database.Close()

	if err := runMigrateAction(database, action, rest); err != nil {
		log.Fatalf("migrate %s: %v", action, err)
	}
}

// runMigrateAction executes a single already-validated action. An aborted
// interactive confirmation is not an error.
func runMigrateAction(database *DB, action string, args []string) error {
	switch action {
	case "up":
		log.Printf("Applying pending migrations...")
		if err := database.MigrateUp(); err != nil {
			return err
		}
		return reportSchemaVersion(database)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := database.MigrateDown(); err != nil {
			return err
		}
		return reportSchemaVersion(database)

	case "status":
		version, dirty, err := database.MigrateVersion()
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		fmt.Printf("Migration status: version %d, dirty=%v\n", version, dirty)
		if dirty {
			fmt.Println("\nThe last migration did not finish. Inspect the database,")
			fmt.Println("repair it by hand, then run: ais migrate force <version>")
		}
		return nil

	case "version":
		target, err := migrateVersionArg(args)
		if err != nil {
			return err
		}
		log.Printf("Migrating schema to version %d...", target)
		if err := database.MigrateTo(uint(target)); err != nil {
			return err
		}
		return reportSchemaVersion(database)

	case "force":
		target, err := migrateVersionArg(args)
		if err != nil {
			return err
		}
		fmt.Printf("About to overwrite the recorded schema version with %d without\n", target)
		fmt.Println("running any migrations. This is a recovery tool for dirty state.")
		fmt.Print("Proceed? [y/N]: ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			log.Println("aborted")
			return nil
		}
		if err := database.MigrateForce(target); err != nil {
			return err
		}
		log.Printf("schema version forced to %d", target)
		return nil
	}
	return fmt.Errorf("unhandled action %q", action)
}

// reportSchemaVersion logs the schema version after a successful action.
func reportSchemaVersion(database *DB) error {
	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	log.Printf("schema at version %d (dirty=%v)", version, dirty)
	return nil
}

// migrateVersionArg parses the single numeric argument taken by the version
// and force actions.
func migrateVersionArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected exactly one version argument")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid version %q", args[0])
	}
	return n, nil
}

// PrintMigrateHelp prints usage for the migrate subcommand.
func PrintMigrateHelp() {
	fmt.Println(`Manage the vessel database schema.

Usage: ais migrate <action> [arguments]

Actions:
  up             apply every pending migration
  down           roll back the most recent migration
  status         print the current schema version and dirty flag
  version <N>    migrate the schema to exactly version N
  force <N>      overwrite the recorded version with N (dirty-state recovery)
  help           print this message

The --db-path flag selects the database file (default ais.db):
  ais migrate --db-path /var/lib/ais/ais.db up`)
}
