package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"crmdispatch/internal/config"
	"crmdispatch/internal/migrate"
)

// ANSI color codes for terminal output
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

const migrationsDir = "migrations"

func main() {
	// Load .env file (ignore error if not present)
	_ = godotenv.Load()

	command := "help"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command != "up" && command != "down" && command != "status" && command != "reset" {
		printUsage()
		if command != "help" {
			os.Exit(1)
		}
		os.Exit(0)
	}

	printInfo("=== CRM Dispatch Migration Runner ===\n")

	cfg, err := config.Load()
	if err != nil {
		printError(fmt.Sprintf("Failed to load configuration: %v", err))
		os.Exit(1)
	}

	printInfo("Connecting to database...")
	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		printError(fmt.Sprintf("Failed to open database connection: %v", err))
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		printError(fmt.Sprintf("Failed to ping database: %v", err))
		os.Exit(1)
	}
	printSuccess("✓ Connected to database\n")

	runner := migrate.NewRunner(db, migrationsDir)
	if err := runner.EnsureTable(ctx); err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	switch command {
	case "up":
		err = runUp(ctx, runner)
	case "down":
		err = runDown(ctx, runner)
	case "status":
		err = showStatus(ctx, runner)
	case "reset":
		printWarning("Resetting database (rollback all + reapply all)...\n")
		err = printApplied(runner.Reset(ctx))
	}
	if err != nil {
		printError(fmt.Sprintf("%s failed: %v", command, err))
		os.Exit(1)
	}

	printInfo("\n✨ Operation completed successfully!")
}

func runUp(ctx context.Context, runner *migrate.Runner) error {
	printInfo("Running pending migrations...\n")
	return printApplied(runner.Up(ctx))
}

func printApplied(done []migrate.Migration, err error) error {
	for _, m := range done {
		printSuccess(fmt.Sprintf("  ✓ Migration %03d_%s applied", m.Version, m.Name))
	}
	if err != nil {
		return err
	}
	if len(done) == 0 {
		printSuccess("✓ All migrations are up to date")
		return nil
	}
	printSuccess(fmt.Sprintf("\n✓ Successfully applied %d migration(s)", len(done)))
	return nil
}

func runDown(ctx context.Context, runner *migrate.Runner) error {
	printInfo("Rolling back last migration...\n")
	m, err := runner.Down(ctx)
	if err != nil {
		return err
	}
	if m == nil {
		printWarning("No migrations to rollback")
		return nil
	}
	printSuccess(fmt.Sprintf("✓ Successfully rolled back migration %03d_%s", m.Version, m.Name))
	return nil
}

func showStatus(ctx context.Context, runner *migrate.Runner) error {
	printInfo("Migration Status:\n")

	migrations, err := runner.Status(ctx)
	if err != nil {
		return err
	}
	if len(migrations) == 0 {
		printWarning("No migration files found in migrations/ directory")
		return nil
	}

	fmt.Printf("%s%-10s %-40s %-12s %-20s%s\n",
		colorBold, "VERSION", "NAME", "STATUS", "APPLIED AT", colorReset)
	fmt.Println(strings.Repeat("-", 85))

	appliedCount := 0
	for _, m := range migrations {
		status := "pending"
		statusColor := colorYellow
		appliedAt := "-"

		if m.Applied {
			appliedCount++
			status = "applied"
			statusColor = colorGreen
			if m.AppliedAt != nil {
				appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}

		fmt.Printf("%-10s %-40s %s%-12s%s %-20s\n",
			fmt.Sprintf("%03d", m.Version), m.Name, statusColor, status, colorReset, appliedAt)
	}

	fmt.Println(strings.Repeat("-", 85))
	printInfo(fmt.Sprintf("\nSummary: %d/%d migrations applied", appliedCount, len(migrations)))
	return nil
}

func printSuccess(msg string) {
	fmt.Printf("%s%s%s\n", colorGreen, msg, colorReset)
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, msg, colorReset)
}

func printInfo(msg string) {
	fmt.Printf("%s%s%s\n", colorCyan, msg, colorReset)
}

func printWarning(msg string) {
	fmt.Printf("%s%s%s\n", colorYellow, msg, colorReset)
}

func printUsage() {
	printInfo("=== CRM Dispatch Migration Runner ===\n")
	fmt.Println("Usage: go run ./cmd/migrate [command]")
	fmt.Println("\nCommands:")
	fmt.Println("  up       - Apply all pending migrations")
	fmt.Println("  down     - Rollback the last applied migration")
	fmt.Println("  status   - Show current migration status")
	fmt.Println("  reset    - Rollback all migrations and reapply them")
	fmt.Println("  help     - Show this help message")
	fmt.Println("\nNotes:")
	fmt.Println("  - Migrations are tracked in the 'schema_migrations' table")
	fmt.Println("  - Each migration runs in a transaction")
	fmt.Println("  - Rollback runs the matching NNN_name.down.sql file")
	fmt.Println("  - Demo data is loaded separately with 'go run ./cmd/seed'")
}
