package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/flotob/curia-sub002/internal/database"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	// Parse command
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		runMigrationsUp()
	case "down":
		runMigrationsDown()
	case "version":
		showVersion()
	case "force":
		forceVersion()
	case "drop":
		dropDatabase()
	case "create":
		createMigration()
	default:
		fmt.Println("Usage: migrate [up|down [n]|version|force <v>|drop --yes|create <name>]")
		fmt.Println("  up       - Run all pending migrations")
		fmt.Println("  down [n] - Roll back n migrations (default 1)")
		fmt.Println("  version  - Print the current schema version")
		fmt.Println("  force    - Mark the schema at a version without running anything")
		fmt.Println("  drop     - Drop everything in the database")
		fmt.Println("  create   - Create a new pair of migration files")
		os.Exit(1)
	}
}

func runMigrationsUp() {
	log.Println("🔄 Connecting to database...")

	// Initialize database connection
	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("✅ Database connected")
	log.Println("📈 Running migrations...")

	if err := database.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ All migrations completed successfully!")
}

func runMigrationsDown() {
	n := 1
	if len(os.Args) > 2 {
		parsed, err := strconv.Atoi(os.Args[2])
		if err != nil || parsed < 1 {
			log.Fatalf("❌ Invalid step count %q", os.Args[2])
		}
		n = parsed
	}

	requirePostgres()
	log.Printf("↩️  Rolling back %d migration(s)...", n)

	if err := database.MigrateDown(n); err != nil {
		log.Fatalf("❌ Rollback failed: %v", err)
	}

	log.Println("✅ Rollback completed")
}

func showVersion() {
	requirePostgres()

	version, dirty, err := database.MigrationVersion()
	if err != nil {
		log.Fatalf("❌ Failed to read schema version: %v", err)
	}
	if version == 0 {
		log.Println("📋 No migrations applied yet")
		return
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	log.Printf("📋 Schema version %d (%s)", version, state)
}

func forceVersion() {
	if len(os.Args) < 3 {
		log.Println("❌ Version required")
		log.Println("Usage: migrate force <version>")
		os.Exit(1)
	}
	version, err := strconv.Atoi(os.Args[2])
	if err != nil {
		log.Fatalf("❌ Invalid version %q", os.Args[2])
	}

	requirePostgres()
	if err := database.ForceVersion(version); err != nil {
		log.Fatalf("❌ Force failed: %v", err)
	}

	log.Printf("✅ Schema marked at version %d", version)
}

func dropDatabase() {
	if len(os.Args) < 3 || os.Args[2] != "--yes" {
		log.Println("❌ Refusing to drop the database without confirmation")
		log.Println("Usage: migrate drop --yes")
		os.Exit(1)
	}

	requirePostgres()
	log.Println("💣 Dropping database schema...")

	if err := database.DropAll(); err != nil {
		log.Fatalf("❌ Drop failed: %v", err)
	}

	log.Println("✅ Database dropped")
}

// createMigration writes an empty up/down pair with the next sequence
// number into the migrations directory.
func createMigration() {
	if len(os.Args) < 3 {
		log.Println("❌ Migration name required")
		log.Println("Usage: migrate create <migration_name>")
		os.Exit(1)
	}
	name := strings.ReplaceAll(strings.ToLower(os.Args[2]), " ", "_")

	files, err := filepath.Glob("migrations/*.up.sql")
	if err != nil {
		log.Fatalf("❌ Failed to scan migrations: %v", err)
	}
	sort.Strings(files)

	next := 1
	if len(files) > 0 {
		last := filepath.Base(files[len(files)-1])
		if seq, err := strconv.Atoi(strings.SplitN(last, "_", 2)[0]); err == nil {
			next = seq + 1
		}
	}

	for _, direction := range []string{"up", "down"} {
		path := fmt.Sprintf("migrations/%04d_%s.%s.sql", next, name, direction)
		if err := os.WriteFile(path, []byte("-- "+name+"\n"), 0o644); err != nil {
			log.Fatalf("❌ Failed to write %s: %v", path, err)
		}
		log.Printf("📝 Created %s", path)
	}
}

// requirePostgres guards the migration-history commands; sqlite dev
// databases use automigrate and have no version table to operate on.
func requirePostgres() {
	if os.Getenv("DB_DRIVER") == "sqlite" {
		log.Fatalln("❌ This command needs the Postgres migration history; sqlite uses automigrate only")
	}
}
