package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/flotob/curia-sub002/internal/models"
	"github.com/flotob/curia-sub002/internal/telemetry"
	"github.com/flotob/curia-sub002/migrations"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// driverName is "postgres" or "sqlite", set by Initialize
var driverName string

// Initialize creates and configures the database connection.
// Postgres is the deployment target; sqlite is supported for local
// development via DB_DRIVER=sqlite.
func Initialize() error {
	// Configure GORM logger
	gormLogger := logger.Default
	if os.Getenv("ENVIRONMENT") == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	cfg := &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	var err error

	if os.Getenv("DB_DRIVER") == "sqlite" {
		path := getEnvOrDefault("SQLITE_PATH", "curia.db")
		db, err = gorm.Open(sqlite.Open(path), cfg)
		driverName = "sqlite"
	} else {
		db, err = gorm.Open(postgres.Open(PostgresDSN()), cfg)
		driverName = "postgres"
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
		return fmt.Errorf("failed to register tracing plugin: %w", err)
	}

	DB = db
	log.Println("✅ Database connected successfully")

	return nil
}

// PostgresDSN builds the connection string from DATABASE_URL or the
// individual DB_* variables.
func PostgresDSN() string {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}

	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "curia")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// Driver returns the active database driver name.
func Driver() string {
	return driverName
}

// Migrate brings the schema up to date. Postgres runs the embedded
// sequential SQL migrations; sqlite (dev only) falls back to AutoMigrate
// since the migration files use Postgres-specific DDL.
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	if driverName == "sqlite" {
		if err := AutoMigrate(DB); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Println("✅ Database migrations completed (sqlite automigrate)")
		return nil
	}

	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("✅ Database migrations completed")
	return nil
}

// MigrateDown rolls back n migration steps.
func MigrateDown(n int) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Steps(-n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to roll back migrations: %w", err)
	}
	return nil
}

// MigrationVersion returns the current schema version and dirty flag.
func MigrationVersion() (uint, bool, error) {
	m, err := newMigrator()
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// ForceVersion marks the schema at the given version without running
// anything, clearing a dirty state after a failed migration.
func ForceVersion(version int) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Force(version)
}

// DropAll drops every object in the database. Destructive, used to reset
// development environments.
func DropAll() error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Drop()
}

// newMigrator builds a golang-migrate instance over the embedded migration
// files and a dedicated lib/pq connection.
func newMigrator() (*migrate.Migrate, error) {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	sqlDB, err := sql.Open("postgres", PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open migration connection: %w", err)
	}

	driver, err := migratepg.WithInstance(sqlDB, &migratepg.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrator: %w", err)
	}
	return m, nil
}

// AutoMigrate creates the schema from the GORM models. Used by the sqlite
// dev path and by test suites that point DB at a scratch database.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Community{},
		&models.UserCommunity{},
		&models.UserFriend{},
		&models.Board{},
		&models.Post{},
		&models.Comment{},
		&models.Reaction{},
		&models.Lock{},
		&models.PreVerification{},
		&models.TelegramGroup{},
	)
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Health checks database connectivity
func Health() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
