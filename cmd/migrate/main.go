package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

type migrationFile struct {
	version int
	name    string
	path    string
	kind    string // up or down
}

func main() {
	mode := flag.String("mode", "up", "migration mode: up, down or status")
	dir := flag.String("dir", "migrations", "directory holding NNN_name.up.sql / NNN_name.down.sql files")
	steps := flag.Int("steps", 1, "number of migrations to revert in down mode (0 reverts all)")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	_ = godotenv.Load()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if err := ensureSchemaMigrations(ctx, db); err != nil {
		log.Fatalf("failed to ensure schema_migrations: %v", err)
	}

	files, err := loadMigrationFiles(*dir, log)
	if err != nil {
		log.Fatalf("failed to load migrations: %v", err)
	}

	switch strings.ToLower(*mode) {
	case "up":
		applied, err := applyUp(ctx, db, files, log)
		if err != nil {
			log.Fatalf("migration up failed: %v", err)
		}
		log.WithField("applied", applied).Info("Migration up completed")
	case "down":
		reverted, err := applyDown(ctx, db, files, *steps, log)
		if err != nil {
			log.Fatalf("migration down failed: %v", err)
		}
		log.WithField("reverted", reverted).Info("Migration down completed")
	case "status":
		if err := printStatus(ctx, db, files); err != nil {
			log.Fatalf("migration status failed: %v", err)
		}
	default:
		log.Fatalf("unknown mode: %s", *mode)
	}
}

func ensureSchemaMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

func loadMigrationFiles(dir string, log *logrus.Logger) ([]migrationFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []migrationFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		lower := strings.ToLower(name)

		var kind string
		switch {
		case strings.HasSuffix(lower, ".up.sql"):
			kind = "up"
		case strings.HasSuffix(lower, ".down.sql"):
			kind = "down"
		default:
			continue
		}

		ver, migName, err := parseVersionAndName(name)
		if err != nil {
			log.WithField("file", name).Warn("skip migration without version prefix")
			continue
		}

		files = append(files, migrationFile{
			version: ver,
			name:    migName,
			path:    filepath.Join(dir, name),
			kind:    kind,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// parseVersionAndName splits 001_create_change_requests.up.sql into 1 and create_change_requests
func parseVersionAndName(filename string) (int, string, error) {
	parts := strings.SplitN(filename, "_", 2)
	if len(parts) < 2 {
		return 0, "", errors.New("invalid filename")
	}
	ver, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid version: %w", err)
	}
	name := strings.TrimSuffix(strings.TrimSuffix(parts[1], ".up.sql"), ".down.sql")
	return ver, name, nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[int]time.Time, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var (
			version   int
			appliedAt time.Time
		)
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, err
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

func applyUp(ctx context.Context, db *sql.DB, files []migrationFile, log *logrus.Logger) (int, error) {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, f := range files {
		if f.kind != "up" {
			continue
		}
		if _, ok := applied[f.version]; ok {
			continue
		}

		log.WithFields(logrus.Fields{"version": f.version, "name": f.name}).Info("Applying migration")
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if err := execSQLFile(ctx, tx, f.path); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations(version, name) VALUES($1, $2)", f.version, f.name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("failed applying %s: %w", f.path, err)
		}
		count++
	}
	return count, nil
}

func applyDown(ctx context.Context, db *sql.DB, files []migrationFile, steps int, log *logrus.Logger) (int, error) {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return 0, err
	}

	var downs []migrationFile
	for _, f := range files {
		if f.kind == "down" {
			downs = append(downs, f)
		}
	}
	sort.Slice(downs, func(i, j int) bool { return downs[i].version > downs[j].version })

	count := 0
	for _, f := range downs {
		if steps > 0 && count >= steps {
			break
		}
		if _, ok := applied[f.version]; !ok {
			continue
		}

		log.WithFields(logrus.Fields{"version": f.version, "name": f.name}).Info("Reverting migration")
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			if err := execSQLFile(ctx, tx, f.path); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, "DELETE FROM schema_migrations WHERE version=$1", f.version)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("failed reverting %s: %w", f.path, err)
		}
		count++
	}
	return count, nil
}

func printStatus(ctx context.Context, db *sql.DB, files []migrationFile) error {
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}
	for _, f := range files {
		if f.kind != "up" {
			continue
		}
		state := "pending"
		if at, ok := applied[f.version]; ok {
			state = "applied " + at.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%03d %-40s %s\n", f.version, f.name, state)
	}
	return nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func execSQLFile(ctx context.Context, tx *sql.Tx, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, string(content))
	return err
}
