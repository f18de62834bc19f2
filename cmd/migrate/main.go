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

	"github.com/joho/godotenv"

	"github.com/securemedai/portal/infrastructure/adapter/postgres"
	"github.com/securemedai/portal/infrastructure/service/logger"
)

type migration struct {
	version int
	name    string
	up      string
	down    string
}

func main() {
	mode := flag.String("mode", "up", "migration mode: up, down or status")
	dir := flag.String("dir", "migrations", "directory holding NNN_name.up.sql / NNN_name.down.sql files")
	flag.Parse()

	_ = godotenv.Load()
	log := logger.NewStructuredLogger(logger.LoggerConfig{Level: "info", Format: "text", ServiceName: "portal-migrate"})
	ctx := context.Background()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Error(ctx, "DATABASE_URL environment variable is required", nil, nil)
		os.Exit(1)
	}

	db, err := postgres.Open(ctx, dsn)
	if err != nil {
		log.Error(ctx, "Failed to connect database", err, nil)
		os.Exit(1)
	}
	defer db.Close()

	if err := ensureSchemaMigrations(ctx, db); err != nil {
		log.Error(ctx, "Failed to ensure schema_migrations", err, nil)
		os.Exit(1)
	}

	migrations, err := loadMigrations(*dir)
	if err != nil {
		log.Error(ctx, "Failed to load migrations", err, map[string]interface{}{"dir": *dir})
		os.Exit(1)
	}

	switch strings.ToLower(*mode) {
	case "up":
		err = applyUp(ctx, db, log, migrations)
	case "down":
		err = applyDown(ctx, db, log, migrations)
	case "status":
		err = printStatus(ctx, db, migrations)
	default:
		err = fmt.Errorf("unknown mode: %s", *mode)
	}
	if err != nil {
		log.Error(ctx, "Migration failed", err, map[string]interface{}{"mode": *mode})
		os.Exit(1)
	}
	log.Info(ctx, "Migration completed", map[string]interface{}{"mode": *mode})
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

// loadMigrations pairs up/down files by version, ascending.
func loadMigrations(dir string) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	byVersion := map[int]*migration{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var kind, base string
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			kind, base = "up", strings.TrimSuffix(name, ".up.sql")
		case strings.HasSuffix(name, ".down.sql"):
			kind, base = "down", strings.TrimSuffix(name, ".down.sql")
		default:
			continue
		}

		version, label, err := parseVersionAndName(base)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		m, ok := byVersion[version]
		if !ok {
			m = &migration{version: version, name: label}
			byVersion[version] = m
		}
		path := filepath.Join(dir, name)
		if kind == "up" {
			m.up = path
		} else {
			m.down = path
		}
	}

	out := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func parseVersionAndName(base string) (int, string, error) {
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, "", errors.New("expected NNN_name")
	}
	version, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("invalid version %q", parts[0])
	}
	return version, parts[1], nil
}

func applied(ctx context.Context, db *sql.DB) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

func applyUp(ctx context.Context, db *sql.DB, log logger.Logger, migrations []migration) error {
	done, err := applied(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if done[m.version] || m.up == "" {
			continue
		}
		log.Info(ctx, "Applying migration", map[string]interface{}{"version": m.version, "name": m.name})
		if err := runInTx(ctx, db, m.up, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.version, m.name); err != nil {
			return fmt.Errorf("failed applying %03d_%s: %w", m.version, m.name, err)
		}
	}
	return nil
}

func applyDown(ctx context.Context, db *sql.DB, log logger.Logger, migrations []migration) error {
	done, err := applied(ctx, db)
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if !done[m.version] || m.down == "" {
			continue
		}
		log.Info(ctx, "Reverting migration", map[string]interface{}{"version": m.version, "name": m.name})
		if err := runInTx(ctx, db, m.down, `DELETE FROM schema_migrations WHERE version = $1`, m.version); err != nil {
			return fmt.Errorf("failed reverting %03d_%s: %w", m.version, m.name, err)
		}
	}
	return nil
}

func printStatus(ctx context.Context, db *sql.DB, migrations []migration) error {
	done, err := applied(ctx, db)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		state := "pending"
		if done[m.version] {
			state = "applied"
		}
		fmt.Printf("%03d_%s\t%s\n", m.version, m.name, state)
	}
	return nil
}

func runInTx(ctx context.Context, db *sql.DB, path, bookkeeping string, args ...interface{}) error {
	script, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, bookkeeping, args...); err != nil {
		return err
	}
	return tx.Commit()
}
