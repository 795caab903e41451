// Package migrations embeds the SQL schema migrations and applies them with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"

	"github.com/pressly/goose/v3"
)

// FS contains the embedded SQL migration files.
//
//go:embed *.sql
var FS embed.FS

var commands = map[string]func(context.Context, *sql.DB, string) error{
	"up":      func(ctx context.Context, db *sql.DB, dir string) error { return goose.UpContext(ctx, db, dir) },
	"up-one":  func(ctx context.Context, db *sql.DB, dir string) error { return goose.UpByOneContext(ctx, db, dir) },
	"down":    func(ctx context.Context, db *sql.DB, dir string) error { return goose.DownContext(ctx, db, dir) },
	"status":  func(ctx context.Context, db *sql.DB, dir string) error { return goose.StatusContext(ctx, db, dir) },
	"version": func(ctx context.Context, db *sql.DB, dir string) error { return goose.VersionContext(ctx, db, dir) },
	"reset":   func(ctx context.Context, db *sql.DB, dir string) error { return goose.ResetContext(ctx, db, dir) },
}

// Commands lists the supported migration commands.
func Commands() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run applies all pending migrations to the given database.
func Run(db *sql.DB) error {
	return Exec(context.Background(), db, "up")
}

// Exec runs a goose command against the embedded migrations.
func Exec(ctx context.Context, db *sql.DB, command string) error {
	fn, ok := commands[command]
	if !ok {
		return fmt.Errorf("unknown migration command %q", command)
	}

	goose.SetBaseFS(FS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := fn(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	return nil
}
