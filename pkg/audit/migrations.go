package audit

import (
	"embed"
	"io/fs"
)

//go:embed migrations
var migrations embed.FS

// PostgresMigrations returns the goose migrations creating the audit_log table on Postgres.
func PostgresMigrations() fs.FS { return sub("migrations/postgres") }

// SQLiteMigrations returns the goose migrations creating the audit_log table on SQLite.
func SQLiteMigrations() fs.FS { return sub("migrations/sqlite") }

// Migrations returns the migrations for a dialect name ("postgres" or "sqlite3").
func Migrations(dialect string) (fs.FS, bool) {
	switch dialect {
	case "postgres":
		return PostgresMigrations(), true
	case "sqlite3":
		return SQLiteMigrations(), true
	}
	return nil, false
}

func sub(dir string) fs.FS {
	f, err := fs.Sub(migrations, dir)
	if err != nil {
		panic("audit: embedded migrations missing: " + err.Error())
	}
	return f
}
