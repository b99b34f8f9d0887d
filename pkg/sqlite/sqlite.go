package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/dmitrymomot/tenantcore/pkg/pool"
)

// SQLite DSN parameters applied unless the DSN already sets them.
const (
	defaultBusyTimeout = "5000"
	defaultSynchronous = "NORMAL"
	defaultJournalMode = "WAL"
)

var ErrEmptyPath = errors.New("empty sqlite database path")

// Dialect is the SQLite SQL dialect. SQLite has no session settings, so
// tenant filtering relies entirely on the session scope predicates.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite3" }

func (Dialect) Placeholder(int) string { return "?" }

func (Dialect) BindTenant(context.Context, *sql.Tx, string) error { return nil }

// Opener opens SQLite databases for the pool registry. It is used for local
// development and tests; a strict-mode DSN template such as
// "data/{tenant}.db" gives every tenant its own file.
type Opener struct{}

// NewOpener creates a SQLite opener.
func NewOpener() *Opener { return &Opener{} }

// Dialect implements pool.Opener.
func (*Opener) Dialect() pool.Dialect { return Dialect{} }

// Open implements pool.Opener.
func (*Opener) Open(ctx context.Context, path string, maxConns int32) (*pool.Backend, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	db, err := sql.Open("sqlite3", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(int(maxConns))
		db.SetMaxIdleConns(int(maxConns))
	}
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &pool.Backend{DB: db}, nil
}

// buildDSN adds hardened parameters to a path or file: URI. Transactions use
// BEGIN IMMEDIATE so concurrent writers queue on busy_timeout instead of
// failing on lock upgrade.
func buildDSN(path string) string {
	base, rawQuery, _ := strings.Cut(path, "?")
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		params = url.Values{}
	}

	setDefault := func(k, v string) {
		if params.Get(k) == "" {
			params.Set(k, v)
		}
	}
	setDefault("_journal_mode", defaultJournalMode)
	setDefault("_busy_timeout", defaultBusyTimeout)
	setDefault("_synchronous", defaultSynchronous)
	setDefault("_foreign_keys", "on")
	setDefault("_txlock", "immediate")

	return base + "?" + params.Encode()
}
