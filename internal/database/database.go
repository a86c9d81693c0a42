// Package database opens the SQL store and applies schema migrations.
//
// SQLite (modernc.org/sqlite) is the default embedded store; PostgreSQL is
// reached through the pgx stdlib driver. Queries are written with "?"
// placeholders and rebound for PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver ("pgx")
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Querier is satisfied by both *DB and the transaction handed to WithTx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB is a connection pool that rebinds placeholders for its dialect.
type DB struct {
	*sql.DB
	dialect Dialect
}

// New creates a new database connection pool for the given driver
// ("sqlite" or "postgres").
func New(driver, dataSourceName string) (*DB, error) {
	var (
		db  *sql.DB
		err error
	)
	switch Dialect(driver) {
	case DialectSQLite:
		db, err = sql.Open("sqlite", sqliteDSN(dataSourceName))
		if err == nil {
			// SQLite has a single writer; one connection avoids SQLITE_BUSY.
			db.SetMaxOpenConns(1)
		}
	case DialectPostgres:
		db, err = sql.Open("pgx", dataSourceName)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return Wrap(db, Dialect(driver)), nil
}

// Wrap adapts an already opened pool.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect}
}

// Dialect returns the SQL flavour of the pool.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.DB.ExecContext(ctx, rebind(db.dialect, query), args...)
}

func (db *DB) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.DB.QueryContext(ctx, rebind(db.dialect, query), args...)
}

func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.DB.QueryRowContext(ctx, rebind(db.dialect, query), args...)
}

// WithTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&txQuerier{tx: tx, dialect: db.dialect}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type txQuerier struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *txQuerier) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, rebind(t.dialect, query), args...)
}

func (t *txQuerier) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, rebind(t.dialect, query), args...)
}

func (t *txQuerier) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, rebind(t.dialect, query), args...)
}

// IsUniqueViolation reports whether err is a unique-constraint failure from
// either backend.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

// rebind rewrites "?" placeholders as "$1", "$2", ... for PostgreSQL.
// Queries in this module never contain a literal question mark.
func rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}
