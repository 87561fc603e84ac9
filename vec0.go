// Package vec0 registers a SQLite database/sql driver that extends
// github.com/mattn/go-sqlite3 with the vec0 virtual table module and
// its vec_* scalar functions, giving a host application chunked,
// metadata-filterable approximate vector search without an external
// vector database.
package vec0

import (
	"database/sql"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"vec0/internal/vtab"
)

// dbBox hands the vtab package a way to resolve the *sql.DB its
// shadow-table I/O runs through, even though that handle doesn't
// exist yet the instant the driver's ConnectHook fires for the first
// connection (sql.Open itself never dials; see vtab.DBProvider).
type dbBox struct {
	db *sql.DB
}

func (b *dbBox) get() *sql.DB { return b.db }

// Open opens a vec0-enabled SQLite database at dbPath: every
// connection drawn from the returned *sql.DB has the vec0 module and
// vec_* functions installed. Open then runs the same pragmas the host
// application's own database layer does for its primary store, once,
// through the pool: journal_mode=WAL is stored in the database file
// and holds for every connection; foreign_keys=ON and
// busy_timeout=30000 take effect only on the pooled connection that
// runs them, not on connections the pool opens later.
func Open(driverName, dbPath string) (*sql.DB, error) {
	box := &dbBox{}
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return vtab.Register(conn, box.get)
		},
	})

	db, err := sql.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("vec0: open %s: %w", dbPath, err)
	}
	box.db = db

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("vec0: ping %s: %w", dbPath, err)
	}

	if err := configurePragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func configurePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=30000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("vec0: exec %s: %w", p, err)
		}
	}
	return nil
}
