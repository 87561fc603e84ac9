package vtab

import (
	"database/sql"

	"github.com/mattn/go-sqlite3"

	"vec0/internal/chunkstore"
	"vec0/internal/rowdir"
	"vec0/internal/tableopts"
	"vec0/internal/vecerr"
)

// DBProvider resolves the *sql.DB a Module should route its
// shadow-table DDL/DML through. go-sqlite3's ConnectHook fires the
// instant a new physical connection dials, which for the very first
// connection is before sql.Open has returned the *sql.DB the caller
// will hold — so Module can't be handed a *sql.DB directly at
// construction time. A provider function sidesteps that: the caller
// registers it before sql.Open runs, and fills in the value it
// returns right after, which is always before any connection's first
// real query (sql.Open itself never dials).
type DBProvider func() *sql.DB

// Module implements sqlite3.Module, the vec0 virtual table factory.
// One Module instance is installed per physical connection (via
// ConnectHook, see Register) and serves every `USING vec0(...)` table
// declared on that connection. Shadow-table I/O for every table this
// Module opens goes through the same *sql.DB regardless of which
// physical connection is currently executing a statement — the
// shadow tables are ordinary persisted tables, so any connection onto
// the same database file sees the same data.
type Module struct {
	getDB DBProvider
}

// Create implements sqlite3.Module: called once when `CREATE VIRTUAL
// TABLE t USING vec0(...)` runs, building the schema, creating shadow
// tables, and declaring the vtab's shape to the host.
func (m *Module) Create(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.open(c, args, true)
}

// Connect implements sqlite3.Module: called when the host reopens an
// existing vec0 table (e.g. after a schema reload); shadow tables
// already exist, so it skips CreateShadowTables.
func (m *Module) Connect(c *sqlite3.SQLiteConn, args []string) (sqlite3.VTab, error) {
	return m.open(c, args, false)
}

// DestroyModule implements sqlite3.Module.
func (m *Module) DestroyModule() {}

// moduleArgs splits the argv go-sqlite3 hands a Module: args[0] is the
// module name, args[1] the database name, args[2] the table name, the
// rest are the column/option definitions from the USING clause.
func moduleArgs(args []string) (tableName string, rest []string) {
	if len(args) < 3 {
		return "", nil
	}
	return stripQuotes(args[2]), args[3:]
}

func stripQuotes(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'' || s[0] == '`') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

func (m *Module) open(c *sqlite3.SQLiteConn, args []string, create bool) (sqlite3.VTab, error) {
	tableName, colArgs := moduleArgs(args)
	if tableName == "" {
		return nil, vecerr.Constructorf("vec0: missing table name")
	}

	schema, err := tableopts.Parse(tableName, colArgs)
	if err != nil {
		return nil, err
	}

	if m.getDB == nil {
		return nil, vecerr.Internalf("vtab", "vec0: module not bound to a database handle")
	}
	rawDB := m.getDB()
	if rawDB == nil {
		return nil, vecerr.Internalf("vtab", "vec0: database handle not yet available")
	}

	store := chunkstore.New(rawDB, tableName, schema)
	dir := rowdir.New(rawDB, tableName, schema)

	if create {
		if err := store.CreateShadowTables(); err != nil {
			return nil, err
		}
	}

	l := newLayout(schema)
	if err := c.DeclareVTab(l.declareSQL()); err != nil {
		return nil, vecerr.Internalf("vtab", "declare vtab %s: %v", tableName, err)
	}

	return &VTab{table: tableName, schema: schema, store: store, dir: dir, layout: l}, nil
}
