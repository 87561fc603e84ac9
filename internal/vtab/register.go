package vtab

import (
	"github.com/mattn/go-sqlite3"
)

// Register installs the vec0 module and every vec_* scalar function
// on one physical connection: called from a driver ConnectHook, once
// per connection, the way the host application wires its own custom
// SQL functions in ConnectHook today.
func Register(conn *sqlite3.SQLiteConn, getDB DBProvider) error {
	if err := registerFunctions(conn); err != nil {
		return err
	}
	return conn.CreateModule("vec0", &Module{getDB: getDB})
}
