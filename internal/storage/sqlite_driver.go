package storage

import (
	"database/sql"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// SQLiteDriverName is the database/sql driver to open SQLite stores with.
// It is go-sqlite3 plus a unicode_lower function, because SQLite's LOWER
// only folds ASCII.
const SQLiteDriverName = "sqlite3_smsinbox"

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			return conn.RegisterFunc("unicode_lower", unicodeLower, true)
		},
	})
}

// unicodeLower lowercases TEXT the way strings.ToLower does. NULL stays NULL.
func unicodeLower(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return strings.ToLower(s)
}
