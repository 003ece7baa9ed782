package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"smsinbox/internal/constants"
)

// Backend is the resolved storage target. DSN is a postgres URL, a SQLite
// file path or a MongoDB URI, and empty for the memory backend.
type Backend struct {
	Kind string
	DSN  string
}

// ResolveBackend picks the storage backend from database.driver and
// database.url. SQLite URLs follow the sqlite:///relative.db and
// sqlite:////absolute.db convention.
func (d DatabaseConfig) ResolveBackend() (Backend, error) {
	driver := strings.ToLower(d.Driver)
	if driver == constants.BackendMemory {
		return Backend{Kind: constants.BackendMemory}, nil
	}

	if d.URL == "" {
		switch {
		case driver == constants.BackendSQLite && d.SQLite.Path != "":
			return Backend{Kind: constants.BackendSQLite, DSN: d.SQLite.Path}, nil
		case driver == constants.BackendMongoDB && d.MongoDB.URI != "":
			return Backend{Kind: constants.BackendMongoDB, DSN: d.MongoDB.URI}, nil
		case d.Postgres.Host != "":
			return Backend{Kind: constants.BackendPostgres, DSN: d.Postgres.DSN()}, nil
		}
		return Backend{}, errors.New("no database configured: set database.url, database.postgres.host or database.driver=memory")
	}

	u, err := url.Parse(d.URL)
	if err != nil {
		return Backend{}, fmt.Errorf("invalid database url: %w", err)
	}

	var b Backend
	switch strings.ToLower(u.Scheme) {
	case "postgres", "postgresql":
		b = Backend{Kind: constants.BackendPostgres, DSN: d.URL}
	case "sqlite", "sqlite3":
		path := d.URL[len(u.Scheme)+len("://"):]
		path = strings.TrimPrefix(path, "/")
		if path == "" {
			return Backend{}, errors.New("sqlite database url has no path")
		}
		b = Backend{Kind: constants.BackendSQLite, DSN: path}
	case "file":
		path := u.Opaque
		if path == "" {
			path = u.Path
		}
		b = Backend{Kind: constants.BackendSQLite, DSN: path}
	case "mongodb", "mongodb+srv":
		b = Backend{Kind: constants.BackendMongoDB, DSN: d.URL}
	default:
		return Backend{}, fmt.Errorf("unsupported database url scheme %q", u.Scheme)
	}

	if driver != "" && driver != b.Kind {
		return Backend{}, fmt.Errorf("database.driver %q does not match url scheme %q", d.Driver, u.Scheme)
	}

	return b, nil
}
