package storage

import (
	"fmt"
)

// DatabaseType names a supported SQL backend
type DatabaseType string

const (
	// MySQL via go-sql-driver/mysql
	MySQL DatabaseType = "mysql"
	// PostgreSQL via lib/pq
	PostgreSQL DatabaseType = "postgresql"
	// PGX is PostgreSQL via the jackc/pgx database/sql driver
	PGX DatabaseType = "pgx"
)

// NewDatabaseStorage opens the SQL store for dbType
func NewDatabaseStorage(dbType string, dsn string) (*SQLStorage, error) {
	switch DatabaseType(dbType) {
	case MySQL:
		return NewMySQLStorage(dsn)
	case PostgreSQL, "postgres":
		return NewPostgreSQLStorage("postgres", dsn)
	case PGX:
		return NewPostgreSQLStorage("pgx", dsn)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
