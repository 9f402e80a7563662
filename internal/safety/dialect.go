package safety

import "fmt"

// Dialect selects how the row cap is expressed.
type Dialect string

const (
	// SQLServer caps rows with TOP n after the projection keyword.
	SQLServer Dialect = "sqlserver"
	// Postgres caps rows with a trailing LIMIT n.
	Postgres Dialect = "postgres"
	// SQLite caps rows with a trailing LIMIT n.
	SQLite Dialect = "sqlite"
)

// ParseDialect maps a database driver name to its dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch driver {
	case "sqlserver", "mssql":
		return SQLServer, nil
	case "postgres", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return "", fmt.Errorf("unsupported SQL dialect %q", driver)
	}
}

// Name is the human-readable dialect name used in prompts.
func (d Dialect) Name() string {
	switch d {
	case SQLServer:
		return "T-SQL (SQL Server)"
	case Postgres:
		return "PostgreSQL"
	case SQLite:
		return "SQLite"
	default:
		return "SQL"
	}
}

// usesTop reports whether the dialect caps rows in projection position.
func (d Dialect) usesTop() bool {
	return d == SQLServer
}
