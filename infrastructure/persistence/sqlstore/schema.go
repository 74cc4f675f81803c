package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect identifies the SQL flavour of the connection.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DriverName returns the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	return string(d)
}

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// rebind rewrites ? placeholders for dialects that number them.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// schemaStatements create the tables used by the store. Timestamps are stored
// as RFC 3339 text so both dialects share one schema.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS entity_links (
		tenant_id  TEXT NOT NULL,
		id         TEXT NOT NULL,
		from_type  TEXT NOT NULL,
		from_id    TEXT NOT NULL,
		to_type    TEXT NOT NULL,
		to_id      TEXT NOT NULL,
		kind       TEXT NOT NULL,
		note       TEXT NOT NULL DEFAULT '',
		metadata   TEXT,
		active     BOOLEAN NOT NULL,
		created_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_links_from ON entity_links (tenant_id, from_type, from_id, kind)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_links_to ON entity_links (tenant_id, to_type, to_id, kind)`,
	`CREATE TABLE IF NOT EXISTS entity_summaries (
		tenant_id   TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id   TEXT NOT NULL,
		title       TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT '',
		url         TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (tenant_id, entity_type, entity_id)
	)`,
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
