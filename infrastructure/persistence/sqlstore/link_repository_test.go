package sqlstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"linkgraph/application/ports"
	"linkgraph/infrastructure/persistence/repotest"
)

func openSQLite(t *testing.T) *LinkRepository {
	t.Helper()
	repo, err := Open(context.Background(), DialectSQLite, ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestLinkRepository_Contract(t *testing.T) {
	repotest.Run(t, func(t *testing.T) ports.LinkRepository {
		return openSQLite(t)
	})
}

func TestOpen_SchemaIsIdempotent(t *testing.T) {
	repo := openSQLite(t)

	_, err := New(context.Background(), repo.db, DialectSQLite, zap.NewNop())

	assert.NoError(t, err)
}

func TestParseDialect(t *testing.T) {
	tests := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", DialectSQLite, false},
		{"SQLite3", DialectSQLite, false},
		{"postgres", DialectPostgres, false},
		{"postgresql", DialectPostgres, false},
		{"mysql", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDialect(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRebind(t *testing.T) {
	query := `SELECT 1 FROM entity_links WHERE tenant_id = ? AND id IN (` + placeholders(3) + `)`

	assert.Equal(t, query, DialectSQLite.rebind(query))
	assert.Equal(t,
		`SELECT 1 FROM entity_links WHERE tenant_id = $1 AND id IN ($2, $3, $4)`,
		DialectPostgres.rebind(query))
	assert.Equal(t, "", placeholders(0))
}
