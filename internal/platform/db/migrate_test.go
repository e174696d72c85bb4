package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-wms/migrations"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://wms:wms@db:5432/wms?sslmode=disable", MigrateURL("postgres://wms:wms@db:5432/wms?sslmode=disable"))
	require.Equal(t, "pgx5://db/wms", MigrateURL("postgresql://db/wms"))
	require.Equal(t, "pgx5://db/wms", MigrateURL("pgx5://db/wms"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.Equal(t, ups, downs)

	first, err := fs.ReadFile(migrations.FS, "000001_warehouse_orders.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"warehouse_order_lines", "warehouse_receiving_events", "warehouse_client_sequences"} {
		require.Contains(t, string(first), "CREATE TABLE IF NOT EXISTS "+table)
	}
}
