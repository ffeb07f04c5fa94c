package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsEmbeddedInOrder(t *testing.T) {
	names, err := Migrations()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	require.Equal(t, "migrations/0001_init.sql", names[0])

	body, err := migrationFS.ReadFile(names[0])
	require.NoError(t, err)
	for _, table := range []string{"products", "product_variants", "stock_transactions", "returns", "idempotency_keys"} {
		require.True(t, strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table+" "), table)
	}
}
