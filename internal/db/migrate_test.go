package db

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// The stores write SQL by hand, so the schema must carry every column they
// reference. Guard the ones that are easy to lose when editing migrations.
func TestInitMigrationDeclaresStoreColumns(t *testing.T) {
	raw, err := migrationsFS.ReadFile("migrations/0001_init.up.sql")
	require.NoError(t, err)
	ddl := string(raw)

	tables := map[string][]string{
		"users":              {"name", "email", "password_hash", "roles", "premium_until"},
		"sessions":           {"user_id", "refresh_token", "user_agent", "ip", "expires_at"},
		"categories":         {"name", "slug", "parent_id"},
		"products":           {"category_id", "name", "slug", "description", "product_type", "price", "sale_price", "active"},
		"shop_settings":      {"first_board_game_price", "additional_board_game_price", "free_shipping_threshold", "standard_shipping_cost", "tax_rate_bps", "currency"},
		"orders":             {"user_id", "status", "subtotal", "shipping", "tax", "total", "currency", "board_game_count", "grants_premium_access"},
		"order_items":        {"order_id", "product_id", "product_name", "qty", "unit_price", "total"},
		"domain_events":      {"topic", "aggregate_id", "payload", "occurred_at"},
		"entitlement_grants": {"order_id", "user_id", "granted_until"},
	}

	for table, columns := range tables {
		body := tableBody(t, ddl, table)
		for _, column := range columns {
			require.Contains(t, body, column, "table %s is missing column %s", table, column)
		}
	}
}

func TestDownMigrationDropsEveryTable(t *testing.T) {
	up, err := migrationsFS.ReadFile("migrations/0001_init.up.sql")
	require.NoError(t, err)
	down, err := migrationsFS.ReadFile("migrations/0001_init.down.sql")
	require.NoError(t, err)

	created := regexp.MustCompile(`CREATE TABLE (\w+)`).FindAllStringSubmatch(string(up), -1)
	require.NotEmpty(t, created)
	for _, m := range created {
		require.Contains(t, string(down), "DROP TABLE IF EXISTS "+m[1], "table %s is never dropped", m[1])
	}
}

func tableBody(t *testing.T, ddl, table string) string {
	t.Helper()
	start := strings.Index(ddl, "CREATE TABLE "+table+" (")
	require.GreaterOrEqual(t, start, 0, "no CREATE TABLE for %s", table)
	rest := ddl[start:]
	end := strings.Index(rest, ");")
	require.GreaterOrEqual(t, end, 0)
	return rest[:end]
}
