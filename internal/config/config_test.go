package config

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadForTestsAppliesOverrides(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL":                     "postgres://localhost/store_test",
		"REDIS_URL":                        "redis://localhost:6379/1",
		"JWT_SECRET":                       "test-secret",
		"PORT":                             "9090",
		"SHOP_FIRST_BOARD_GAME_PRICE":      "3500",
		"SHOP_ADDITIONAL_BOARD_GAME_PRICE": "2000",
		"SHOP_TAX_RATE_BPS":                "1900",
		"SHOP_CURRENCY":                    "SEK",
		"PREMIUM_GRANT_DURATION":           "4380h",
		"CORS_ALLOWED_ORIGINS":             "https://shop.example.com, https://admin.example.com",
	})
	require.NoError(t, err)

	require.Equal(t, "postgres://localhost/store_test", cfg.DatabaseURL)
	require.Equal(t, ":9090", cfg.HTTPAddr())
	require.Equal(t, int64(3500), cfg.FirstBoardGamePrice)
	require.Equal(t, int64(2000), cfg.AdditionalBoardGamePrice)
	require.Equal(t, 1900, cfg.PricingTaxRateBps)
	require.Equal(t, "SEK", cfg.CurrencyCode)
	require.Equal(t, 4380*time.Hour, cfg.PremiumGrantDuration)
	require.Equal(t, []string{"https://shop.example.com", "https://admin.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(map[string]string{
		"DATABASE_URL": "postgres://localhost/store_test",
		"REDIS_URL":    "redis://localhost:6379/1",
		"JWT_SECRET":   "test-secret",
	})
	require.NoError(t, err)

	require.Equal(t, int64(4000), cfg.FirstBoardGamePrice)
	require.Equal(t, int64(2500), cfg.AdditionalBoardGamePrice)
	require.Equal(t, int64(5000), cfg.FreeShippingThreshold)
	require.Equal(t, int64(599), cfg.StandardShippingCost)
	require.Equal(t, 2100, cfg.PricingTaxRateBps)
	require.Equal(t, "EUR", cfg.CurrencyCode)
	require.Equal(t, 8760*time.Hour, cfg.PremiumGrantDuration)
	require.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, http.SameSiteLaxMode, cfg.RefreshCookieSameSite)
	require.True(t, cfg.MigrateOnStart)
}

func TestLoadRejectsMissingSecrets(t *testing.T) {
	_, err := LoadForTests(map[string]string{
		"DATABASE_URL": "postgres://localhost/store_test",
		"REDIS_URL":    "redis://localhost:6379/1",
		"JWT_SECRET":   "",
	})
	require.Error(t, err)
}
