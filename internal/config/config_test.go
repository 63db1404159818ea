package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadFallsBackOnBadNumbers(t *testing.T) {
	t.Setenv("FINALIZE_TIMEOUT_SECONDS", "soon")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")

	cfg := Load()
	assert.Equal(t, 2*time.Minute, cfg.FinalizeTimeout())
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
}

func TestRates(t *testing.T) {
	t.Setenv("ZIG_PER_USD", "26.5")
	t.Setenv("RAND_PER_USD", "")

	rates, err := Load().Rates()
	require.NoError(t, err)
	assert.True(t, rates.ZIGPerUSD.Equal(decimal.RequireFromString("26.5")))
	assert.True(t, rates.RandPerUSD.IsZero())

	_, err = Config{ZIGPerUSD: "-1"}.Rates()
	require.Error(t, err)
}

func TestLocation(t *testing.T) {
	loc, err := Config{BusinessTimezone: "Africa/Harare"}.Location()
	require.NoError(t, err)
	assert.Equal(t, "Africa/Harare", loc.String())

	_, err = Config{BusinessTimezone: "Mars/Olympus"}.Location()
	require.Error(t, err)
}
