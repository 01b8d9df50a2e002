package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("shop", ":8080", "")
	require.NoError(t, err)

	assert.Equal(t, "shop", cfg.Service)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10*time.Minute, cfg.Cache.ItemTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.PageTTL)
	assert.Equal(t, 3*time.Second, cfg.Payments.Timeout)
	assert.Equal(t, 3, cfg.Checkout.FinalizeAttempts)
	assert.Empty(t, cfg.KafkaBrokers())
	assert.Equal(t, "1000", cfg.PaymentsBalance().String())
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.yaml")
	yaml := []byte("http_addr: \":9000\"\ncache:\n  page_ttl: 30s\nkafka:\n  brokers: \"a:9092, ,b:9092\"\n")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))

	t.Setenv("SHOP_HTTP_ADDR", ":9100")
	t.Setenv("SHOP_PAYMENTS_TIMEOUT", "750ms")

	cfg, err := Load("shop", ":8080", path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.Cache.PageTTL)
	assert.Equal(t, 750*time.Millisecond, cfg.Payments.Timeout)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers())
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("SHOP_PAYMENTS_BALANCE", "lots")
	t.Setenv("SHOP_CHECKOUT_FINALIZE_ATTEMPTS", "0")

	_, err := Load("payments", ":8090", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payments.balance")
	assert.Contains(t, err.Error(), "finalize_attempts")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("shop", ":8080", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
