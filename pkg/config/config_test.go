package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GMO_API_KEY", "key")
	t.Setenv("GMO_API_SECRET", "secret")
	for _, k := range []string{"SYMBOL", "LEVERAGE", "LONG_TERM_MIN", "RETRY_INTERVAL", "CONFIG_FILE", "PRICE_PRECISION"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "BTC_JPY", cfg.Symbol)
	assert.Equal(t, "JPY", cfg.FiatCurrency)
	assert.Equal(t, 61, cfg.WindowLength())
	assert.Equal(t, 3*time.Second, cfg.RetryInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.ClosePollInterval)
	assert.Equal(t, 6*time.Hour, cfg.LookbackOffset)
	assert.Equal(t, int32(0), cfg.PricePrecision)
	assert.True(t, cfg.Leverage.Equal(decimal.NewFromInt(2).Div(decimal.RequireFromString("1.1"))))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("GMO_API_KEY", "key")
	t.Setenv("GMO_API_SECRET", "secret")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SYMBOL", "ETH_JPY")
	t.Setenv("LEVERAGE", "1.5")
	t.Setenv("LONG_TERM_MIN", "30")
	t.Setenv("RETRY_INTERVAL", "250ms")
	t.Setenv("KLINE_MAX_PAGES", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ETH_JPY", cfg.Symbol)
	assert.Equal(t, "1.5", cfg.Leverage.String())
	assert.Equal(t, 31, cfg.WindowLength())
	assert.Equal(t, 250*time.Millisecond, cfg.RetryInterval)
	assert.Equal(t, 30, cfg.KlineMaxPages)
}

func TestLoadConfigFileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trader.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
symbol: BTC_JPY
long_term_min: 120
leverage: "3/2"
close_poll_interval: 1s
journal_path: ./data/journal.db
`), 0o600))

	t.Setenv("GMO_API_KEY", "key")
	t.Setenv("GMO_API_SECRET", "secret")
	t.Setenv("LONG_TERM_MIN", "")
	t.Setenv("LEVERAGE", "")
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 120, cfg.LongTermMin)
	assert.Equal(t, "1.5", cfg.Leverage.String())
	assert.Equal(t, time.Second, cfg.ClosePollInterval)
	assert.Equal(t, "./data/journal.db", cfg.JournalPath)
	assert.Equal(t, "key", cfg.APIKey)
}

func TestLoadBadLeverage(t *testing.T) {
	t.Setenv("LEVERAGE", "2/0")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			APIKey: "k", APISecret: "s", Symbol: "BTC_JPY",
			FollowMin: 1, ShortTermMin: 10, LongTermMin: 60,
			Leverage:      decimal.NewFromInt(2),
			RetryInterval: time.Second, ClosePollInterval: time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(c *Config){
		"missing secret":      func(c *Config) { c.APISecret = "" },
		"zero leverage":       func(c *Config) { c.Leverage = decimal.Zero },
		"inverted timeframes": func(c *Config) { c.ShortTermMin = 90 },
		"zero follow":         func(c *Config) { c.FollowMin = 0 },
		"negative precision":  func(c *Config) { c.PricePrecision = -1 },
		"no retry interval":   func(c *Config) { c.RetryInterval = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseLeverage(t *testing.T) {
	lv, err := ParseLeverage(" 2 / 1.1 ")
	require.NoError(t, err)
	assert.Equal(t, "1.82", lv.StringFixed(2))

	lv, err = ParseLeverage("1.8")
	require.NoError(t, err)
	assert.Equal(t, "1.8", lv.String())

	_, err = ParseLeverage("x/2")
	assert.Error(t, err)
	_, err = ParseLeverage("")
	assert.Error(t, err)
}
