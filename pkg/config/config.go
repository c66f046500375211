package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds environment-driven settings for the trader.
type Config struct {
	// Credentials
	APIKey    string
	APISecret string

	// Endpoints
	PublicURL  string
	PrivateURL string

	// Trading
	Symbol         string          `yaml:"symbol"`
	FiatCurrency   string          `yaml:"fiat_currency"`
	FollowMin      int             `yaml:"follow_min"`
	ShortTermMin   int             `yaml:"short_term_min"`
	LongTermMin    int             `yaml:"long_term_min"`
	Leverage       decimal.Decimal `yaml:"-"`
	PricePrecision int32           `yaml:"price_precision"`

	// Timing
	RetryInterval     time.Duration `yaml:"retry_interval"`
	ClosePollInterval time.Duration `yaml:"close_poll_interval"`
	LookbackOffset    time.Duration `yaml:"lookback_offset"`
	KlineMaxPages     int           `yaml:"kline_max_pages"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`

	// Pacing
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Journal (empty disables it)
	JournalPath string `yaml:"journal_path"`
}

// fileOverlay mirrors the YAML file. Leverage is kept as text so it can be
// written as a fraction.
type fileOverlay struct {
	Config   `yaml:",inline"`
	Leverage string `yaml:"leverage"`
}

// Load reads environment variables (optionally via .env) into Config and
// applies the YAML file named by CONFIG_FILE on top, if any.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	leverage, err := ParseLeverage(getEnv("LEVERAGE", "2/1.1"))
	if err != nil {
		return nil, fmt.Errorf("LEVERAGE: %w", err)
	}

	cfg := &Config{
		APIKey:            os.Getenv("GMO_API_KEY"),
		APISecret:         os.Getenv("GMO_API_SECRET"),
		PublicURL:         getEnv("PUBLIC_URL", "https://api.coin.z.com/public"),
		PrivateURL:        getEnv("PRIVATE_URL", "https://api.coin.z.com/private"),
		Symbol:            getEnv("SYMBOL", "BTC_JPY"),
		FiatCurrency:      getEnv("FIAT_CURRENCY", "JPY"),
		FollowMin:         getEnvInt("FOLLOW_MIN", 1),
		ShortTermMin:      getEnvInt("SHORT_TERM_MIN", 10),
		LongTermMin:       getEnvInt("LONG_TERM_MIN", 60),
		Leverage:          leverage,
		PricePrecision:    int32(getEnvInt("PRICE_PRECISION", 0)),
		RetryInterval:     getEnvDuration("RETRY_INTERVAL", 3*time.Second),
		ClosePollInterval: getEnvDuration("CLOSE_POLL_INTERVAL", 500*time.Millisecond),
		LookbackOffset:    getEnvDuration("LOOKBACK_OFFSET", 6*time.Hour),
		KlineMaxPages:     getEnvInt("KLINE_MAX_PAGES", 30),
		HTTPTimeout:       getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		RateLimitPerSec:   getEnvFloat("RATE_LIMIT_PER_SEC", 5),
		RateLimitBurst:    getEnvInt("RATE_LIMIT_BURST", 1),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "console"),
		JournalPath:       getEnv("JOURNAL_PATH", ""),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// applyFile overlays non-zero values from a YAML file. Credentials are never
// read from the file.
func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var f fileOverlay
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&c.Symbol, f.Symbol)
	setString(&c.FiatCurrency, f.FiatCurrency)
	setString(&c.LogLevel, f.LogLevel)
	setString(&c.LogFormat, f.LogFormat)
	setString(&c.JournalPath, f.JournalPath)
	setInt(&c.FollowMin, f.FollowMin)
	setInt(&c.ShortTermMin, f.ShortTermMin)
	setInt(&c.LongTermMin, f.LongTermMin)
	setInt(&c.KlineMaxPages, f.KlineMaxPages)
	setInt(&c.RateLimitBurst, f.RateLimitBurst)
	if f.PricePrecision != 0 {
		c.PricePrecision = f.PricePrecision
	}
	if f.RateLimitPerSec != 0 {
		c.RateLimitPerSec = f.RateLimitPerSec
	}
	for dst, v := range map[*time.Duration]time.Duration{
		&c.RetryInterval:     f.RetryInterval,
		&c.ClosePollInterval: f.ClosePollInterval,
		&c.LookbackOffset:    f.LookbackOffset,
		&c.HTTPTimeout:       f.HTTPTimeout,
	} {
		if v != 0 {
			*dst = v
		}
	}
	if f.Leverage != "" {
		lv, err := ParseLeverage(f.Leverage)
		if err != nil {
			return fmt.Errorf("config file leverage: %w", err)
		}
		c.Leverage = lv
	}
	return nil
}

// Validate reports settings the trader cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" || c.APISecret == "" {
		errs = append(errs, errors.New("GMO_API_KEY and GMO_API_SECRET are required"))
	}
	if err := c.ValidatePublic(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidatePublic checks the settings needed by market-data-only commands.
func (c *Config) ValidatePublic() error {
	var errs []error
	if c.Symbol == "" {
		errs = append(errs, errors.New("SYMBOL is empty"))
	}
	if !c.Leverage.IsPositive() {
		errs = append(errs, fmt.Errorf("leverage must be positive, got %s", c.Leverage))
	}
	if c.FollowMin <= 0 || c.FollowMin > c.ShortTermMin || c.ShortTermMin > c.LongTermMin {
		errs = append(errs, fmt.Errorf("timeframes must satisfy 0 < follow (%d) <= short (%d) <= long (%d)",
			c.FollowMin, c.ShortTermMin, c.LongTermMin))
	}
	if c.PricePrecision < 0 {
		errs = append(errs, fmt.Errorf("PRICE_PRECISION must not be negative, got %d", c.PricePrecision))
	}
	if c.RetryInterval <= 0 || c.ClosePollInterval <= 0 {
		errs = append(errs, errors.New("RETRY_INTERVAL and CLOSE_POLL_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// WindowLength is the number of candles the market window holds.
func (c *Config) WindowLength() int {
	return c.LongTermMin + 1
}

// ParseLeverage accepts a decimal ("1.8") or a fraction ("2/1.1").
func ParseLeverage(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	num, den, isFraction := strings.Cut(s, "/")
	n, err := decimal.NewFromString(strings.TrimSpace(num))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse leverage %q: %w", s, err)
	}
	if !isFraction {
		return n, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(den))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse leverage %q: %w", s, err)
	}
	if d.IsZero() {
		return decimal.Zero, fmt.Errorf("parse leverage %q: zero denominator", s)
	}
	return n.Div(d), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}
