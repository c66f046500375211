// kline_export downloads daily 1-minute candles for a date range and writes
// them to a CSV file.
//
//	go run ./scripts/kline_export -from 20251001 -to 20251101 -out btc_jpy-1min.csv
//
// SYMBOL and PUBLIC_URL are read the same way as the trader reads them.
// Any API error aborts the export.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"margin-trader/internal/market"
	"margin-trader/pkg/config"
	"margin-trader/pkg/exchanges/gmo"
	"margin-trader/pkg/logging"
)

const dateLayout = "20060102"

func main() {
	from := flag.String("from", "", "first day, YYYYMMDD")
	to := flag.String("to", "", "last day, YYYYMMDD")
	out := flag.String("out", "", "output CSV path")
	interval := flag.String("interval", "1min", "kline interval")
	pause := flag.Duration("pause", time.Second, "delay between daily requests")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	start, err := time.ParseInLocation(dateLayout, *from, market.ExchangeLocation)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -from")
	}
	end, err := time.ParseInLocation(dateLayout, *to, market.ExchangeLocation)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid -to")
	}
	if end.Before(start) || *out == "" {
		logger.Fatal().Msg("need -from <= -to and -out")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := gmo.New(gmo.Config{PublicURL: cfg.PublicURL, Timeout: cfg.HTTPTimeout})
	if err := export(ctx, client, cfg.Symbol, *interval, start, end, *pause, *out, logger); err != nil {
		stop()
		logger.Fatal().Err(err).Msg("export failed")
	}
}

func export(ctx context.Context, client *gmo.Client, symbol, interval string, start, end time.Time, pause time.Duration, path string, logger zerolog.Logger) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"openTime", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}

	rows := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day != start {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pause):
			}
		}

		date := day.Format(dateLayout)
		klines, err := client.Klines(ctx, symbol, interval, date)
		if err != nil {
			return fmt.Errorf("klines %s: %w", date, err)
		}
		for _, k := range klines {
			c, ok := market.ParseCandle(k)
			if !ok {
				continue
			}
			if err := w.Write([]string{
				c.OpenTime.Format(time.RFC3339),
				cell(c.Open), cell(c.High), cell(c.Low), cell(c.Close), cell(c.Volume),
			}); err != nil {
				return err
			}
			rows++
		}
		logger.Info().Str("date", date).Int("candles", len(klines)).Msg("day exported")
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	logger.Info().Str("path", path).Int("rows", rows).Msg("export complete")
	return f.Close()
}

func cell(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}
