package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"margin-trader/internal/balance"
	"margin-trader/internal/market"
	"margin-trader/internal/monitor"
	"margin-trader/internal/order"
	"margin-trader/internal/position"
	"margin-trader/internal/retry"
	"margin-trader/internal/state"
	"margin-trader/pkg/config"
	"margin-trader/pkg/db"
	"margin-trader/pkg/exchanges/gmo"
	"margin-trader/pkg/logging"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(exitUsage)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, logger, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, args []string, out io.Writer) int {
	cmd, err := parseCommand(args)
	if err != nil {
		fmt.Fprintln(out, err)
		fmt.Fprint(out, usage)
		return exitUsage
	}

	validate := cfg.Validate
	if !cmd.private() {
		validate = cfg.ValidatePublic
	}
	if err := validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return exitUsage
	}

	a, err := newApp(ctx, cfg, logger, cmd.private())
	if err != nil {
		return exitCode(logger, cmd.name, err)
	}
	defer a.close()

	err = a.execute(ctx, cmd, out)
	a.logMetrics()
	return exitCode(logger, cmd.name, err)
}

func exitCode(logger zerolog.Logger, name string, err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, context.Canceled):
		logger.Warn().Str("command", name).Msg("interrupted")
		return exitError
	case retry.IsFatal(err):
		logger.Error().Err(err).Str("command", name).Msg("fatal condition, exiting")
		return exitError
	default:
		logger.Error().Err(err).Str("command", name).Msg("command failed")
		return exitError
	}
}

// app wires the exchange client to the gateways and the order manager.
type app struct {
	cfg        *config.Config
	logger     zerolog.Logger
	metrics    *monitor.Metrics
	client     *gmo.Client
	aggregator *market.Aggregator
	balances   *balance.Gateway
	positions  *position.Gateway
	session    *state.Session
	manager    *order.Manager
	database   *db.Database
	journal    *db.Journal
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, private bool) (*app, error) {
	metrics := monitor.NewMetrics()
	client := gmo.New(gmo.Config{
		Credentials: gmo.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret},
		PublicURL:   cfg.PublicURL,
		PrivateURL:  cfg.PrivateURL,
		Timeout:     cfg.HTTPTimeout,
		RateLimit:   cfg.RateLimitPerSec,
		RateBurst:   cfg.RateLimitBurst,
	})
	client.SetObserver(metrics)
	exec := retry.NewExecutor(cfg.RetryInterval, logger, metrics)

	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		client:  client,
		aggregator: market.NewAggregator(market.AggregatorConfig{
			Symbol:         cfg.Symbol,
			Interval:       "1min",
			Length:         cfg.WindowLength(),
			LookbackOffset: cfg.LookbackOffset,
			MaxPages:       cfg.KlineMaxPages,
		}, client, exec, logger),
	}

	if cfg.JournalPath != "" {
		database, err := db.New(cfg.JournalPath)
		if err != nil {
			return nil, err
		}
		if err := db.ApplyMigrations(database); err != nil {
			database.Close()
			return nil, err
		}
		a.database = database
		a.journal = db.NewJournal(database)
	}

	if !private {
		return a, nil
	}

	if _, err := gmo.NewSigner(gmo.Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret}); err != nil {
		a.close()
		return nil, retry.Fatal(err)
	}

	constraints, err := market.LoadConstraints(ctx, client, exec, cfg.Symbol)
	if err != nil {
		a.close()
		return nil, err
	}
	a.balances = balance.NewGateway(client, exec, cfg.FiatCurrency, logger)
	a.positions = position.NewGateway(client, exec, cfg.Symbol, logger)

	session, err := state.NewSession(ctx, a.balances)
	if err != nil {
		a.close()
		return nil, err
	}
	a.session = session

	var journal order.Journal
	if a.journal != nil {
		journal = a.journal
	}
	a.manager = order.NewManager(order.Config{
		Symbol:            cfg.Symbol,
		Leverage:          cfg.Leverage,
		PricePrecision:    cfg.PricePrecision,
		ClosePollInterval: cfg.ClosePollInterval,
	}, order.Deps{
		Exchange:    client,
		Positions:   a.positions,
		Prices:      a.aggregator,
		Session:     session,
		Constraints: constraints,
		Exec:        exec,
		Journal:     journal,
		Metrics:     metrics,
		Logger:      logger,
	})

	logger.Info().
		Str("symbol", cfg.Symbol).
		Str("min_order_size", constraints.MinOrderSize.String()).
		Str("size_step", constraints.SizeStep.String()).
		Str("balance", session.InitialBalance.String()).
		Str("leverage", cfg.Leverage.StringFixed(4)).
		Msg("session started")
	return a, nil
}

func (a *app) close() {
	if a.session != nil {
		a.session.MarkNormalTermination()
	}
	if err := a.database.Close(); err != nil {
		a.logger.Warn().Err(err).Msg("close journal")
	}
}

func (a *app) logMetrics() {
	snap := a.metrics.Snapshot()
	a.logger.Info().
		Uint64("requests", snap.Requests).
		Uint64("request_errors", snap.RequestErrors).
		Uint64("retries", snap.Retries).
		Uint64("rejections", snap.Rejections).
		Uint64("fatals", snap.Fatals).
		Float64("request_p95_ms", snap.RequestLatency.P95).
		Dur("clock_offset", a.client.TimeSync().Offset()).
		Msg("metrics")
}
