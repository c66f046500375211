package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"margin-trader/internal/order"
	"margin-trader/pkg/exchanges/common"
)

const usage = `usage: margin-trader <command> [args]

commands:
  status                  balance, position and session summary
  window                  build the rolling candle window and summarize it
  open <BUY|SELL> <price> place a sized STOP entry order
  close-stop <price>      place a protective STOP close for the whole position
  close-market            close the whole position at market and wait for the fill
  amend <order-id> <price>
  cancel <order-id>
  history [-n N]          recent journal entries (JOURNAL_PATH must be set)
`

type command struct {
	name    string
	side    common.Side
	price   decimal.Decimal
	orderID int64
	limit   int
}

func (c command) private() bool {
	return c.name != "window" && c.name != "history"
}

func parseCommand(args []string) (command, error) {
	if len(args) == 0 {
		return command{}, errors.New("missing command")
	}
	cmd := command{name: args[0]}
	rest := args[1:]

	want := func(n int) error {
		if len(rest) != n {
			return fmt.Errorf("%s: expected %d argument(s), got %d", cmd.name, n, len(rest))
		}
		return nil
	}

	var err error
	switch cmd.name {
	case "status", "window", "close-market":
		err = want(0)
	case "open":
		if err = want(2); err != nil {
			break
		}
		if cmd.side, err = common.ParseSide(rest[0]); err == nil && !cmd.side.Tradable() {
			err = fmt.Errorf("open: side must be BUY or SELL")
		}
		if err == nil {
			cmd.price, err = parsePrice(rest[1])
		}
	case "close-stop":
		if err = want(1); err == nil {
			cmd.price, err = parsePrice(rest[0])
		}
	case "amend":
		if err = want(2); err != nil {
			break
		}
		if cmd.orderID, err = parseOrderID(rest[0]); err == nil {
			cmd.price, err = parsePrice(rest[1])
		}
	case "cancel":
		if err = want(1); err == nil {
			cmd.orderID, err = parseOrderID(rest[0])
		}
	case "history":
		fs := flag.NewFlagSet("history", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		fs.IntVar(&cmd.limit, "n", 20, "number of entries")
		err = fs.Parse(rest)
	default:
		err = fmt.Errorf("unknown command %q", cmd.name)
	}
	return cmd, err
}

func parsePrice(s string) (decimal.Decimal, error) {
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("price %q: %w", s, err)
	}
	if !p.IsPositive() {
		return decimal.Zero, fmt.Errorf("price must be positive, got %s", p)
	}
	return p, nil
}

func parseOrderID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", s)
	}
	return id, nil
}

func (a *app) execute(ctx context.Context, cmd command, out io.Writer) error {
	switch cmd.name {
	case "status":
		return a.status(ctx, out)
	case "window":
		return a.window(ctx, out)
	case "open":
		id, err := a.manager.OpenStopOrder(ctx, cmd.price, cmd.side)
		fmt.Fprintf(out, "order_id=%d\n", id)
		return err
	case "close-stop":
		id, err := a.manager.CloseStopOrder(ctx, cmd.price)
		fmt.Fprintf(out, "order_id=%d\n", id)
		return err
	case "close-market":
		closed, err := a.manager.CloseMarketOrder(ctx)
		fmt.Fprintf(out, "closed=%t\n", closed)
		return err
	case "amend":
		id, err := a.manager.AmendStopOrder(ctx, cmd.orderID, cmd.price)
		fmt.Fprintf(out, "order_id=%d\n", id)
		return err
	case "cancel":
		id, err := a.manager.CancelOrder(ctx, cmd.orderID)
		fmt.Fprintf(out, "order_id=%d\n", id)
		return err
	case "history":
		return a.history(ctx, cmd.limit, out)
	}
	return fmt.Errorf("unknown command %q", cmd.name)
}

func (a *app) status(ctx context.Context, out io.Writer) error {
	pos, err := a.positions.Position(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "symbol=%s\n", a.cfg.Symbol)
	fmt.Fprintf(out, "balance=%s %s\n", a.session.CurrentBalance, a.cfg.FiatCurrency)
	fmt.Fprintf(out, "position_side=%s\n", pos.Side)
	fmt.Fprintf(out, "position_qty=%s\n", pos.Quantity)
	fmt.Fprintf(out, "unrealized_pnl=%s\n", pos.UnrealizedPnL)
	fmt.Fprintf(out, "session_pnl=%s\n", a.session.PnL())
	return nil
}

func (a *app) window(ctx context.Context, out io.Writer) error {
	w, err := a.aggregator.Window(ctx)
	if err != nil {
		return err
	}
	last, _ := w.Last()
	fmt.Fprintf(out, "candles=%d\n", len(w))
	fmt.Fprintf(out, "first_open=%s\n", w[0].OpenTime.Format(time.RFC3339))
	fmt.Fprintf(out, "last_open=%s\n", last.OpenTime.Format(time.RFC3339))
	if last.Close.Valid {
		fmt.Fprintf(out, "last_close=%s\n", last.Close.Decimal)
	}
	return nil
}

func (a *app) history(ctx context.Context, limit int, out io.Writer) error {
	if a.journal == nil {
		return errors.New("history: JOURNAL_PATH is not set")
	}
	events, err := a.journal.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, e := range events {
		id := "-"
		if e.OrderID != order.NoOrderID {
			id = strconv.FormatInt(e.OrderID, 10)
		}
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Format(time.RFC3339), e.Op, e.Outcome, e.Side, e.Price, e.Size, id, e.Detail)
	}
	return nil
}
