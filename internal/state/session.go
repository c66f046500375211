// Package state holds the mutable session of one trading process. A Session
// is owned by the goroutine driving the order manager and is not safe for
// concurrent use.
package state

import (
	"context"

	"github.com/shopspring/decimal"
)

// BalanceReader returns the current fiat balance.
type BalanceReader interface {
	Balance(ctx context.Context) (decimal.Decimal, error)
}

// Session tracks balances and lifecycle flags for the process lifetime.
type Session struct {
	InitialBalance       decimal.Decimal
	CurrentBalance       decimal.Decimal
	NormalTermination    bool
	ProtectiveStopActive bool

	balances BalanceReader
}

// NewSession reads the opening balance once and seeds both balance fields with it.
func NewSession(ctx context.Context, balances BalanceReader) (*Session, error) {
	b, err := balances.Balance(ctx)
	if err != nil {
		return nil, err
	}
	return &Session{
		InitialBalance: b,
		CurrentBalance: b,
		balances:       balances,
	}, nil
}

// RefreshBalance re-reads the balance into CurrentBalance.
func (s *Session) RefreshBalance(ctx context.Context) (decimal.Decimal, error) {
	b, err := s.balances.Balance(ctx)
	if err != nil {
		return s.CurrentBalance, err
	}
	s.CurrentBalance = b
	return b, nil
}

// MarkNormalTermination records that the process is stopping on purpose.
func (s *Session) MarkNormalTermination() {
	s.NormalTermination = true
}

// PnL is the balance change since the session started.
func (s *Session) PnL() decimal.Decimal {
	return s.CurrentBalance.Sub(s.InitialBalance)
}
