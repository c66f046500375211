package common

import (
	"fmt"
	"strings"
)

// Side denotes order or position side.
type Side string

const (
	SideNone Side = "NONE"
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes an exchange side string. An empty string maps to SideNone.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	case "", "NONE":
		return SideNone, nil
	default:
		return SideNone, fmt.Errorf("unknown side %q", s)
	}
}

// Opposite returns the side that closes a position held on s.
// A flat side has no opposite and stays SideNone.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideNone
	}
}

// Tradable reports whether s can be sent with an order.
func (s Side) Tradable() bool {
	return s == SideBuy || s == SideSell
}

// ExecutionType denotes how an order is executed.
type ExecutionType string

const (
	ExecutionMarket ExecutionType = "MARKET"
	ExecutionLimit  ExecutionType = "LIMIT"
	ExecutionStop   ExecutionType = "STOP"
)
