package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TradeSide buy or sell.
type TradeSide string

const (
	// TradeSideBuy buys shares of a project.
	TradeSideBuy TradeSide = "buy"
	// TradeSideSell sells shares of a project.
	TradeSideSell TradeSide = "sell"
)

// String returns the string representation.
func (s TradeSide) String() string {
	return string(s)
}

// IsValid checks if the TradeSide value is valid.
func (s TradeSide) IsValid() bool {
	return s == TradeSideBuy || s == TradeSideSell
}

// TradeRequest body of buy and sell commands.
type TradeRequest struct {
	ProjectID string          `json:"projectId"`
	Shares    decimal.Decimal `json:"shares"`
}

// String returns a human-readable string representation.
func (r TradeRequest) String() string {
	return fmt.Sprintf("%s shares: %s", r.ProjectID, r.Shares.String())
}

// Trade executed buy/sell record as returned by the backend.
type Trade struct {
	TradeID   string          `json:"tradeId"`
	ProjectID string          `json:"projectId"`
	UserID    string          `json:"userId,omitempty"`
	Side      TradeSide       `json:"side"`
	Shares    decimal.Decimal `json:"shares"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt Timestamp       `json:"createdAt"`
}
