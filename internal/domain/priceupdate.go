package domain

import "github.com/shopspring/decimal"

// PriceUpdate incremental price change delivered by the push feed.
// Optional counters are applied only when Valid.
type PriceUpdate struct {
	ProjectID   string
	Price       decimal.Decimal
	UpdatedAt   Timestamp
	NetShares   decimal.NullDecimal
	TotalVolume decimal.NullDecimal
	MarketCap   decimal.NullDecimal
	TotalTrades *int64
	Source      string
}
