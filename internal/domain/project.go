// Package domain defines core data structures used throughout the BTX client.
package domain

import (
	"github.com/shopspring/decimal"
)

// Project tradable virtual entity of an event.
type Project struct {
	// ProjectID unique, stable identifier.
	ProjectID string `json:"projectId"`
	// Ticker short display symbol.
	Ticker string `json:"ticker,omitempty"`
	// Name display name.
	Name string `json:"name,omitempty"`
	// BasePrice listing price.
	BasePrice decimal.Decimal `json:"basePrice"`
	// CurrentPrice last accepted price.
	CurrentPrice decimal.Decimal `json:"currentPrice"`
	// MarketCap used for ordering, zero when unknown.
	MarketCap decimal.Decimal `json:"marketCap"`
	// NetShares outstanding shares held by traders.
	NetShares decimal.Decimal `json:"netShares"`
	// TotalVolume traded volume.
	TotalVolume decimal.Decimal `json:"totalVolume"`
	// TotalTrades number of executed trades.
	TotalTrades int64 `json:"totalTrades"`
	// UpdatedAt time of CurrentPrice in ms since epoch.
	UpdatedAt int64 `json:"updatedAt"`
	// PriceChange CurrentPrice minus the previously observed price.
	PriceChange decimal.Decimal `json:"priceChange"`
	// PriceChangePct PriceChange relative to the previously observed price, in percent.
	PriceChangePct decimal.Decimal `json:"priceChangePct"`
}

// ProjectSnapshot one row of the snapshot query.
type ProjectSnapshot struct {
	ProjectID    string              `json:"projectId"`
	Ticker       string              `json:"ticker,omitempty"`
	Name         string              `json:"name,omitempty"`
	BasePrice    decimal.Decimal     `json:"basePrice"`
	CurrentPrice decimal.NullDecimal `json:"currentPrice"`
	MarketCap    decimal.NullDecimal `json:"marketCap"`
	NetShares    decimal.NullDecimal `json:"netShares"`
	TotalVolume  decimal.NullDecimal `json:"totalVolume"`
	TotalTrades  *int64              `json:"totalTrades,omitempty"`
	UpdatedAt    Timestamp           `json:"updatedAt"`
}

// Price returns the current price, falling back to the base price.
func (s ProjectSnapshot) Price() decimal.Decimal {
	if s.CurrentPrice.Valid {
		return s.CurrentPrice.Decimal
	}
	return s.BasePrice
}

// ToProject converts the snapshot row into a project without derived fields.
func (s ProjectSnapshot) ToProject() Project {
	return Project{
		ProjectID:    s.ProjectID,
		Ticker:       s.Ticker,
		Name:         s.Name,
		BasePrice:    s.BasePrice,
		CurrentPrice: s.Price(),
		MarketCap:    valueOrZero(s.MarketCap),
		NetShares:    valueOrZero(s.NetShares),
		TotalVolume:  valueOrZero(s.TotalVolume),
		TotalTrades:  int64OrZero(s.TotalTrades),
		UpdatedAt:    s.UpdatedAt.Millis(),
	}
}

// PriceDelta computes the change between the previously observed price and the new one.
// The percentage is zero when the previous price is not positive.
func PriceDelta(prev, next decimal.Decimal) (change, pct decimal.Decimal) {
	change = next.Sub(prev)
	if prev.LessThanOrEqual(decimal.Zero) {
		return change, decimal.Zero
	}
	return change, change.Div(prev).Mul(decimal.NewFromInt(100))
}

func valueOrZero(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}

func int64OrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
