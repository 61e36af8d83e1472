package domain

import "github.com/shopspring/decimal"

// Portfolio user's account snapshot for an event.
type Portfolio struct {
	UserID      string          `json:"userId"`
	EventID     string          `json:"eventId"`
	CashBalance decimal.Decimal `json:"cashBalance"`
	Holdings    []Holding       `json:"holdings"`
	UpdatedAt   Timestamp       `json:"updatedAt"`
}

// Holding position in a single project.
type Holding struct {
	ProjectID     string          `json:"projectId"`
	Ticker        string          `json:"ticker,omitempty"`
	Shares        decimal.Decimal `json:"shares"`
	AvgCost       decimal.Decimal `json:"avgCost"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnl"`
}

// TotalValue cash plus market value of all holdings.
func (p *Portfolio) TotalValue() decimal.Decimal {
	if p == nil {
		return decimal.Zero
	}
	total := p.CashBalance
	for _, h := range p.Holdings {
		total = total.Add(h.MarketValue)
	}
	return total
}
