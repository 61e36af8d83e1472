package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceDelta(t *testing.T) {
	tests := []struct {
		name           string
		prev           decimal.Decimal
		next           decimal.Decimal
		expectedChange decimal.Decimal
		expectedPct    decimal.Decimal
	}{
		{
			name:           "increase",
			prev:           decimal.NewFromInt(100),
			next:           decimal.NewFromInt(105),
			expectedChange: decimal.NewFromInt(5),
			expectedPct:    decimal.NewFromInt(5),
		},
		{
			name:           "decrease",
			prev:           decimal.NewFromInt(200),
			next:           decimal.NewFromInt(150),
			expectedChange: decimal.NewFromInt(-50),
			expectedPct:    decimal.NewFromInt(-25),
		},
		{
			name:           "no change",
			prev:           decimal.NewFromInt(10),
			next:           decimal.NewFromInt(10),
			expectedChange: decimal.Zero,
			expectedPct:    decimal.Zero,
		},
		{
			name:           "previous zero",
			prev:           decimal.Zero,
			next:           decimal.NewFromInt(10),
			expectedChange: decimal.NewFromInt(10),
			expectedPct:    decimal.Zero,
		},
		{
			name:           "previous negative",
			prev:           decimal.NewFromInt(-1),
			next:           decimal.NewFromInt(3),
			expectedChange: decimal.NewFromInt(4),
			expectedPct:    decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			change, pct := PriceDelta(tt.prev, tt.next)
			assert.True(t, tt.expectedChange.Equal(change), "change: expected %s, got %s", tt.expectedChange, change)
			assert.True(t, tt.expectedPct.Equal(pct), "pct: expected %s, got %s", tt.expectedPct, pct)
		})
	}
}

func TestProjectSnapshot_Decode(t *testing.T) {
	payload := `[
		{"projectId":"P1","ticker":"ONE","name":"First","basePrice":10,"currentPrice":12.5,"marketCap":"1250","totalTrades":3,"updatedAt":1000},
		{"projectId":"P2","basePrice":"7"}
	]`

	var rows []ProjectSnapshot
	require.NoError(t, json.Unmarshal([]byte(payload), &rows))
	require.Len(t, rows, 2)

	first := rows[0].ToProject()
	assert.Equal(t, "P1", first.ProjectID)
	assert.Equal(t, "ONE", first.Ticker)
	assert.True(t, first.CurrentPrice.Equal(decimal.NewFromFloat(12.5)))
	assert.True(t, first.MarketCap.Equal(decimal.NewFromInt(1250)))
	assert.Equal(t, int64(3), first.TotalTrades)
	assert.Equal(t, int64(1000000), first.UpdatedAt)

	second := rows[1]
	assert.False(t, second.CurrentPrice.Valid)
	assert.False(t, second.UpdatedAt.Valid())
	assert.True(t, second.Price().Equal(decimal.NewFromInt(7)), "price falls back to base price")
	assert.True(t, second.ToProject().MarketCap.IsZero())
	assert.Nil(t, second.TotalTrades)
}

func TestPortfolio_TotalValue(t *testing.T) {
	var nilPortfolio *Portfolio
	assert.True(t, nilPortfolio.TotalValue().IsZero())

	p := &Portfolio{
		CashBalance: decimal.NewFromInt(500),
		Holdings: []Holding{
			{ProjectID: "P1", MarketValue: decimal.NewFromInt(120)},
			{ProjectID: "P2", MarketValue: decimal.NewFromFloat(30.5)},
		},
	}
	assert.True(t, p.TotalValue().Equal(decimal.NewFromFloat(650.5)))
}
