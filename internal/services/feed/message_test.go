package feed

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantOK    bool
		wantPrice string
	}{
		{name: "current price", payload: `{"type":"priceUpdate","projectId":"P1","currentPrice":105,"updatedAt":1000001}`, wantOK: true, wantPrice: "105"},
		{name: "base price fallback", payload: `{"type":"priceUpdate","projectId":"P1","basePrice":10}`, wantOK: true, wantPrice: "10"},
		{name: "null current price falls back", payload: `{"type":"priceUpdate","projectId":"P1","currentPrice":null,"basePrice":"7.5"}`, wantOK: true, wantPrice: "7.5"},
		{name: "malformed current price is not replaced", payload: `{"type":"priceUpdate","projectId":"P1","currentPrice":"abc","basePrice":10}`, wantOK: false},
		{name: "non-numeric current price type", payload: `{"type":"priceUpdate","projectId":"P1","currentPrice":true,"basePrice":10}`, wantOK: false},
		{name: "numeric string", payload: `{"type":"priceUpdate","projectId":"P1","currentPrice":"12.25"}`, wantOK: true, wantPrice: "12.25"},
		{name: "other type", payload: `{"type":"tradeExecuted","projectId":"P1","currentPrice":1}`},
		{name: "missing project", payload: `{"type":"priceUpdate","currentPrice":1}`},
		{name: "missing price", payload: `{"type":"priceUpdate","projectId":"P1"}`},
		{name: "non numeric price", payload: `{"type":"priceUpdate","projectId":"P1","currentPrice":"abc"}`},
		{name: "boolean price", payload: `{"type":"priceUpdate","projectId":"P1","currentPrice":true}`},
		{name: "not json", payload: `hello`},
		{name: "array", payload: `[1,2]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			update, ok := ParseMessage([]byte(tt.payload))
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, "P1", update.ProjectID)
			assert.True(t, update.Price.Equal(decimal.RequireFromString(tt.wantPrice)), "price %s", update.Price)
		})
	}
}

func TestParseMessage_OptionalCounters(t *testing.T) {
	update, ok := ParseMessage([]byte(`{"type":"priceUpdate","projectId":"P1","currentPrice":2,"updatedAt":1700000000000,"netShares":4,"totalTrades":9,"source":"trade"}`))
	require.True(t, ok)

	assert.Equal(t, int64(1700000000000), update.UpdatedAt.Millis())
	assert.True(t, update.NetShares.Valid)
	assert.False(t, update.TotalVolume.Valid)
	assert.False(t, update.MarketCap.Valid)
	require.NotNil(t, update.TotalTrades)
	assert.Equal(t, int64(9), *update.TotalTrades)
	assert.Equal(t, "trade", update.Source)
}

func TestNewSubscribeMessage(t *testing.T) {
	assert.Equal(t, subscribeMessage{Action: "subscribe", EventID: "e1", UserID: "anonymous"}, newSubscribeMessage("e1", ""))
	assert.Equal(t, "u1", newSubscribeMessage("e1", "u1").UserID)
}

func TestResolveURL(t *testing.T) {
	t.Setenv(URLEnv, "")
	assert.Equal(t, DefaultURL, ResolveURL(""))
	assert.Equal(t, "ws://configured", ResolveURL("ws://configured"))

	t.Setenv(URLEnv, "ws://env")
	assert.Equal(t, "ws://env", ResolveURL("ws://configured"))
}
