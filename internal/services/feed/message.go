package feed

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/ubc-biztech/btx/internal/domain"
)

const (
	messageTypePriceUpdate = "priceUpdate"
	actionSubscribe        = "subscribe"
	anonymousUser          = "anonymous"
)

// subscribeMessage handshake sent right after the connection opens.
type subscribeMessage struct {
	Action  string `json:"action"`
	EventID string `json:"eventId"`
	UserID  string `json:"userId"`
}

func newSubscribeMessage(eventID, userID string) subscribeMessage {
	if userID == "" {
		userID = anonymousUser
	}
	return subscribeMessage{Action: actionSubscribe, EventID: eventID, UserID: userID}
}

type envelope struct {
	Type         string              `json:"type"`
	ProjectID    string              `json:"projectId"`
	CurrentPrice json.RawMessage     `json:"currentPrice"`
	BasePrice    json.RawMessage     `json:"basePrice"`
	UpdatedAt    domain.Timestamp    `json:"updatedAt"`
	NetShares    decimal.NullDecimal `json:"netShares"`
	TotalVolume  decimal.NullDecimal `json:"totalVolume"`
	MarketCap    decimal.NullDecimal `json:"marketCap"`
	TotalTrades  *int64              `json:"totalTrades"`
	Source       string              `json:"source"`
}

// ParseMessage decodes a push frame. ok is false for other message types and
// malformed price updates.
func ParseMessage(data []byte) (update domain.PriceUpdate, ok bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.PriceUpdate{}, false
	}
	if env.Type != messageTypePriceUpdate || env.ProjectID == "" {
		return domain.PriceUpdate{}, false
	}

	// basePrice only stands in for an absent currentPrice, never a malformed one
	raw := env.CurrentPrice
	if absent(raw) {
		raw = env.BasePrice
	}
	price, ok := numeric(raw)
	if !ok {
		return domain.PriceUpdate{}, false
	}

	return domain.PriceUpdate{
		ProjectID:   env.ProjectID,
		Price:       price,
		UpdatedAt:   env.UpdatedAt,
		NetShares:   env.NetShares,
		TotalVolume: env.TotalVolume,
		MarketCap:   env.MarketCap,
		TotalTrades: env.TotalTrades,
		Source:      env.Source,
	}, true
}

func absent(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// numeric accepts a JSON number or a numeric string.
func numeric(raw json.RawMessage) (decimal.Decimal, bool) {
	if absent(raw) {
		return decimal.Decimal{}, false
	}
	raw = bytes.TrimSpace(raw)

	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return decimal.Decimal{}, false
		}
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}
