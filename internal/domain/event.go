package domain

// MarketEventKind type of a market event.
type MarketEventKind string

const (
	MarketEventSnapshot   MarketEventKind = "snapshot"
	MarketEventPrice      MarketEventKind = "price"
	MarketEventHistory    MarketEventKind = "history"
	MarketEventTrade      MarketEventKind = "trade"
	MarketEventConnection MarketEventKind = "connection"
)

// MarketEvent notification emitted after local market state changed.
type MarketEvent struct {
	Kind       MarketEventKind `json:"kind"`
	EventID    string          `json:"eventId"`
	ProjectID  string          `json:"projectId,omitempty"`
	Projects   []Project       `json:"projects,omitempty"`
	Point      *PricePoint     `json:"point,omitempty"`
	Trade      *TradeRequest   `json:"trade,omitempty"`
	Side       TradeSide       `json:"side,omitempty"`
	Connection ConnectionState `json:"connection,omitempty"`
}
