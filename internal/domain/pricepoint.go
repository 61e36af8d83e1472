package domain

import "github.com/shopspring/decimal"

const (
	// SourceSnapshot marks points observed by the snapshot poller.
	SourceSnapshot = "snapshot"
	// SourcePush default tag of points delivered by the push feed.
	SourcePush = "push"
)

// PricePoint one observation of a project's price.
type PricePoint struct {
	// TS observation time in ms since epoch.
	TS int64 `json:"ts"`
	// Price observed price.
	Price decimal.Decimal `json:"price"`
	// Source origin tag.
	Source string `json:"source"`
}

// IsLive reports whether the point came from the push channel rather than a snapshot.
func (p PricePoint) IsLive() bool {
	return p.Source != SourceSnapshot
}

// PriceRow one row of the price history query.
type PriceRow struct {
	TS     Timestamp       `json:"ts"`
	Price  decimal.Decimal `json:"price"`
	Source string          `json:"source"`
}

// ToPoint converts the row into a normalized price point.
func (r PriceRow) ToPoint() PricePoint {
	return PricePoint{TS: r.TS.Millis(), Price: r.Price, Source: r.Source}
}

// ProjectPoint a price point attributed to a project.
type ProjectPoint struct {
	ProjectID string     `json:"projectId"`
	Point     PricePoint `json:"point"`
}
