package indicators

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ubc-biztech/btx/internal/domain"
)

// OverlayConfig periods of the chart overlay lines.
type OverlayConfig struct {
	FastEMA   int `yaml:"fast_ema"`
	SlowEMA   int `yaml:"slow_ema"`
	RSIPeriod int `yaml:"rsi_period"`
}

// DefaultOverlayConfig EMA20, EMA50 and RSI14.
var DefaultOverlayConfig = OverlayConfig{FastEMA: 20, SlowEMA: 50, RSIPeriod: 14}

// OverlayPoint one price point with the indicator values computed up to it.
// A value is invalid until its indicator has warmed up.
type OverlayPoint struct {
	TS      int64               `json:"ts"`
	Price   decimal.Decimal     `json:"price"`
	EMAFast decimal.NullDecimal `json:"emaFast"`
	EMASlow decimal.NullDecimal `json:"emaSlow"`
	MACD    decimal.NullDecimal `json:"macd"`
	RSI     decimal.NullDecimal `json:"rsi"`
}

// ChartOverlay computes indicator lines over a price history. Indicators that
// lack enough points are left invalid rather than failing the whole overlay,
// as are non-finite values.
func ChartOverlay(points []domain.PricePoint, cfg OverlayConfig) []OverlayPoint {
	out := make([]OverlayPoint, len(points))
	closes := make([]float64, len(points))
	for i, p := range points {
		out[i] = OverlayPoint{TS: p.TS, Price: p.Price}
		closes[i], _ = p.Price.Float64()
	}

	if v, err := emaFloat(closes, cfg.FastEMA); err == nil {
		alignTail(out, v, func(op *OverlayPoint, d decimal.NullDecimal) { op.EMAFast = d })
	}
	if v, err := emaFloat(closes, cfg.SlowEMA); err == nil {
		alignTail(out, v, func(op *OverlayPoint, d decimal.NullDecimal) { op.EMASlow = d })
	}
	if v, err := macdFloat(closes); err == nil {
		alignTail(out, v, func(op *OverlayPoint, d decimal.NullDecimal) { op.MACD = d })
	}
	if v, err := rsiFloat(closes, cfg.RSIPeriod); err == nil {
		alignTail(out, v, func(op *OverlayPoint, d decimal.NullDecimal) { op.RSI = d })
	}

	return out
}

// alignTail assigns values to the last len(values) points: indicators skip
// their warm-up period, so output i belongs to input len(points)-len(values)+i.
func alignTail(points []OverlayPoint, values []float64, set func(*OverlayPoint, decimal.NullDecimal)) {
	offset := len(points) - len(values)
	if offset < 0 {
		values = values[-offset:]
		offset = 0
	}
	for i, v := range values {
		if finite(v) {
			set(&points[offset+i], decimal.NewNullDecimal(decimal.NewFromFloat(v)))
		}
	}
}

// Candle OHLC aggregate of the price points in one time bucket.
type Candle struct {
	Start int64           `json:"start"`
	Open  decimal.Decimal `json:"open"`
	High  decimal.Decimal `json:"high"`
	Low   decimal.Decimal `json:"low"`
	Close decimal.Decimal `json:"close"`
}

// Candles buckets ascending price points into candles of the given width.
// Empty buckets are skipped.
func Candles(points []domain.PricePoint, width time.Duration) []Candle {
	step := width.Milliseconds()
	if step <= 0 || len(points) == 0 {
		return nil
	}

	var out []Candle
	for _, p := range points {
		start := p.TS - p.TS%step
		if n := len(out); n > 0 && out[n-1].Start == start {
			c := &out[n-1]
			c.High = decimal.Max(c.High, p.Price)
			c.Low = decimal.Min(c.Low, p.Price)
			c.Close = p.Price
			continue
		}
		out = append(out, Candle{Start: start, Open: p.Price, High: p.Price, Low: p.Price, Close: p.Price})
	}
	return out
}

// CandlePoint a candle with the ATR computed up to it.
type CandlePoint struct {
	Candle
	ATR decimal.NullDecimal `json:"atr"`
}

// CandleOverlay buckets the points into candles and attaches ATR values once
// atrPeriod+1 candles are available.
func CandleOverlay(points []domain.PricePoint, width time.Duration, atrPeriod int) []CandlePoint {
	candles := Candles(points, width)
	out := make([]CandlePoint, len(candles))
	for i, c := range candles {
		out[i] = CandlePoint{Candle: c}
	}

	atr, err := CalculateATR(candles, atrPeriod)
	if err != nil {
		return out
	}
	offset := len(out) - len(atr)
	if offset < 0 {
		atr = atr[-offset:]
		offset = 0
	}
	for i, v := range atr {
		out[offset+i].ATR = decimal.NewNullDecimal(v)
	}
	return out
}
