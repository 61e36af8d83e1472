// Package indicators computes chart overlays (EMA, MACD, RSI) and candle ATR over price history.
package indicators

import (
	"fmt"
	"math"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/shopspring/decimal"
)

const macdSlowPeriod = 26

// CalculateATR calculates the Average True Range of candles for the given period.
func CalculateATR(candles []Candle, period int) ([]decimal.Decimal, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid ATR period %d", period)
	}
	if len(candles) < period+1 {
		return nil, fmt.Errorf("not enough data points for ATR: need %d, got %d", period+1, len(candles))
	}

	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], _ = c.High.Float64()
		lows[i], _ = c.Low.Float64()
		closes[i], _ = c.Close.Float64()
	}

	atr := volatility.NewAtrWithPeriod[float64](period)
	outputChan := atr.Compute(helper.SliceToChan(highs), helper.SliceToChan(lows), helper.SliceToChan(closes))

	return float64ToDecimals(helper.ChanToSlice(outputChan)), nil
}

func emaFloat(closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid EMA period %d", period)
	}
	if len(closes) < period {
		return nil, fmt.Errorf("not enough data points: need %d, got %d", period, len(closes))
	}

	ema := trend.NewEmaWithPeriod[float64](period)
	return helper.ChanToSlice(ema.Compute(helper.SliceToChan(closes))), nil
}

func macdFloat(closes []float64) ([]float64, error) {
	if len(closes) < macdSlowPeriod {
		return nil, fmt.Errorf("not enough data points for MACD: need at least %d, got %d", macdSlowPeriod, len(closes))
	}

	macd := trend.NewMacd[float64]()
	macdChan, signalChan := macd.Compute(helper.SliceToChan(closes))
	// drain signal channel to prevent blocking
	go func() {
		for range signalChan {
		}
	}()

	return helper.ChanToSlice(macdChan), nil
}

func rsiFloat(closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid RSI period %d", period)
	}
	if len(closes) < period+1 {
		return nil, fmt.Errorf("not enough data points for RSI: need %d, got %d", period+1, len(closes))
	}

	rsi := momentum.NewRsiWithPeriod[float64](period)
	return helper.ChanToSlice(rsi.Compute(helper.SliceToChan(closes))), nil
}

// float64ToDecimals converts a slice of float64 to []decimal.Decimal.
// Non-finite values (RSI of a flat series) become zero.
func float64ToDecimals(floats []float64) []decimal.Decimal {
	result := make([]decimal.Decimal, len(floats))
	for i, f := range floats {
		if finite(f) {
			result[i] = decimal.NewFromFloat(f)
		}
	}
	return result
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
