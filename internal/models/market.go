package models

import (
	"fmt"
	"time"
)

// Candle represents a single OHLCV bar of the replayed feed
type Candle struct {
	Time   int64   `json:"time"` // Epoch seconds, strictly increasing within a session
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Timestamp returns the candle time as UTC time
func (c Candle) Timestamp() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// IsBullish reports whether the candle closed above its open
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

type MarkerKind string

const (
	MarkerKindSessionGap MarkerKind = "session_gap"
)

// SessionMarker annotates a discontinuity in the trading calendar
type SessionMarker struct {
	Time       int64      `json:"time"` // Gap end, epoch seconds
	Kind       MarkerKind `json:"kind"`
	From       int64      `json:"from,omitempty"` // Gap start, epoch seconds
	GapSeconds float64    `json:"gapSeconds,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Label      string     `json:"label"`
}

// CandleStats summarizes the candles of the active session
type CandleStats struct {
	Open           float64 `json:"open"`  // First candle open
	Close          float64 `json:"close"` // Latest close
	High           float64 `json:"high"`
	Low            float64 `json:"low"`
	Volume         float64 `json:"volume"`
	PriceChange    float64 `json:"priceChange"`
	ChangePercent  float64 `json:"changePercent"`
	Count          int     `json:"count"`
	BullishCandles int     `json:"bullishCandles"`
	BearishCandles int     `json:"bearishCandles"`
}

// ComputeCandleStats aggregates a candle sequence. Returns nil for an empty sequence.
func ComputeCandleStats(candles []Candle) *CandleStats {
	if len(candles) == 0 {
		return nil
	}

	first := candles[0]
	last := candles[len(candles)-1]

	stats := &CandleStats{
		Open:  first.Open,
		Close: last.Close,
		High:  first.High,
		Low:   first.Low,
		Count: len(candles),
	}

	for _, c := range candles {
		if c.High > stats.High {
			stats.High = c.High
		}
		if c.Low < stats.Low {
			stats.Low = c.Low
		}
		stats.Volume += c.Volume
		if c.IsBullish() {
			stats.BullishCandles++
		} else if c.IsBearish() {
			stats.BearishCandles++
		}
	}

	stats.PriceChange = last.Close - first.Open
	if first.Open != 0 {
		stats.ChangePercent = stats.PriceChange / first.Open * 100
	}

	return stats
}

// ValidateCandle checks the OHLC relationship and volume of a bar
func ValidateCandle(c Candle) error {
	if c.Time <= 0 {
		return fmt.Errorf("invalid candle time: %d", c.Time)
	}
	if c.Volume < 0 {
		return fmt.Errorf("negative volume: %f", c.Volume)
	}
	if c.High < c.Low {
		return fmt.Errorf("high %.8f below low %.8f", c.High, c.Low)
	}
	return nil
}
