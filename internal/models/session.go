package models

import (
	"fmt"
	"strings"
)

type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
)

// Dashboard defaults for a fresh session
const (
	DefaultRangeStart     = "2015-01-09T09:15"
	DefaultRangeEnd       = "2015-01-14T15:30"
	DefaultSpeedMs        = 6000
	DefaultGapSpeedFactor = 100000
)

// ReplaySessionParams identifies one replay session. Two params values that
// compare equal describe the same session.
type ReplaySessionParams struct {
	Symbol         string `json:"symbol"`
	RangeStart     string `json:"start"`
	RangeEnd       string `json:"end"`
	SpeedMs        int    `json:"timeScale"`
	GapSpeedFactor int    `json:"gapScale"`
}

// DefaultSessionParams returns the dashboard defaults for the given symbol
func DefaultSessionParams(symbol string) ReplaySessionParams {
	return ReplaySessionParams{
		Symbol:         symbol,
		RangeStart:     DefaultRangeStart,
		RangeEnd:       DefaultRangeEnd,
		SpeedMs:        DefaultSpeedMs,
		GapSpeedFactor: DefaultGapSpeedFactor,
	}
}

// Validate checks the params describe an openable session
func (p ReplaySessionParams) Validate() error {
	if strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if p.RangeStart == "" || p.RangeEnd == "" {
		return fmt.Errorf("start and end are required")
	}
	if p.SpeedMs <= 0 {
		return fmt.Errorf("time scale must be positive: %d", p.SpeedMs)
	}
	if p.GapSpeedFactor <= 0 {
		return fmt.Errorf("gap scale must be positive: %d", p.GapSpeedFactor)
	}
	return nil
}

func (p ReplaySessionParams) String() string {
	return fmt.Sprintf("%s [%s → %s] scale=%d gap=%d", p.Symbol, p.RangeStart, p.RangeEnd, p.SpeedMs, p.GapSpeedFactor)
}
