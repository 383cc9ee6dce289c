package services

import (
	"chronotick/internal/models"

	"github.com/shopspring/decimal"
)

// PositionSource lists the positions held by the order engine
type PositionSource interface {
	Positions() []models.Position
}

// PortfolioService summarizes positions and P&L
type PortfolioService struct {
	positions PositionSource
}

// NewPortfolioService creates a new portfolio service
func NewPortfolioService(positions PositionSource) *PortfolioService {
	return &PortfolioService{positions: positions}
}

// PortfolioSummary represents complete portfolio information
type PortfolioSummary struct {
	Positions       []PositionSummary `json:"positions"`
	OpenPositions   int               `json:"openPositions"`
	ClosedPositions int               `json:"closedPositions"`
	MarketValue     decimal.Decimal   `json:"marketValue"` // Open positions only
	UnrealizedPnL   decimal.Decimal   `json:"unrealizedPnL"`
	RealizedPnL     decimal.Decimal   `json:"realizedPnL"`
	TotalPnL        decimal.Decimal   `json:"totalPnL"`
}

// PositionSummary represents position with P&L calculations
type PositionSummary struct {
	Position      models.Position `json:"position"`
	MarketValue   decimal.Decimal `json:"marketValue"`
	UnrealizedPnL decimal.Decimal `json:"unrealizedPnL"`
	RealizedPnL   decimal.Decimal `json:"realizedPnL"`
	TotalReturn   decimal.Decimal `json:"totalReturn"` // Percentage return on entry cost
}

// GetPortfolio builds the portfolio summary, optionally for one symbol
func (ps *PortfolioService) GetPortfolio(symbol string) *PortfolioSummary {
	summary := &PortfolioSummary{
		Positions:     []PositionSummary{},
		MarketValue:   decimal.Zero,
		UnrealizedPnL: decimal.Zero,
		RealizedPnL:   decimal.Zero,
		TotalPnL:      decimal.Zero,
	}

	for _, position := range ps.positions.Positions() {
		if symbol != "" && position.Symbol != symbol {
			continue
		}

		entry := summarizePosition(position)
		summary.Positions = append(summary.Positions, entry)
		summary.UnrealizedPnL = summary.UnrealizedPnL.Add(entry.UnrealizedPnL)
		summary.RealizedPnL = summary.RealizedPnL.Add(entry.RealizedPnL)

		if position.IsOpen() {
			summary.OpenPositions++
			summary.MarketValue = summary.MarketValue.Add(entry.MarketValue)
		} else {
			summary.ClosedPositions++
		}
	}

	summary.TotalPnL = summary.UnrealizedPnL.Add(summary.RealizedPnL)
	return summary
}

func summarizePosition(position models.Position) PositionSummary {
	quantity := decimal.NewFromInt(position.Quantity)
	cost := decimal.NewFromFloat(position.EntryPrice).Mul(quantity)

	summary := PositionSummary{
		Position:      position,
		MarketValue:   decimal.Zero,
		UnrealizedPnL: position.UnrealizedPnL(),
		RealizedPnL:   position.RealizedPnL(),
		TotalReturn:   decimal.Zero,
	}
	if position.IsOpen() {
		summary.MarketValue = decimal.NewFromFloat(position.CurrentPrice).Mul(quantity)
	}

	if !cost.IsZero() {
		pnl := summary.UnrealizedPnL.Add(summary.RealizedPnL)
		summary.TotalReturn = pnl.Div(cost).Mul(decimal.NewFromInt(100)).Round(4)
	}
	return summary
}
