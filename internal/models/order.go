package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderSide string
type OrderType string
type OrderStatus string
type PositionStatus string
type CloseReason string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"

	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"

	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"

	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"

	CloseReasonManual   CloseReason = "manual"
	CloseReasonStopLoss CloseReason = "stop_loss"
)

// Order represents a simulated order placed against the replayed feed
type Order struct {
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Side        OrderSide   `json:"side"`
	Type        OrderType   `json:"type"`
	Quantity    int64       `json:"quantity"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	FilledAt    *time.Time  `json:"filledAt,omitempty"`
	FilledPrice *float64    `json:"filledPrice,omitempty"`
	PositionID  string      `json:"positionId,omitempty"` // Set once the order fills

	// Type-specific parameters
	OrderParams OrderParameters `json:"orderParams"`
}

// OrderParameters contains the optional price levels of an order
type OrderParameters struct {
	LimitPrice    *float64 `json:"limitPrice,omitempty"`    // Required for limit orders
	StopLossPrice *float64 `json:"stopLossPrice,omitempty"` // Carried over to the position
}

// GetLimitPrice returns the limit price for limit orders
func (o *Order) GetLimitPrice() *float64 {
	return o.OrderParams.LimitPrice
}

// GetStopLossPrice returns the stop-loss level, if any
func (o *Order) GetStopLossPrice() *float64 {
	return o.OrderParams.StopLossPrice
}

// IsLimitOrder checks if this is a limit order
func (o *Order) IsLimitOrder() bool {
	return o.Type == OrderTypeLimit && o.OrderParams.LimitPrice != nil
}

// Position represents holdings opened by a filled order
type Position struct {
	ID            string         `json:"id"`
	OrderID       string         `json:"orderId"`
	Symbol        string         `json:"symbol"`
	Side          OrderSide      `json:"side"`
	Quantity      int64          `json:"quantity"`
	EntryPrice    float64        `json:"entryPrice"`
	CurrentPrice  float64        `json:"currentPrice"`
	StopLossPrice *float64       `json:"stopLossPrice,omitempty"`
	Status        PositionStatus `json:"status"`
	OpenedAt      time.Time      `json:"openedAt"`
	ExitPrice     *float64       `json:"exitPrice,omitempty"`
	ExitTimestamp *time.Time     `json:"exitTimestamp,omitempty"`
	CloseReason   CloseReason    `json:"closeReason,omitempty"`
}

// IsOpen reports whether the position is still open
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusOpen
}

// StopLossHit reports whether price reached the stop-loss level
func (p *Position) StopLossHit(price float64) bool {
	if p.StopLossPrice == nil {
		return false
	}
	if p.Side == OrderSideBuy {
		return price <= *p.StopLossPrice
	}
	return price >= *p.StopLossPrice
}

// UnrealizedPnL returns the P&L at the current price. Zero for closed positions.
func (p *Position) UnrealizedPnL() decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}
	return pnl(p.Side, p.EntryPrice, p.CurrentPrice, p.Quantity)
}

// RealizedPnL returns the P&L locked in at exit. Zero for open positions.
func (p *Position) RealizedPnL() decimal.Decimal {
	if p.IsOpen() || p.ExitPrice == nil {
		return decimal.Zero
	}
	return pnl(p.Side, p.EntryPrice, *p.ExitPrice, p.Quantity)
}

func pnl(side OrderSide, entry, mark float64, quantity int64) decimal.Decimal {
	diff := decimal.NewFromFloat(mark).Sub(decimal.NewFromFloat(entry))
	if side == OrderSideSell {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(quantity))
}
