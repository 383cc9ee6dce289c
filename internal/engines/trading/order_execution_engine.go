package trading

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"chronotick/internal/interfaces"
	"chronotick/internal/models"
	"chronotick/internal/store"
	"chronotick/internal/types"

	"github.com/google/uuid"
)

// ErrValidation is wrapped by every order rejection
var ErrValidation = errors.New("order validation failed")

// ValidationError describes why an order was rejected
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrValidation, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func rejectf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// OrderRequest carries the user's order entry
type OrderRequest struct {
	Symbol        string           `json:"symbol"`
	Side          models.OrderSide `json:"side"`
	Type          models.OrderType `json:"type"`
	Quantity      int64            `json:"quantity"`
	LimitPrice    *float64         `json:"limitPrice,omitempty"`
	StopLossPrice *float64         `json:"stopLossPrice,omitempty"`
}

// PriceUpdateResult reports what one price observation changed
type PriceUpdateResult struct {
	StoppedOut []models.Position `json:"stoppedOut"`
	Filled     []models.Order    `json:"filled"`
	Opened     []models.Position `json:"opened"`
	Marked     int               `json:"marked"`
}

// OrderExecutionEngine simulates order placement, fills and stop-loss
// triggering against the replayed price.
type OrderExecutionEngine struct {
	mu            sync.RWMutex
	orderBook     *OrderBook
	orders        []*models.Order
	orderIndex    map[string]*models.Order
	positions     []*models.Position
	positionIndex map[string]*models.Position
	prices        map[string]float64
	broadcaster   interfaces.Broadcaster
	now           func() time.Time
}

// OrderExecutionEngineInterface defines the contract for order execution
type OrderExecutionEngineInterface interface {
	PlaceOrder(req OrderRequest) (*models.Order, *models.Position, error)
	ProcessPriceUpdate(symbol string, currentPrice float64) (*PriceUpdateResult, error)
	ClosePosition(positionID string) (*models.Position, bool)
	CancelOrder(orderID string) (*models.Order, bool)
	CurrentPrice(symbol string) float64
	Orders() []models.Order
	PendingOrders() []models.Order
	Positions() []models.Position
	OnPriceTick(tick store.PriceTick)
}

// EngineOption customizes an OrderExecutionEngine
type EngineOption func(*OrderExecutionEngine)

// WithBroadcaster publishes order and position events
func WithBroadcaster(b interfaces.Broadcaster) EngineOption {
	return func(oe *OrderExecutionEngine) {
		oe.broadcaster = b
	}
}

// WithClock overrides the wall clock used for timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(oe *OrderExecutionEngine) {
		oe.now = now
	}
}

// NewOrderExecutionEngine creates a new order execution engine
func NewOrderExecutionEngine(opts ...EngineOption) *OrderExecutionEngine {
	oe := &OrderExecutionEngine{
		orderBook:     NewOrderBook(),
		orderIndex:    make(map[string]*models.Order),
		positionIndex: make(map[string]*models.Position),
		prices:        make(map[string]float64),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(oe)
	}
	return oe
}

type engineEvent struct {
	msgType types.MessageType
	data    interface{}
}

// PlaceOrder validates and places an order. Market orders and limit orders
// that are already satisfiable fill immediately at the current price; other
// limit orders rest in the order book.
func (oe *OrderExecutionEngine) PlaceOrder(req OrderRequest) (*models.Order, *models.Position, error) {
	oe.mu.Lock()

	currentPrice := oe.prices[req.Symbol]
	if err := oe.validateOrder(req, currentPrice); err != nil {
		oe.mu.Unlock()
		log.Printf("[trading] Rejected %s %s order for %s: %v", req.Side, req.Type, req.Symbol, err)
		return nil, nil, err
	}

	now := oe.now()
	order := &models.Order{
		ID:        uuid.NewString(),
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      req.Type,
		Quantity:  req.Quantity,
		Status:    models.OrderStatusPending,
		CreatedAt: now,
		OrderParams: models.OrderParameters{
			LimitPrice:    copyPrice(req.LimitPrice),
			StopLossPrice: copyPrice(req.StopLossPrice),
		},
	}
	oe.orders = append(oe.orders, order)
	oe.orderIndex[order.ID] = order

	events := []engineEvent{{types.OrderPlaced, *order}}

	var position *models.Position
	if order.Type == models.OrderTypeMarket || limitSatisfiable(order, currentPrice) {
		position = oe.fillOrder(order, currentPrice, now)
		log.Printf("[trading] Filled %s %s order %s: %s %d at %.8f",
			order.Side, order.Type, order.ID, order.Symbol, order.Quantity, currentPrice)
		events = append(events,
			engineEvent{types.OrderFilled, *order},
			engineEvent{types.PositionOpened, *position})
	} else if err := oe.orderBook.AddOrder(order); err != nil {
		// Validation guarantees a pending limit order, this cannot fail
		log.Printf("[trading] Failed to add order %s to order book: %v", order.ID, err)
	}

	orderCopy := *order
	var positionCopy *models.Position
	if position != nil {
		p := *position
		positionCopy = &p
	}
	oe.mu.Unlock()

	oe.publish(events)
	return &orderCopy, positionCopy, nil
}

// ProcessPriceUpdate evaluates one price observation: stop-losses first,
// then pending limit orders, then every open position is marked to price.
func (oe *OrderExecutionEngine) ProcessPriceUpdate(symbol string, currentPrice float64) (*PriceUpdateResult, error) {
	if symbol == "" {
		return nil, fmt.Errorf("symbol cannot be empty")
	}
	if currentPrice <= 0 {
		return nil, fmt.Errorf("invalid price: %.8f", currentPrice)
	}

	oe.mu.Lock()

	oe.prices[symbol] = currentPrice
	now := oe.now()
	result := &PriceUpdateResult{}
	var events []engineEvent

	for _, position := range oe.positions {
		if position.Symbol != symbol || !position.IsOpen() || !position.StopLossHit(currentPrice) {
			continue
		}
		oe.closePosition(position, currentPrice, now, models.CloseReasonStopLoss)
		log.Printf("[trading] Stop-loss hit for position %s at %.8f (stop %.8f)",
			position.ID, currentPrice, *position.StopLossPrice)
		result.StoppedOut = append(result.StoppedOut, *position)
		events = append(events, engineEvent{types.PositionClosed, *position})
	}

	for _, order := range oe.orderBook.GetOrdersToExecute(symbol, currentPrice) {
		limitPrice := *order.GetLimitPrice()
		position := oe.fillOrder(order, limitPrice, now)
		log.Printf("[trading] Limit order %s filled at %.8f (market %.8f)", order.ID, limitPrice, currentPrice)
		result.Filled = append(result.Filled, *order)
		result.Opened = append(result.Opened, *position)
		events = append(events,
			engineEvent{types.OrderFilled, *order},
			engineEvent{types.PositionOpened, *position})
	}

	for _, position := range oe.positions {
		if position.Symbol == symbol && position.IsOpen() {
			position.CurrentPrice = currentPrice
			result.Marked++
		}
	}
	if result.Marked > 0 {
		events = append(events, engineEvent{types.PositionsMarked, map[string]interface{}{
			"symbol": symbol,
			"price":  currentPrice,
			"count":  result.Marked,
		}})
	}

	oe.mu.Unlock()

	oe.publish(events)
	return result, nil
}

// OnPriceTick feeds candles accepted by the replay store into the engine.
// A store reset forgets every known price until the next candle arrives.
func (oe *OrderExecutionEngine) OnPriceTick(tick store.PriceTick) {
	if tick.Reset {
		oe.ForgetPrices()
		return
	}
	if _, err := oe.ProcessPriceUpdate(tick.Symbol, tick.Candle.Close); err != nil {
		log.Printf("[trading] Ignoring price tick: %v", err)
	}
}

// ForgetPrices drops every known price. Orders are rejected for a symbol
// until a new price for it is processed.
func (oe *OrderExecutionEngine) ForgetPrices() {
	oe.mu.Lock()
	defer oe.mu.Unlock()

	if len(oe.prices) > 0 {
		log.Printf("[trading] Forgetting prices for %d symbols", len(oe.prices))
	}
	oe.prices = make(map[string]float64)
}

// ClosePosition closes an open position at the current price. Returns false
// for unknown or already closed positions.
func (oe *OrderExecutionEngine) ClosePosition(positionID string) (*models.Position, bool) {
	oe.mu.Lock()

	position, exists := oe.positionIndex[positionID]
	if !exists || !position.IsOpen() {
		oe.mu.Unlock()
		return nil, false
	}

	price := oe.prices[position.Symbol]
	if price <= 0 {
		price = position.CurrentPrice
	}
	oe.closePosition(position, price, oe.now(), models.CloseReasonManual)
	log.Printf("[trading] Closed position %s at %.8f", position.ID, price)

	closed := *position
	oe.mu.Unlock()

	oe.publish([]engineEvent{{types.PositionClosed, closed}})
	return &closed, true
}

// CancelOrder cancels a pending order. Returns false for unknown or
// non-pending orders.
func (oe *OrderExecutionEngine) CancelOrder(orderID string) (*models.Order, bool) {
	oe.mu.Lock()

	order, exists := oe.orderIndex[orderID]
	if !exists || order.Status != models.OrderStatusPending {
		oe.mu.Unlock()
		return nil, false
	}

	if _, err := oe.orderBook.RemoveOrder(orderID); err != nil {
		log.Printf("[trading] Cancelling order %s missing from order book: %v", orderID, err)
	}
	order.Status = models.OrderStatusCancelled
	log.Printf("[trading] Cancelled limit order %s", orderID)

	cancelled := *order
	oe.mu.Unlock()

	oe.publish([]engineEvent{{types.OrderCancelled, cancelled}})
	return &cancelled, true
}

// CurrentPrice returns the last observed price for a symbol, 0 if unknown
func (oe *OrderExecutionEngine) CurrentPrice(symbol string) float64 {
	oe.mu.RLock()
	defer oe.mu.RUnlock()
	return oe.prices[symbol]
}

// Orders returns a snapshot of every order, oldest first
func (oe *OrderExecutionEngine) Orders() []models.Order {
	oe.mu.RLock()
	defer oe.mu.RUnlock()

	orders := make([]models.Order, len(oe.orders))
	for i, o := range oe.orders {
		orders[i] = *o
	}
	return orders
}

// PendingOrders returns a snapshot of resting limit orders
func (oe *OrderExecutionEngine) PendingOrders() []models.Order {
	oe.mu.RLock()
	defer oe.mu.RUnlock()

	pending := oe.orderBook.PendingOrders()
	orders := make([]models.Order, len(pending))
	for i, o := range pending {
		orders[i] = *o
	}
	return orders
}

// Positions returns a snapshot of every position, oldest first
func (oe *OrderExecutionEngine) Positions() []models.Position {
	oe.mu.RLock()
	defer oe.mu.RUnlock()

	positions := make([]models.Position, len(oe.positions))
	for i, p := range oe.positions {
		positions[i] = *p
	}
	return positions
}

// fillOrder marks the order filled and opens its position. Caller holds the lock.
func (oe *OrderExecutionEngine) fillOrder(order *models.Order, price float64, at time.Time) *models.Position {
	position := &models.Position{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      order.Quantity,
		EntryPrice:    price,
		CurrentPrice:  oe.prices[order.Symbol],
		StopLossPrice: copyPrice(order.GetStopLossPrice()),
		Status:        models.PositionStatusOpen,
		OpenedAt:      at,
	}
	oe.positions = append(oe.positions, position)
	oe.positionIndex[position.ID] = position

	filledAt := at
	order.Status = models.OrderStatusFilled
	order.FilledAt = &filledAt
	order.FilledPrice = copyPrice(&price)
	order.PositionID = position.ID

	return position
}

func (oe *OrderExecutionEngine) closePosition(position *models.Position, price float64, at time.Time, reason models.CloseReason) {
	exitAt := at
	position.Status = models.PositionStatusClosed
	position.CurrentPrice = price
	position.ExitPrice = copyPrice(&price)
	position.ExitTimestamp = &exitAt
	position.CloseReason = reason
}

// validateOrder checks an order request against the current price
func (oe *OrderExecutionEngine) validateOrder(req OrderRequest, currentPrice float64) error {
	if req.Symbol == "" {
		return rejectf("symbol cannot be empty")
	}

	if req.Side != models.OrderSideBuy && req.Side != models.OrderSideSell {
		return rejectf("invalid order side: %q", req.Side)
	}

	if req.Type != models.OrderTypeMarket && req.Type != models.OrderTypeLimit {
		return rejectf("invalid order type: %q", req.Type)
	}

	if req.Quantity <= 0 {
		return rejectf("quantity must be positive: %d", req.Quantity)
	}

	if currentPrice <= 0 {
		return rejectf("current price unknown for %s", req.Symbol)
	}

	if req.Type == models.OrderTypeLimit && (req.LimitPrice == nil || *req.LimitPrice <= 0) {
		return rejectf("limit order requires a positive limit price")
	}

	if req.StopLossPrice == nil {
		return nil
	}

	stopLoss := *req.StopLossPrice
	if stopLoss <= 0 {
		return rejectf("stop-loss must be positive: %.8f", stopLoss)
	}
	if req.Side == models.OrderSideBuy && stopLoss >= currentPrice {
		return rejectf("buy stop-loss %.8f must be below current price %.8f", stopLoss, currentPrice)
	}
	if req.Side == models.OrderSideSell && stopLoss <= currentPrice {
		return rejectf("sell stop-loss %.8f must be above current price %.8f", stopLoss, currentPrice)
	}

	// A resting limit order enters at its limit price
	if req.Type == models.OrderTypeLimit {
		limitPrice := *req.LimitPrice
		probe := models.Order{Side: req.Side, Type: req.Type, OrderParams: models.OrderParameters{LimitPrice: &limitPrice}}
		if !limitSatisfiable(&probe, currentPrice) {
			if req.Side == models.OrderSideBuy && stopLoss >= limitPrice {
				return rejectf("buy stop-loss %.8f must be below limit price %.8f", stopLoss, limitPrice)
			}
			if req.Side == models.OrderSideSell && stopLoss <= limitPrice {
				return rejectf("sell stop-loss %.8f must be above limit price %.8f", stopLoss, limitPrice)
			}
		}
	}

	return nil
}

// limitSatisfiable reports whether a limit order can fill right away
func limitSatisfiable(order *models.Order, currentPrice float64) bool {
	if !order.IsLimitOrder() {
		return false
	}
	limitPrice := *order.GetLimitPrice()
	if order.Side == models.OrderSideBuy {
		return limitPrice >= currentPrice
	}
	return limitPrice <= currentPrice
}

func (oe *OrderExecutionEngine) publish(events []engineEvent) {
	if oe.broadcaster == nil {
		return
	}
	for _, evt := range events {
		oe.broadcaster.BroadcastMessage(evt.msgType, evt.data)
	}
}

func copyPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
