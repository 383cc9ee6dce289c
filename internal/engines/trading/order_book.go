package trading

import (
	"container/heap"
	"fmt"
	"log"
	"sort"
	"sync"

	"chronotick/internal/models"
)

// limitQueue orders resting limit orders of one side so the order closest
// to triggering sits at the root. Bids are a max heap on limit price, asks a
// min heap. Ties go to the older order.
type limitQueue struct {
	side   models.OrderSide
	orders []*models.Order
}

func newLimitQueue(side models.OrderSide) *limitQueue {
	return &limitQueue{side: side}
}

func (q *limitQueue) Len() int { return len(q.orders) }

func (q *limitQueue) Less(i, j int) bool {
	pi, pj := *q.orders[i].GetLimitPrice(), *q.orders[j].GetLimitPrice()
	if pi == pj {
		return q.orders[i].CreatedAt.Before(q.orders[j].CreatedAt)
	}
	if q.side == models.OrderSideBuy {
		return pi > pj
	}
	return pi < pj
}

func (q *limitQueue) Swap(i, j int) { q.orders[i], q.orders[j] = q.orders[j], q.orders[i] }

func (q *limitQueue) Push(x interface{}) { q.orders = append(q.orders, x.(*models.Order)) }

func (q *limitQueue) Pop() interface{} {
	n := len(q.orders)
	order := q.orders[n-1]
	q.orders[n-1] = nil
	q.orders = q.orders[:n-1]
	return order
}

func (q *limitQueue) peek() *models.Order {
	if len(q.orders) == 0 {
		return nil
	}
	return q.orders[0]
}

// triggered reports whether the price reaches the order's limit. Bids fill
// at or below the limit, asks at or above.
func (q *limitQueue) triggered(order *models.Order, price float64) bool {
	if q.side == models.OrderSideBuy {
		return price <= *order.GetLimitPrice()
	}
	return price >= *order.GetLimitPrice()
}

func (q *limitQueue) remove(orderID string) {
	for i, o := range q.orders {
		if o.ID == orderID {
			heap.Remove(q, i)
			return
		}
	}
}

type symbolBook struct {
	bids  *limitQueue
	asks  *limitQueue
	index map[string]*models.Order
}

func newSymbolBook() *symbolBook {
	return &symbolBook{
		bids:  newLimitQueue(models.OrderSideBuy),
		asks:  newLimitQueue(models.OrderSideSell),
		index: make(map[string]*models.Order),
	}
}

func (b *symbolBook) queue(side models.OrderSide) *limitQueue {
	if side == models.OrderSideBuy {
		return b.bids
	}
	return b.asks
}

// drain pops every order the price triggers, stopping at the first root
// that does not trigger.
func (b *symbolBook) drain(q *limitQueue, price float64) []*models.Order {
	var out []*models.Order
	for order := q.peek(); order != nil && q.triggered(order, price); order = q.peek() {
		heap.Pop(q)
		delete(b.index, order.ID)
		out = append(out, order)
	}
	return out
}

// OrderBook manages pending limit orders across symbols
type OrderBook struct {
	mu      sync.RWMutex
	symbols map[string]*symbolBook
	owner   map[string]string // order ID -> symbol
}

// NewOrderBook creates a new order book
func NewOrderBook() *OrderBook {
	return &OrderBook{
		symbols: make(map[string]*symbolBook),
		owner:   make(map[string]string),
	}
}

// AddOrder rests a pending limit order in the book
func (ob *OrderBook) AddOrder(order *models.Order) error {
	if !order.IsLimitOrder() || order.GetLimitPrice() == nil {
		return fmt.Errorf("only limit orders can rest in the order book")
	}
	if order.Status != models.OrderStatusPending {
		return fmt.Errorf("order %s is %s, not pending", order.ID, order.Status)
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	if _, exists := ob.owner[order.ID]; exists {
		return fmt.Errorf("order %s already in order book", order.ID)
	}

	book, ok := ob.symbols[order.Symbol]
	if !ok {
		book = newSymbolBook()
		ob.symbols[order.Symbol] = book
	}
	book.index[order.ID] = order
	heap.Push(book.queue(order.Side), order)
	ob.owner[order.ID] = order.Symbol

	log.Printf("[trading] Resting %s limit order %s: %s %d at %.8f",
		order.Side, order.ID, order.Symbol, order.Quantity, *order.GetLimitPrice())
	return nil
}

// RemoveOrder takes an order out of the book
func (ob *OrderBook) RemoveOrder(orderID string) (*models.Order, error) {
	ob.mu.Lock()
	defer ob.mu.Unlock()

	symbol, ok := ob.owner[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s not found in order book", orderID)
	}
	book := ob.symbols[symbol]
	order := book.index[orderID]

	book.queue(order.Side).remove(orderID)
	delete(book.index, orderID)
	delete(ob.owner, orderID)
	return order, nil
}

// GetOrdersToExecute pops every order whose limit the price reaches. Bids
// come first, best price first within a side.
func (ob *OrderBook) GetOrdersToExecute(symbol string, currentPrice float64) []*models.Order {
	if currentPrice <= 0 {
		return nil
	}

	ob.mu.Lock()
	defer ob.mu.Unlock()

	book, ok := ob.symbols[symbol]
	if !ok {
		return nil
	}

	triggered := append(book.drain(book.bids, currentPrice), book.drain(book.asks, currentPrice)...)
	for _, order := range triggered {
		delete(ob.owner, order.ID)
	}
	return triggered
}

// PendingOrders returns every resting order, oldest first
func (ob *OrderBook) PendingOrders() []*models.Order {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	var orders []*models.Order
	for _, book := range ob.symbols {
		for _, order := range book.index {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.Before(orders[j].CreatedAt)
	})
	return orders
}

// Len returns the number of resting orders, optionally for one symbol
func (ob *OrderBook) Len(symbol string) int {
	ob.mu.RLock()
	defer ob.mu.RUnlock()

	if symbol == "" {
		return len(ob.owner)
	}
	if book, ok := ob.symbols[symbol]; ok {
		return len(book.index)
	}
	return 0
}
