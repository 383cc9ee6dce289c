package store

import (
	"log"
	"sync"

	"chronotick/internal/models"
)

// PriceTick is delivered to observers for every candle the store accepts,
// and once with Reset set when the store is cleared for a new session
type PriceTick struct {
	Symbol  string
	Candle  models.Candle
	Replace bool // True when the whole sequence was replaced
	Reset   bool // True when the store was cleared; Candle is empty
}

// PriceObserver reacts to accepted candles
type PriceObserver interface {
	OnPriceTick(tick PriceTick)
}

// PriceObserverFunc adapts a function to PriceObserver
type PriceObserverFunc func(tick PriceTick)

func (f PriceObserverFunc) OnPriceTick(tick PriceTick) { f(tick) }

// ReplayStore holds the candle sequence and markers of one replay session.
// It is owned by whoever constructs it and passed by reference; there is no
// package-level instance.
type ReplayStore struct {
	mu        sync.RWMutex
	symbol    string
	candles   []models.Candle
	markers   []models.SessionMarker
	paused    bool
	observers []PriceObserver
}

// NewReplayStore creates an empty store
func NewReplayStore() *ReplayStore {
	return &ReplayStore{}
}

// Subscribe registers an observer for accepted candles
func (s *ReplayStore) Subscribe(observer PriceObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// Reset clears candles, markers and the pause flag. Observers are told so
// they stop pricing against the previous session.
func (s *ReplayStore) Reset() {
	s.mu.Lock()
	s.candles = nil
	s.markers = nil
	s.paused = false
	symbol := s.symbol
	observers := s.observers
	s.mu.Unlock()

	notify(observers, PriceTick{Symbol: symbol, Reset: true})
}

// SetSymbol tags the store with the symbol of the active session
func (s *ReplayStore) SetSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbol = symbol
}

// Symbol returns the symbol of the active session
func (s *ReplayStore) Symbol() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.symbol
}

// SetInitialCandles replaces the entire candle sequence
func (s *ReplayStore) SetInitialCandles(candles []models.Candle) {
	s.mu.Lock()
	s.candles = append([]models.Candle(nil), candles...)
	symbol := s.symbol
	observers := s.observers
	s.mu.Unlock()

	if len(candles) == 0 {
		return
	}
	notify(observers, PriceTick{Symbol: symbol, Candle: candles[len(candles)-1], Replace: true})
}

// AddCandle appends a candle, or replaces the last one when the timestamps
// match. Dropped while the store is paused. A candle older than the last
// one is ignored so the sequence never reorders.
func (s *ReplayStore) AddCandle(candle models.Candle) bool {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return false
	}

	if n := len(s.candles); n > 0 {
		last := s.candles[n-1]
		switch {
		case candle.Time == last.Time:
			s.candles[n-1] = candle
		case candle.Time < last.Time:
			s.mu.Unlock()
			log.Printf("[store] Ignoring out-of-order candle %d (last %d)", candle.Time, last.Time)
			return false
		default:
			s.candles = append(s.candles, candle)
		}
	} else {
		s.candles = append(s.candles, candle)
	}

	symbol := s.symbol
	observers := s.observers
	s.mu.Unlock()

	notify(observers, PriceTick{Symbol: symbol, Candle: candle})
	return true
}

// AddSessionMarker appends a marker. Markers are never deduplicated.
func (s *ReplayStore) AddSessionMarker(marker models.SessionMarker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers = append(s.markers, marker)
}

// SetPaused toggles the drop-on-append behaviour
func (s *ReplayStore) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Paused reports the store-level pause flag
func (s *ReplayStore) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

// Candles returns a copy of the candle sequence
func (s *ReplayStore) Candles() []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Candle(nil), s.candles...)
}

// Markers returns a copy of the session markers
func (s *ReplayStore) Markers() []models.SessionMarker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.SessionMarker(nil), s.markers...)
}

// Len returns the number of candles
func (s *ReplayStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.candles)
}

// LatestCandle returns the most recent candle
func (s *ReplayStore) LatestCandle() (models.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.candles) == 0 {
		return models.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// LatestPrice returns the close of the most recent candle, 0 when empty
func (s *ReplayStore) LatestPrice() float64 {
	c, ok := s.LatestCandle()
	if !ok {
		return 0
	}
	return c.Close
}

// Stats summarizes the current candle sequence
func (s *ReplayStore) Stats() *models.CandleStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.ComputeCandleStats(s.candles)
}

func notify(observers []PriceObserver, tick PriceTick) {
	for _, o := range observers {
		o.OnPriceTick(tick)
	}
}
