package market

import (
	"context"
	"fmt"
	"sync"

	"chronotick/internal/models"
)

// SymbolSource lists the symbols the replay backend can serve
type SymbolSource interface {
	GetSymbols(ctx context.Context) ([]string, error)
}

// ReplayReader is the read side of the replay store
type ReplayReader interface {
	Symbol() string
	Candles() []models.Candle
	Markers() []models.SessionMarker
	LatestPrice() float64
	Paused() bool
	Stats() *models.CandleStats
}

// MarketDataService provides market data functionality
type MarketDataService struct {
	symbols SymbolSource
	replay  ReplayReader

	mu     sync.Mutex
	cached []string
}

// MarketDataServiceInterface defines the contract for market data services
type MarketDataServiceInterface interface {
	GetSupportedSymbols(ctx context.Context, refresh bool) ([]string, error)
	GetCandles() []models.Candle
	GetMarkers() []models.SessionMarker
	GetStats() *models.CandleStats
	GetSnapshot() Snapshot
}

// Snapshot is the chart-facing view of the active replay
type Snapshot struct {
	Symbol      string  `json:"symbol"`
	Count       int     `json:"count"`
	LatestPrice float64 `json:"latestPrice"`
	Paused      bool    `json:"paused"`
}

// NewMarketDataService creates a new market data service
func NewMarketDataService(symbols SymbolSource, replay ReplayReader) MarketDataServiceInterface {
	return &MarketDataService{
		symbols: symbols,
		replay:  replay,
	}
}

// GetSupportedSymbols returns the backend's symbol list. The list is fetched
// once and cached unless refresh is set; failed fetches are not cached.
func (mds *MarketDataService) GetSupportedSymbols(ctx context.Context, refresh bool) ([]string, error) {
	mds.mu.Lock()
	defer mds.mu.Unlock()

	if mds.cached != nil && !refresh {
		return append([]string(nil), mds.cached...), nil
	}

	symbols, err := mds.symbols.GetSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load symbols: %w", err)
	}
	mds.cached = symbols
	return append([]string(nil), symbols...), nil
}

// GetCandles returns the candle sequence of the active replay
func (mds *MarketDataService) GetCandles() []models.Candle {
	return mds.replay.Candles()
}

// GetMarkers returns the session markers of the active replay
func (mds *MarketDataService) GetMarkers() []models.SessionMarker {
	return mds.replay.Markers()
}

// GetStats returns summary statistics, nil before the first bar
func (mds *MarketDataService) GetStats() *models.CandleStats {
	return mds.replay.Stats()
}

func (mds *MarketDataService) GetSnapshot() Snapshot {
	candles := mds.replay.Candles()
	return Snapshot{
		Symbol:      mds.replay.Symbol(),
		Count:       len(candles),
		LatestPrice: mds.replay.LatestPrice(),
		Paused:      mds.replay.Paused(),
	}
}
