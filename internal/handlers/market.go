package handlers

import (
	"context"
	"net/http"
	"time"

	"chronotick/internal/services/market"

	"github.com/gin-gonic/gin"
)

const symbolsRequestTimeout = 10 * time.Second

type MarketHandler struct {
	marketService market.MarketDataServiceInterface
}

func NewMarketHandler(marketService market.MarketDataServiceInterface) *MarketHandler {
	return &MarketHandler{
		marketService: marketService,
	}
}

// GetSymbols handles GET /api/v1/market/symbols. Pass refresh=true to bypass
// the cached list.
func (h *MarketHandler) GetSymbols(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), symbolsRequestTimeout)
	defer cancel()

	symbols, err := h.marketService.GetSupportedSymbols(ctx, c.Query("refresh") == "true")
	if err != nil {
		respondError(c, http.StatusBadGateway, "failed to fetch symbols", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbols": symbols,
		"count":   len(symbols),
	})
}

// GetCandles handles GET /api/v1/candles
func (h *MarketHandler) GetCandles(c *gin.Context) {
	snapshot := h.marketService.GetSnapshot()
	c.JSON(http.StatusOK, gin.H{
		"symbol":  snapshot.Symbol,
		"candles": h.marketService.GetCandles(),
		"paused":  snapshot.Paused,
	})
}

// GetMarkers handles GET /api/v1/markers
func (h *MarketHandler) GetMarkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"markers": h.marketService.GetMarkers(),
	})
}

// GetStats handles GET /api/v1/stats
func (h *MarketHandler) GetStats(c *gin.Context) {
	stats := h.marketService.GetStats()
	if stats == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no candles received yet"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
