package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chronotick/internal/config"
	"chronotick/internal/engines/session"
	tradingEngine "chronotick/internal/engines/trading"
	"chronotick/internal/handlers"
	wsHandlers "chronotick/internal/handlers/websocket"
	"chronotick/internal/integrations/replay"
	"chronotick/internal/models"
	"chronotick/internal/services"
	"chronotick/internal/services/market"
	"chronotick/internal/store"

	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Dashboard hub
	hub := wsHandlers.NewHub()

	// Replay data store and the order engine that watches it
	replayStore := store.NewReplayStore()
	engine := tradingEngine.NewOrderExecutionEngine(tradingEngine.WithBroadcaster(hub))
	replayStore.Subscribe(engine)

	// Replay backend
	streamClient := replay.NewClient(cfg.ReplayWSURL,
		replay.WithFlushDelay(cfg.CloseFlushDelay),
		replay.WithHandshakeTimeout(cfg.HandshakeTimeout),
	)
	symbolsClient := replay.NewSymbolsClient(cfg.ReplayHTTPURL, cfg.SymbolsTimeout)

	controller := session.NewController(
		session.NewClientOpener(streamClient),
		replayStore,
		session.WithBroadcaster(hub),
		session.WithGapLabeler(services.NewSessionCalendar(cfg.CalendarMIC)),
	)
	controller.OnConnectionChange(func(connected bool) {
		log.Printf("[server] Replay stream connected: %t", connected)
	})

	hub.SetSnapshot(func() interface{} { return controller.Status() })
	go hub.Run(ctx)

	// Initialize services
	marketService := market.NewMarketDataService(symbolsClient, replayStore)
	orderService := services.NewOrderService(engine)
	portfolioService := services.NewPortfolioService(engine)

	// Initialize handlers
	wsHandler := wsHandlers.NewWebSocketHandler(hub)
	wsHandler.SetHandlers(
		wsHandlers.NewSessionEventHandler(controller),
		wsHandlers.NewOrderEventHandler(orderService),
	)

	r := gin.Default()
	r.Use(handlers.CORSMiddleware())
	handlers.RegisterRoutes(r, handlers.Handlers{
		Health:    handlers.NewHealthHandler(controller, hub),
		Market:    handlers.NewMarketHandler(marketService),
		Session:   handlers.NewSessionHandler(controller, replayStore),
		Order:     handlers.NewOrderHandler(orderService, portfolioService),
		WebSocket: wsHandler,
	})

	if cfg.DefaultSymbol != "" {
		if err := controller.SetParams(models.DefaultSessionParams(cfg.DefaultSymbol)); err != nil {
			log.Fatalf("Invalid default session: %v", err)
		}
		controller.SetEnabled(true)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.Printf("Server starting on port %s (replay backend %s)", cfg.Port, cfg.ReplayWSURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down")

	controller.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
