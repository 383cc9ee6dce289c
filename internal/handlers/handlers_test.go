package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"chronotick/internal/engines/session"
	tradingEngine "chronotick/internal/engines/trading"
	"chronotick/internal/models"
	"chronotick/internal/services"
	"chronotick/internal/services/market"
	"chronotick/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	params  models.ReplaySessionParams
	enabled bool
	playing bool
	stopped int
	redials int
}

func (f *fakeController) SetParams(params models.ReplaySessionParams) error {
	if params.Symbol != "" {
		if err := params.Validate(); err != nil {
			return err
		}
	}
	f.params = params
	return nil
}

func (f *fakeController) SetEnabled(enabled bool) { f.enabled = enabled }
func (f *fakeController) SetPlaying(playing bool) { f.playing = playing }
func (f *fakeController) CloseSocket()            { f.stopped++ }
func (f *fakeController) Reconnect()              { f.redials++ }

func (f *fakeController) Status() session.Status {
	return session.Status{
		State:   session.StateIdle,
		Enabled: f.enabled,
		Playing: f.playing,
		Params:  f.params,
	}
}

func (f *fakeController) ConnectionState() models.ConnectionState {
	return models.ConnectionDisconnected
}

type fakeSymbols struct {
	symbols []string
	err     error
}

func (f fakeSymbols) GetSymbols(context.Context) ([]string, error) { return f.symbols, f.err }

type zeroClients struct{}

func (zeroClients) GetClientCount() int { return 0 }

type testAPI struct {
	router     *gin.Engine
	controller *fakeController
	store      *store.ReplayStore
	engine     *tradingEngine.OrderExecutionEngine
}

func newTestAPI(t *testing.T, symbols fakeSymbols) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	controller := &fakeController{}
	replayStore := store.NewReplayStore()
	engine := tradingEngine.NewOrderExecutionEngine()
	replayStore.Subscribe(engine)

	router := gin.New()
	RegisterRoutes(router, Handlers{
		Health:  NewHealthHandler(controller, zeroClients{}),
		Market:  NewMarketHandler(market.NewMarketDataService(symbols, replayStore)),
		Session: NewSessionHandler(controller, replayStore),
		Order:   NewOrderHandler(services.NewOrderService(engine), services.NewPortfolioService(engine)),
	})

	return &testAPI{router: router, controller: controller, store: replayStore, engine: engine}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, fakeSymbols{})

	w := api.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, "healthy", body["status"])
	require.Equal(t, "disconnected", body["replay"])
}

func TestGetSymbols(t *testing.T) {
	api := newTestAPI(t, fakeSymbols{symbols: []string{"AAPL", "NIFTY"}})

	w := api.do(t, http.MethodGet, "/api/v1/market/symbols", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []interface{}{"AAPL", "NIFTY"}, decodeBody(t, w)["symbols"])
}

func TestGetSymbolsBackendDown(t *testing.T) {
	api := newTestAPI(t, fakeSymbols{err: errors.New("connection refused")})

	w := api.do(t, http.MethodGet, "/api/v1/market/symbols", nil)
	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestSetSessionAppliesDefaults(t *testing.T) {
	api := newTestAPI(t, fakeSymbols{})

	enabled := true
	w := api.do(t, http.MethodPut, "/api/v1/session", map[string]interface{}{"symbol": "AAPL", "enabled": enabled})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, models.DefaultSessionParams("AAPL"), api.controller.params)
	require.True(t, api.controller.enabled)

	w = api.do(t, http.MethodPut, "/api/v1/session", map[string]interface{}{"symbol": "AAPL", "timeScale": -5})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionCommands(t *testing.T) {
	api := newTestAPI(t, fakeSymbols{})

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/session/play", nil).Code)
	require.True(t, api.controller.playing)

	w := api.do(t, http.MethodPost, "/api/v1/session/pause", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.False(t, api.controller.playing)
	require.Equal(t, false, decodeBody(t, w)["playing"])

	api.do(t, http.MethodPost, "/api/v1/session/stop", nil)
	api.do(t, http.MethodPost, "/api/v1/session/reconnect", nil)
	require.Equal(t, 1, api.controller.stopped)
	require.Equal(t, 1, api.controller.redials)

	require.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/v1/session/status", nil).Code)
}

func TestLocalPause(t *testing.T) {
	api := newTestAPI(t, fakeSymbols{})

	w := api.do(t, http.MethodPost, "/api/v1/session/local-pause", map[string]bool{"paused": true})
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, api.store.Paused())

	w = api.do(t, http.MethodPost, "/api/v1/session/local-pause", map[string]string{})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCandlesAndStats(t *testing.T) {
	api := newTestAPI(t, fakeSymbols{})

	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodGet, "/api/v1/stats", nil).Code)

	api.store.SetSymbol("AAPL")
	api.store.SetInitialCandles([]models.Candle{{Time: 1000, Open: 10, High: 11, Low: 9, Close: 10.5}})

	w := api.do(t, http.MethodGet, "/api/v1/candles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	require.Equal(t, "AAPL", body["symbol"])
	require.Len(t, body["candles"], 1)

	w = api.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(1), decodeBody(t, w)["count"])

	w = api.do(t, http.MethodGet, "/api/v1/markers", nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestOrderLifecycle(t *testing.T) {
	api := newTestAPI(t, fakeSymbols{})
	api.store.SetSymbol("AAPL")
	api.store.SetInitialCandles([]models.Candle{{Time: 1000, Open: 10.5, High: 10.8, Low: 10.2, Close: 10.6}})

	// Missing limit price
	w := api.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"symbol": "AAPL", "side": "buy", "type": "limit", "quantity": 1,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "order rejected", decodeBody(t, w)["error"])
	require.Empty(t, api.engine.Orders())

	w = api.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"symbol": "AAPL", "side": "buy", "type": "market", "quantity": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	position := decodeBody(t, w)["position"].(map[string]interface{})
	positionID := position["id"].(string)

	w = api.do(t, http.MethodPost, "/api/v1/orders", map[string]interface{}{
		"symbol": "AAPL", "side": "buy", "type": "limit", "quantity": 1, "limitPrice": 10.0,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := decodeBody(t, w)["order"].(map[string]interface{})["id"].(string)

	w = api.do(t, http.MethodGet, "/api/v1/orders?status=pending", nil)
	require.Equal(t, float64(1), decodeBody(t, w)["count"])

	require.Equal(t, http.StatusOK, api.do(t, http.MethodDelete, "/api/v1/orders/"+orderID, nil).Code)
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodDelete, "/api/v1/orders/"+orderID, nil).Code)

	api.store.AddCandle(models.Candle{Time: 1060, Open: 10.6, High: 10.6, Low: 10.3, Close: 10.4})

	w = api.do(t, http.MethodGet, "/api/v1/portfolio", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "-0.4", decodeBody(t, w)["unrealizedPnL"])

	require.Equal(t, http.StatusOK, api.do(t, http.MethodPost, "/api/v1/positions/"+positionID+"/close", nil).Code)
	require.Equal(t, http.StatusNotFound, api.do(t, http.MethodPost, "/api/v1/positions/"+positionID+"/close", nil).Code)

	w = api.do(t, http.MethodGet, "/api/v1/positions?status=closed", nil)
	require.Equal(t, float64(1), decodeBody(t, w)["count"])
}
