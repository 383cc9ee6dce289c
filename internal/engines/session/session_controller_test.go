package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chronotick/internal/engines/trading"
	"chronotick/internal/integrations/replay"
	"chronotick/internal/models"
	"chronotick/internal/store"
	"chronotick/internal/types"

	"github.com/stretchr/testify/require"
)

// ─── fakes ────────────────────────────────────────────────────────────────────

type fakeHandle struct {
	id      uint64
	params  models.ReplaySessionParams
	handler replay.EventHandler

	mu         sync.Mutex
	connected  bool
	closed     int
	terminated bool
	sent       []types.CommandKind
}

func (h *fakeHandle) ID() uint64 { return h.id }

func (h *fakeHandle) Send(cmd types.CommandKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.connected || h.closed > 0 {
		return false
	}
	h.sent = append(h.sent, cmd)
	return true
}

func (h *fakeHandle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
}

func (h *fakeHandle) Terminate() {
	h.Close()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.terminated = true
}

func (h *fakeHandle) Terminated() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminated
}

func (h *fakeHandle) Sent() []types.CommandKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]types.CommandKind(nil), h.sent...)
}

func (h *fakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed > 0
}

// The emit helpers run on the test goroutine, the way the real handle's
// read goroutine calls back outside any controller lock.
func (h *fakeHandle) emit(evt replay.Event) {
	evt.HandleID = h.id
	h.handler(evt)
}

func (h *fakeHandle) connect() {
	h.mu.Lock()
	h.connected = true
	h.mu.Unlock()
	h.emit(replay.Event{Kind: replay.EventStatus, Status: models.ConnectionConnected})
}

func (h *fakeHandle) fail(err error) {
	h.mu.Lock()
	h.connected = false
	h.mu.Unlock()
	h.emit(replay.Event{Kind: replay.EventStatus, Status: models.ConnectionDisconnected, Err: err})
}

func (h *fakeHandle) first(c models.Candle) {
	h.emit(replay.Event{Kind: replay.EventReplaceCandles, Candles: []models.Candle{c}})
}

func (h *fakeHandle) next(c models.Candle) {
	h.emit(replay.Event{Kind: replay.EventAppendCandle, Candle: c})
}

type fakeOpener struct {
	mu      sync.Mutex
	nextID  uint64
	handles []*fakeHandle
}

func (o *fakeOpener) Open(_ context.Context, params models.ReplaySessionParams, handler replay.EventHandler) StreamHandle {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	h := &fakeHandle{id: o.nextID, params: params, handler: handler}
	o.handles = append(o.handles, h)
	return h
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.handles)
}

func (o *fakeOpener) last(t *testing.T) *fakeHandle {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.handles, "no handle opened")
	return o.handles[len(o.handles)-1]
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages []types.MessageType
	payloads []interface{}
}

func (r *recordingBroadcaster) BroadcastMessage(msgType types.MessageType, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msgType)
	r.payloads = append(r.payloads, data)
}

func (r *recordingBroadcaster) find(msgType types.MessageType) []interface{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []interface{}
	for i, m := range r.messages {
		if m == msgType {
			out = append(out, r.payloads[i])
		}
	}
	return out
}

type staticLabeler string

func (l staticLabeler) Label(*types.SessionGapMessage) string { return string(l) }

// ─── helpers ──────────────────────────────────────────────────────────────────

func aaplParams() models.ReplaySessionParams {
	return models.DefaultSessionParams("AAPL")
}

func newTestController(t *testing.T, opts ...ControllerOption) (*Controller, *fakeOpener, *store.ReplayStore) {
	t.Helper()
	opener := &fakeOpener{}
	replayStore := store.NewReplayStore()
	c := NewController(opener, replayStore, opts...)
	t.Cleanup(c.Shutdown)
	return c, opener, replayStore
}

func startConnected(t *testing.T, c *Controller, opener *fakeOpener, params models.ReplaySessionParams) *fakeHandle {
	t.Helper()
	require.NoError(t, c.SetParams(params))
	c.SetEnabled(true)
	h := opener.last(t)
	h.connect()
	require.Equal(t, StateConnected, c.State())
	return h
}

func bar(ts int64, o, h, l, cl float64) models.Candle {
	return models.Candle{Time: ts, Open: o, High: h, Low: l, Close: cl}
}

// ─── lifecycle ────────────────────────────────────────────────────────────────

func TestOpensOnlyWhenEnabledWithSymbol(t *testing.T) {
	c, opener, _ := newTestController(t)

	require.NoError(t, c.SetParams(aaplParams()))
	require.Equal(t, 0, opener.count())
	require.Equal(t, StateIdle, c.State())

	c.SetEnabled(true)
	require.Equal(t, 1, opener.count())
	require.Equal(t, StateOpening, c.State())
	require.Equal(t, models.ConnectionConnecting, c.ConnectionState())
	require.Equal(t, aaplParams(), opener.last(t).params)

	opener.last(t).connect()
	require.True(t, c.IsConnected())
	require.Equal(t, models.ConnectionConnected, c.ConnectionState())
}

func TestEmptySymbolStaysIdle(t *testing.T) {
	c, opener, _ := newTestController(t)
	c.SetEnabled(true)

	require.NoError(t, c.SetParams(models.ReplaySessionParams{}))
	require.Equal(t, 0, opener.count())
	require.Equal(t, StateIdle, c.State())
}

func TestInvalidParamsRejected(t *testing.T) {
	c, opener, _ := newTestController(t)
	c.SetEnabled(true)

	bad := aaplParams()
	bad.SpeedMs = 0
	require.Error(t, c.SetParams(bad))
	require.Equal(t, 0, opener.count())
}

func TestSameParamsDoNotReopen(t *testing.T) {
	c, opener, _ := newTestController(t)
	startConnected(t, c, opener, aaplParams())

	require.NoError(t, c.SetParams(aaplParams()))
	c.SetEnabled(true)
	require.Equal(t, 1, opener.count())
	require.True(t, c.IsConnected())
}

func TestParamChangeTearsDownBeforeOpening(t *testing.T) {
	c, opener, replayStore := newTestController(t)
	h1 := startConnected(t, c, opener, aaplParams())
	h1.first(bar(1000, 10, 11, 9, 10.5))
	require.Equal(t, 1, replayStore.Len())

	p2 := aaplParams()
	p2.Symbol = "NIFTY"
	require.NoError(t, c.SetParams(p2))

	require.True(t, h1.Closed())
	require.Equal(t, 2, opener.count())
	require.Equal(t, StateOpening, c.State())
	require.Equal(t, 0, replayStore.Len())
	require.Equal(t, "NIFTY", replayStore.Symbol())
}

func TestBackToBackOpensKeepOnlyLatestData(t *testing.T) {
	c, opener, replayStore := newTestController(t)
	c.SetEnabled(true)

	require.NoError(t, c.SetParams(aaplParams()))
	h1 := opener.last(t)
	p2 := aaplParams()
	p2.RangeStart = "2015-01-12T09:15"
	require.NoError(t, c.SetParams(p2))
	h2 := opener.last(t)
	require.NotEqual(t, h1.ID(), h2.ID())

	// The superseded handle keeps publishing after the new one started
	h2.connect()
	h2.first(bar(5000, 20, 21, 19, 20.5))
	h1.connect()
	h1.first(bar(1000, 10, 11, 9, 10.5))
	h1.next(bar(1060, 10.5, 10.8, 10.2, 10.6))
	h2.next(bar(5060, 20.5, 20.8, 20.2, 20.6))

	candles := replayStore.Candles()
	require.Len(t, candles, 2)
	require.Equal(t, int64(5000), candles[0].Time)
	require.Equal(t, int64(5060), candles[1].Time)
	require.True(t, c.IsConnected())
	require.Equal(t, h2.ID(), c.Status().HandleID)
}

func TestFirstTickReplacesExistingCandles(t *testing.T) {
	c, opener, replayStore := newTestController(t)
	h := startConnected(t, c, opener, aaplParams())

	replayStore.SetInitialCandles([]models.Candle{bar(1, 1, 1, 1, 1), bar(2, 1, 1, 1, 1)})
	h.first(bar(1000, 10, 11, 9, 10.5))
	require.Equal(t, 1, replayStore.Len())
}

func TestStaleConnectAckIgnored(t *testing.T) {
	c, opener, _ := newTestController(t)
	c.SetEnabled(true)
	require.NoError(t, c.SetParams(aaplParams()))
	h1 := opener.last(t)

	p2 := aaplParams()
	p2.SpeedMs = 1000
	require.NoError(t, c.SetParams(p2))

	h1.connect()
	require.Equal(t, StateOpening, c.State())
	h1.fail(errors.New("boom"))
	require.Equal(t, StateOpening, c.State())
	require.Empty(t, c.Status().LastError)
}

// ─── transport failures ───────────────────────────────────────────────────────

func TestTransportErrorGoesIdleWithoutRetry(t *testing.T) {
	c, opener, _ := newTestController(t)
	h := startConnected(t, c, opener, aaplParams())

	h.fail(errors.New("connection reset"))
	require.Equal(t, StateIdle, c.State())
	require.False(t, c.IsConnected())
	require.Equal(t, "connection reset", c.Status().LastError)
	require.True(t, h.Closed())

	// Nothing reopens silently
	c.SetPlaying(true)
	require.NoError(t, c.SetParams(aaplParams()))
	require.Equal(t, 1, opener.count())

	c.Reconnect()
	require.Equal(t, 2, opener.count())
	require.Equal(t, StateOpening, c.State())
}

func TestDialFailureGoesIdle(t *testing.T) {
	c, opener, _ := newTestController(t)
	require.NoError(t, c.SetParams(aaplParams()))
	c.SetEnabled(true)

	opener.last(t).fail(errors.New("dial tcp: connection refused"))
	require.Equal(t, StateIdle, c.State())
	require.Equal(t, 1, opener.count())
}

func TestCloseSocketStopsUntilReenabled(t *testing.T) {
	c, opener, _ := newTestController(t)
	h := startConnected(t, c, opener, aaplParams())

	c.CloseSocket()
	require.True(t, h.Closed())
	require.Equal(t, StateIdle, c.State())
	require.False(t, c.IsConnected())

	require.NoError(t, c.SetParams(aaplParams()))
	require.Equal(t, 1, opener.count())

	c.SetEnabled(false)
	c.SetEnabled(true)
	require.Equal(t, 2, opener.count())
}

func TestClearedSymbolReopensOnReselect(t *testing.T) {
	c, opener, replayStore := newTestController(t)
	h1 := startConnected(t, c, opener, aaplParams())
	h1.first(bar(1000, 10, 11, 9, 10.5))

	require.NoError(t, c.SetParams(models.ReplaySessionParams{}))
	require.True(t, h1.Closed())
	require.False(t, h1.Terminated())
	require.Equal(t, StateIdle, c.State())

	require.NoError(t, c.SetParams(aaplParams()))
	require.Equal(t, 2, opener.count())
	require.Equal(t, StateOpening, c.State())
	require.Equal(t, 0, replayStore.Len())

	h2 := opener.last(t)
	h2.connect()
	h2.first(bar(2000, 11, 12, 10, 11.5))
	require.True(t, c.IsConnected())
	require.Equal(t, 1, replayStore.Len())
}

func TestDisableTearsDown(t *testing.T) {
	c, opener, _ := newTestController(t)
	h := startConnected(t, c, opener, aaplParams())

	c.SetEnabled(false)
	require.True(t, h.Closed())
	require.Equal(t, StateIdle, c.State())

	// Late events from the closed handle are ignored
	h.first(bar(1000, 10, 11, 9, 10.5))
	require.Equal(t, StateIdle, c.State())
}

func TestShutdownIgnoresFurtherInput(t *testing.T) {
	c, opener, _ := newTestController(t)
	h := startConnected(t, c, opener, aaplParams())

	c.Shutdown()
	require.True(t, h.Closed())
	require.True(t, h.Terminated())
	require.Equal(t, StateIdle, c.State())

	p2 := aaplParams()
	p2.Symbol = "NIFTY"
	require.NoError(t, c.SetParams(p2))
	c.Reconnect()
	require.Equal(t, 1, opener.count())
}

// ─── play / pause ─────────────────────────────────────────────────────────────

func TestPlayCommandIsDeduplicated(t *testing.T) {
	c, opener, _ := newTestController(t)
	h := startConnected(t, c, opener, aaplParams())

	c.SetPlaying(true)
	c.SetPlaying(true)
	require.Equal(t, []types.CommandKind{types.CommandPlay}, h.Sent())

	c.SetPlaying(false)
	c.SetPlaying(false)
	require.Equal(t, []types.CommandKind{types.CommandPlay, types.CommandPause}, h.Sent())
}

func TestConnectDoesNotAutoPlay(t *testing.T) {
	c, opener, _ := newTestController(t)
	h := startConnected(t, c, opener, aaplParams())
	require.Empty(t, h.Sent())
}

func TestPlayIntentEvaluatedOnConnect(t *testing.T) {
	c, opener, _ := newTestController(t)
	c.SetPlaying(true)
	require.NoError(t, c.SetParams(aaplParams()))
	c.SetEnabled(true)

	h := opener.last(t)
	require.Empty(t, h.Sent())

	h.connect()
	require.Equal(t, []types.CommandKind{types.CommandPlay}, h.Sent())
}

func TestNewHandleResetsCommandTracking(t *testing.T) {
	c, opener, _ := newTestController(t)
	c.SetPlaying(true)
	h1 := startConnected(t, c, opener, aaplParams())
	require.Equal(t, []types.CommandKind{types.CommandPlay}, h1.Sent())

	p2 := aaplParams()
	p2.Symbol = "NIFTY"
	require.NoError(t, c.SetParams(p2))
	h2 := opener.last(t)
	h2.connect()
	require.Equal(t, []types.CommandKind{types.CommandPlay}, h2.Sent())
	require.Equal(t, types.CommandPlay, c.Status().LastCommand)
}

// ─── events ───────────────────────────────────────────────────────────────────

func TestSessionGapAddsLabelledMarker(t *testing.T) {
	c, opener, replayStore := newTestController(t, WithGapLabeler(staticLabeler("Weekend")))
	h := startConnected(t, c, opener, aaplParams())

	to := time.Date(2015, 1, 12, 9, 15, 0, 0, time.UTC)
	h.emit(replay.Event{Kind: replay.EventSessionGap, Gap: &types.SessionGapMessage{To: to}})

	markers := replayStore.Markers()
	require.Len(t, markers, 1)
	require.Equal(t, to.Unix(), markers[0].Time)
	require.Equal(t, "Weekend", markers[0].Label)
}

func TestBackendErrorIsNonFatal(t *testing.T) {
	c, opener, _ := newTestController(t)
	h := startConnected(t, c, opener, aaplParams())

	h.emit(replay.Event{Kind: replay.EventError, Message: "no data for range"})
	require.True(t, c.IsConnected())
	require.Equal(t, "no data for range", c.Status().LastError)
}

func TestConnectionChangeListener(t *testing.T) {
	c, opener, _ := newTestController(t)
	var changes []bool
	c.OnConnectionChange(func(connected bool) {
		// Runs outside the lock, so reading state back is safe
		require.Equal(t, connected, c.IsConnected())
		changes = append(changes, connected)
	})

	h := startConnected(t, c, opener, aaplParams())
	h.fail(errors.New("eof"))
	require.Equal(t, []bool{true, false}, changes)
}

func TestBroadcastsSessionEvents(t *testing.T) {
	hub := &recordingBroadcaster{}
	c, opener, _ := newTestController(t, WithBroadcaster(hub))
	h := startConnected(t, c, opener, aaplParams())

	h.first(bar(1000, 10, 11, 9, 10.5))
	h.next(bar(1060, 10.5, 10.8, 10.2, 10.6))

	resets := hub.find(types.CandlesReset)
	require.Len(t, resets, 1)
	require.Equal(t, "AAPL", resets[0].(CandlesResetData).Symbol)
	updates := hub.find(types.CandleUpdate)
	require.Len(t, updates, 1)
	require.Equal(t, 10.6, updates[0].(CandleUpdateData).Candle.Close)

	statuses := hub.find(types.ConnectionStatus)
	require.Len(t, statuses, 1)
	require.Equal(t, "connected", statuses[0].(types.ConnectionStatusData).Status)
	require.NotEmpty(t, hub.find(types.SessionStatus))
}

// ─── end to end ───────────────────────────────────────────────────────────────

func TestMarketBuyAgainstLiveReplay(t *testing.T) {
	c, opener, replayStore := newTestController(t)
	engine := trading.NewOrderExecutionEngine()
	replayStore.Subscribe(engine)

	require.NoError(t, c.SetParams(models.ReplaySessionParams{
		Symbol: "AAPL", RangeStart: "2015-01-09T09:15", RangeEnd: "2015-01-14T15:30",
		SpeedMs: 6000, GapSpeedFactor: 100000,
	}))
	c.SetEnabled(true)
	h := opener.last(t)
	h.connect()

	h.first(bar(1000, 10, 11, 9, 10.5))
	require.Equal(t, 1, replayStore.Len())

	h.next(bar(1060, 10.5, 10.8, 10.2, 10.6))
	require.Equal(t, 2, replayStore.Len())
	latest, ok := replayStore.LatestCandle()
	require.True(t, ok)
	require.Equal(t, int64(1060), latest.Time)

	_, position, err := engine.PlaceOrder(trading.OrderRequest{
		Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 2,
	})
	require.NoError(t, err)
	require.NotNil(t, position)
	require.Equal(t, 10.6, position.EntryPrice)

	h.next(bar(1120, 10.6, 10.6, 10.3, 10.4))
	positions := engine.Positions()
	require.Len(t, positions, 1)
	require.Equal(t, 10.4, positions[0].CurrentPrice)
	require.Equal(t, "-0.4", positions[0].UnrealizedPnL().String())
}

func TestNewSessionDropsPreviousPrices(t *testing.T) {
	c, opener, replayStore := newTestController(t)
	engine := trading.NewOrderExecutionEngine()
	replayStore.Subscribe(engine)

	h1 := startConnected(t, c, opener, aaplParams())
	h1.first(bar(1000, 10, 11, 9, 10.5))
	require.Equal(t, 10.5, engine.CurrentPrice("AAPL"))

	later := aaplParams()
	later.RangeStart = "2015-01-12T09:15"
	require.NoError(t, c.SetParams(later))
	require.Equal(t, 0, replayStore.Len())
	require.Equal(t, 0.0, engine.CurrentPrice("AAPL"))

	market := trading.OrderRequest{Symbol: "AAPL", Side: models.OrderSideBuy, Type: models.OrderTypeMarket, Quantity: 1}
	_, _, err := engine.PlaceOrder(market)
	require.ErrorIs(t, err, trading.ErrValidation)
	require.Empty(t, engine.Positions())

	h2 := opener.last(t)
	h2.connect()
	h2.first(bar(5000, 20, 21, 19, 20.5))

	_, position, err := engine.PlaceOrder(market)
	require.NoError(t, err)
	require.Equal(t, 20.5, position.EntryPrice)
}

func TestSellStopLossAgainstLiveReplay(t *testing.T) {
	c, opener, replayStore := newTestController(t)
	engine := trading.NewOrderExecutionEngine()
	replayStore.Subscribe(engine)

	h := startConnected(t, c, opener, aaplParams())
	h.first(bar(1000, 10.5, 10.7, 10.5, 10.6))

	sl := 10.8
	_, position, err := engine.PlaceOrder(trading.OrderRequest{
		Symbol: "AAPL", Side: models.OrderSideSell, Type: models.OrderTypeMarket, Quantity: 1,
		StopLossPrice: &sl,
	})
	require.NoError(t, err)
	require.Equal(t, 10.6, position.EntryPrice)

	h.next(bar(1060, 10.6, 10.75, 10.6, 10.7))
	require.True(t, engine.Positions()[0].IsOpen())

	h.next(bar(1120, 10.7, 10.95, 10.7, 10.9))
	closed := engine.Positions()[0]
	require.False(t, closed.IsOpen())
	require.Equal(t, 10.9, *closed.ExitPrice)
	require.Equal(t, models.CloseReasonStopLoss, closed.CloseReason)
}
