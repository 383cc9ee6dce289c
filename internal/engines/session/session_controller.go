package session

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"chronotick/internal/integrations/replay"
	"chronotick/internal/interfaces"
	"chronotick/internal/models"
	"chronotick/internal/types"
)

type State string

const (
	StateIdle      State = "idle"
	StateOpening   State = "opening"
	StateConnected State = "connected"
	StateClosing   State = "closing"
)

// StreamHandle is one live replay connection
type StreamHandle interface {
	ID() uint64
	Send(cmd types.CommandKind) bool
	Close()
	Terminate()
}

// StreamOpener opens replay connections. Implementations must deliver events
// asynchronously, never from inside Open.
type StreamOpener interface {
	Open(ctx context.Context, params models.ReplaySessionParams, handler replay.EventHandler) StreamHandle
}

type clientOpener struct {
	client *replay.Client
}

// NewClientOpener adapts a replay client to StreamOpener
func NewClientOpener(client *replay.Client) StreamOpener {
	return clientOpener{client: client}
}

func (o clientOpener) Open(ctx context.Context, params models.ReplaySessionParams, handler replay.EventHandler) StreamHandle {
	return o.client.Open(ctx, params, handler)
}

// ReplaySink receives the candle data of the active session
type ReplaySink interface {
	Reset()
	SetSymbol(symbol string)
	SetInitialCandles(candles []models.Candle)
	AddCandle(candle models.Candle) bool
	AddSessionMarker(marker models.SessionMarker)
}

// GapLabeler names a session gap for display
type GapLabeler interface {
	Label(gap *types.SessionGapMessage) string
}

// Status is a snapshot of the controller
type Status struct {
	State       State                      `json:"state"`
	Connection  models.ConnectionState     `json:"connection"`
	Connected   bool                       `json:"connected"`
	Enabled     bool                       `json:"enabled"`
	Playing     bool                       `json:"playing"`
	Params      models.ReplaySessionParams `json:"params"`
	HandleID    uint64                     `json:"handleId,omitempty"`
	LastCommand types.CommandKind          `json:"lastCommand,omitempty"`
	LastError   string                     `json:"lastError,omitempty"`
}

// CandlesResetData is pushed when a handle delivers its first bar
type CandlesResetData struct {
	Symbol  string          `json:"symbol"`
	Candles []models.Candle `json:"candles"`
}

// CandleUpdateData is pushed for every appended bar
type CandleUpdateData struct {
	Symbol string        `json:"symbol"`
	Candle models.Candle `json:"candle"`
}

// ReplayErrorData is pushed when the backend reports an error
type ReplayErrorData struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

// Controller owns the replay connection lifecycle. It is the only caller of
// StreamOpener.Open and StreamHandle.Close. Every entry point runs under one
// mutex so user commands and stream events are handled one at a time.
type Controller struct {
	mu          sync.Mutex
	opener      StreamOpener
	sink        ReplaySink
	broadcaster interfaces.Broadcaster
	labeler     GapLabeler
	ctx         context.Context
	cancel      context.CancelFunc

	params  models.ReplaySessionParams
	enabled bool
	playing bool

	state      State
	handle     StreamHandle
	lastOpened *models.ReplaySessionParams
	lastSent   types.CommandKind // Per handle
	lastError  string
	shutdown   bool

	listeners []func(connected bool)
	pending   []func()
}

type ControllerOption func(*Controller)

// WithBroadcaster pushes session events to dashboard clients
func WithBroadcaster(b interfaces.Broadcaster) ControllerOption {
	return func(c *Controller) {
		c.broadcaster = b
	}
}

// WithGapLabeler labels session markers, e.g. from a trading calendar
func WithGapLabeler(l GapLabeler) ControllerOption {
	return func(c *Controller) {
		c.labeler = l
	}
}

func NewController(opener StreamOpener, sink ReplaySink, opts ...ControllerOption) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opener: opener,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
		state:  StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetParams selects the session to replay. An empty symbol parks the
// controller in idle.
func (c *Controller) SetParams(params models.ReplaySessionParams) error {
	if strings.TrimSpace(params.Symbol) != "" {
		if err := params.Validate(); err != nil {
			return fmt.Errorf("invalid session params: %w", err)
		}
	}

	c.mu.Lock()
	defer c.unlock()

	c.params = params
	c.reconcileLocked()
	return nil
}

// SetEnabled gates the controller. Disabling tears the connection down;
// re-enabling opens a fresh one.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.unlock()

	if c.enabled == enabled {
		return
	}
	c.enabled = enabled
	c.reconcileLocked()
}

// SetPlaying records the play/pause intent and sends it when connected
func (c *Controller) SetPlaying(playing bool) {
	c.mu.Lock()
	defer c.unlock()

	c.playing = playing
	c.syncCommandLocked()
}

// Reconnect opens a fresh connection for the current params
func (c *Controller) Reconnect() {
	c.mu.Lock()
	defer c.unlock()

	log.Printf("[session] Reconnect requested for %s", c.params.Symbol)
	c.lastOpened = nil
	c.reconcileLocked()
}

// CloseSocket force-stops the current connection. It is not reopened until
// the params change, Reconnect is called or the controller is re-enabled.
func (c *Controller) CloseSocket() {
	c.mu.Lock()
	defer c.unlock()

	if c.handle == nil {
		return
	}
	log.Printf("[session] Closing socket for %s", c.params.Symbol)
	c.teardownLocked()
}

// Shutdown terminates the current handle on process exit without waiting
// for the close flush. The controller ignores all input afterwards.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.unlock()

	if c.shutdown {
		return
	}
	c.shutdown = true
	c.releaseLocked(StreamHandle.Terminate)
	c.cancel()
	log.Printf("[session] Controller shut down")
}

func (c *Controller) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// ConnectionState maps the controller state to a connection indicator
func (c *Controller) ConnectionState() models.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return connectionState(c.state)
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// OnConnectionChange registers fn to be called whenever the connected flag
// flips. fn runs outside the controller lock.
func (c *Controller) OnConnectionChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Controller) reconcileLocked() {
	if c.shutdown {
		return
	}

	if !c.enabled || strings.TrimSpace(c.params.Symbol) == "" {
		// Parked: selecting any session again opens it fresh
		c.lastOpened = nil
		c.teardownLocked()
		return
	}

	if c.lastOpened != nil && *c.lastOpened == c.params {
		// Same session: either still live, or stopped and waiting for an
		// explicit reconnect
		c.syncCommandLocked()
		return
	}

	c.openLocked()
}

func (c *Controller) openLocked() {
	c.teardownLocked()

	params := c.params
	c.sink.Reset()
	c.sink.SetSymbol(params.Symbol)
	c.lastOpened = &params
	c.lastSent = types.CommandPause // The backend starts paused
	c.lastError = ""

	c.setStateLocked(StateOpening)
	c.handle = c.opener.Open(c.ctx, params, c.handleEvent)
	log.Printf("[session] Opened handle %d for %s", c.handle.ID(), params)
}

func (c *Controller) teardownLocked() {
	c.releaseLocked(StreamHandle.Close)
}

// releaseLocked drops the current handle through closeFn and settles idle
func (c *Controller) releaseLocked(closeFn func(StreamHandle)) {
	if c.handle == nil {
		if c.state != StateIdle {
			c.setStateLocked(StateIdle)
		}
		return
	}

	h := c.handle
	c.setStateLocked(StateClosing)
	c.handle = nil
	closeFn(h)
	c.setStateLocked(StateIdle)
	log.Printf("[session] Tore down handle %d", h.ID())
}

// handleEvent is the stream event callback. Events from any handle other
// than the current one are dropped.
func (c *Controller) handleEvent(evt replay.Event) {
	c.mu.Lock()
	defer c.unlock()

	if c.handle == nil || evt.HandleID != c.handle.ID() {
		return
	}
	symbol := c.params.Symbol

	switch evt.Kind {
	case replay.EventStatus:
		c.handleStatusLocked(evt)

	case replay.EventReplaceCandles:
		c.sink.SetInitialCandles(evt.Candles)
		c.broadcastLocked(types.CandlesReset, CandlesResetData{Symbol: symbol, Candles: evt.Candles})

	case replay.EventAppendCandle:
		if c.sink.AddCandle(evt.Candle) {
			c.broadcastLocked(types.CandleUpdate, CandleUpdateData{Symbol: symbol, Candle: evt.Candle})
		}

	case replay.EventSessionGap:
		marker := evt.Gap.Marker()
		if c.labeler != nil {
			if label := c.labeler.Label(evt.Gap); label != "" {
				marker.Label = label
			}
		}
		c.sink.AddSessionMarker(marker)
		c.broadcastLocked(types.SessionGap, marker)

	case replay.EventError:
		log.Printf("[session] Replay backend error for %s: %s", symbol, evt.Message)
		c.lastError = evt.Message
		c.broadcastLocked(types.ReplayError, ReplayErrorData{Symbol: symbol, Message: evt.Message})
	}
}

func (c *Controller) handleStatusLocked(evt replay.Event) {
	switch evt.Status {
	case models.ConnectionConnected:
		if c.state != StateOpening {
			return
		}
		c.setStateLocked(StateConnected)
		c.syncCommandLocked()

	case models.ConnectionDisconnected:
		// No retry: a new handle comes only from a param change, Reconnect
		// or re-enabling
		if evt.Err != nil {
			c.lastError = evt.Err.Error()
			log.Printf("[session] Handle %d disconnected: %v", evt.HandleID, evt.Err)
		}
		h := c.handle
		c.handle = nil
		h.Close()
		c.setStateLocked(StateIdle)
	}
}

// syncCommandLocked sends the desired play/pause command when it differs
// from the last one sent on the current handle
func (c *Controller) syncCommandLocked() {
	if c.state != StateConnected || c.handle == nil {
		return
	}

	desired := types.CommandPause
	if c.playing {
		desired = types.CommandPlay
	}
	if desired == c.lastSent {
		return
	}
	if c.handle.Send(desired) {
		c.lastSent = desired
	}
}

func (c *Controller) setStateLocked(state State) {
	prev := c.state
	if prev == state {
		return
	}
	c.state = state

	if (prev == StateConnected) != (state == StateConnected) {
		connected := state == StateConnected
		for _, fn := range c.listeners {
			fn := fn
			c.pending = append(c.pending, func() { fn(connected) })
		}
		c.broadcastLocked(types.ConnectionStatus, types.ConnectionStatusData{
			Status:    string(connectionState(state)),
			Message:   fmt.Sprintf("replay %s", c.params.Symbol),
			Timestamp: time.Now().Unix(),
		})
	}
	c.broadcastLocked(types.SessionStatus, c.statusLocked())
}

func (c *Controller) statusLocked() Status {
	status := Status{
		State:       c.state,
		Connection:  connectionState(c.state),
		Connected:   c.state == StateConnected,
		Enabled:     c.enabled,
		Playing:     c.playing,
		Params:      c.params,
		LastCommand: c.lastSent,
		LastError:   c.lastError,
	}
	if c.handle != nil {
		status.HandleID = c.handle.ID()
	}
	return status
}

// broadcastLocked queues a push message for delivery after the lock is
// released
func (c *Controller) broadcastLocked(msgType types.MessageType, data interface{}) {
	if c.broadcaster == nil {
		return
	}
	b := c.broadcaster
	c.pending = append(c.pending, func() { b.BroadcastMessage(msgType, data) })
}

// unlock releases the controller lock and runs the queued notifications
func (c *Controller) unlock() {
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

func connectionState(state State) models.ConnectionState {
	switch state {
	case StateOpening:
		return models.ConnectionConnecting
	case StateConnected:
		return models.ConnectionConnected
	default:
		return models.ConnectionDisconnected
	}
}
