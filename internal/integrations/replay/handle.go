package replay

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"chronotick/internal/models"
	"chronotick/internal/types"

	"github.com/gorilla/websocket"
)

// EventKind identifies a domain event produced by a stream handle
type EventKind string

const (
	EventStatus         EventKind = "status"
	EventReplaceCandles EventKind = "replace_candles"
	EventAppendCandle   EventKind = "append_candle"
	EventSessionGap     EventKind = "session_gap"
	EventError          EventKind = "error"
)

// Event is one domain event. HandleID identifies the originating handle so
// consumers can drop events from superseded connections.
type Event struct {
	HandleID uint64
	Kind     EventKind
	Status   models.ConnectionState   // EventStatus
	Err      error                    // EventStatus, set on transport failure
	Candles  []models.Candle          // EventReplaceCandles
	Candle   models.Candle            // EventAppendCandle
	Gap      *types.SessionGapMessage // EventSessionGap
	Message  string                   // EventError
}

// EventHandler receives events of one handle in transport order
type EventHandler func(Event)

var ErrDisconnected = errors.New("replay stream disconnected")

// Handle is one connection attempt to the replay backend
type Handle struct {
	id     uint64
	params models.ReplaySessionParams
	client *Client

	mu         sync.Mutex
	state      models.ConnectionState
	conn       *websocket.Conn
	handler    EventHandler
	started    bool // First tick already delivered as a replace
	closed     bool
	cancel     context.CancelFunc
	flushTimer *time.Timer
	done       chan struct{}
}

// ID returns the handle identity token
func (h *Handle) ID() uint64 {
	return h.id
}

// Params returns the session params the handle was opened with
func (h *Handle) Params() models.ReplaySessionParams {
	return h.params
}

// State returns the transport state of the handle
func (h *Handle) State() models.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Done is closed once the handle's connection goroutine has exited
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Send writes a control command. Dropped unless the handle is connected.
func (h *Handle) Send(cmd types.CommandKind) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.state != models.ConnectionConnected || h.conn == nil {
		log.Printf("[replay] Dropping %q command on handle %d: not connected", cmd, h.id)
		return false
	}
	return h.writeCommandLocked(cmd)
}

// Close detaches the handler, sends a best-effort close command and closes
// the transport after the flush delay. Safe to call more than once.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.handler = nil
	h.cancel()

	conn := h.conn
	if conn != nil && h.state == models.ConnectionConnected {
		h.writeCommandLocked(types.CommandClose)
	}
	h.state = models.ConnectionDisconnected

	if conn != nil {
		h.flushTimer = time.AfterFunc(h.client.flushDelay, func() {
			closeConn(conn)
		})
	}
	log.Printf("[replay] Closed handle %d (%s)", h.id, h.params.Symbol)
}

// Terminate closes the handle without waiting for the flush delay
func (h *Handle) Terminate() {
	h.Close()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.flushTimer != nil && h.flushTimer.Stop() {
		closeConn(h.conn)
	}
	h.flushTimer = nil
}

func (h *Handle) run(ctx context.Context) {
	defer close(h.done)

	streamURL, err := h.client.ReplayURL(h.params)
	if err != nil {
		h.disconnected(err)
		return
	}

	log.Printf("[replay] Opening handle %d: %s", h.id, streamURL)
	conn, _, err := h.client.dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		log.Printf("[replay] Handle %d failed to connect: %v", h.id, err)
		h.disconnected(err)
		return
	}

	h.mu.Lock()
	if h.closed {
		// Superseded while dialing
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.conn = conn
	h.state = models.ConnectionConnected
	handler := h.handler
	h.mu.Unlock()

	log.Printf("[replay] Handle %d connected", h.id)
	h.emit(handler, Event{Kind: EventStatus, Status: models.ConnectionConnected})

	h.readLoop(conn)
}

func (h *Handle) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[replay] Handle %d read error: %v", h.id, err)
			}
			h.disconnected(err)
			return
		}
		h.dispatch(message)
	}
}

// dispatch decodes one frame and delivers the matching event. Unknown and
// malformed frames are dropped here.
func (h *Handle) dispatch(message []byte) {
	msg, err := types.DecodeInbound(message)
	if err != nil {
		log.Printf("[replay] Ignoring frame on handle %d: %v", h.id, err)
		return
	}

	h.mu.Lock()
	handler := h.handler
	if handler == nil {
		h.mu.Unlock()
		return
	}

	var evt Event
	switch m := msg.(type) {
	case *types.TickMessage:
		if !h.started {
			h.started = true
			evt = Event{Kind: EventReplaceCandles, Candles: []models.Candle{m.Candle}}
		} else {
			evt = Event{Kind: EventAppendCandle, Candle: m.Candle}
		}
	case *types.SessionGapMessage:
		evt = Event{Kind: EventSessionGap, Gap: m}
	case *types.ErrorMessage:
		evt = Event{Kind: EventError, Message: m.Message}
	default:
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()

	h.emit(handler, evt)
}

func (h *Handle) disconnected(cause error) {
	h.mu.Lock()
	h.state = models.ConnectionDisconnected
	handler := h.handler
	h.handler = nil
	h.mu.Unlock()

	if cause == nil {
		cause = ErrDisconnected
	}
	h.emit(handler, Event{Kind: EventStatus, Status: models.ConnectionDisconnected, Err: cause})
}

func (h *Handle) emit(handler EventHandler, evt Event) {
	if handler == nil {
		return
	}
	evt.HandleID = h.id
	handler(evt)
}

func (h *Handle) writeCommandLocked(cmd types.CommandKind) bool {
	h.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := h.conn.WriteJSON(types.Command{Command: cmd}); err != nil {
		log.Printf("[replay] Failed to send %q on handle %d: %v", cmd, h.id, err)
		return false
	}
	log.Printf("[replay] Sent %q on handle %d", cmd, h.id)
	return true
}

func closeConn(conn *websocket.Conn) {
	if conn == nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	conn.Close()
}
