package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chronotick/internal/models"
)

// ReplayEvent is the discriminant of an inbound replay message
type ReplayEvent string

const (
	ReplayEventTick       ReplayEvent = "tick"
	ReplayEventSessionGap ReplayEvent = "session_gap"
	ReplayEventError      ReplayEvent = "error"
)

// CommandKind is an outbound control command understood by the replay backend
type CommandKind string

const (
	CommandPlay  CommandKind = "play"
	CommandPause CommandKind = "pause"
	CommandClose CommandKind = "close"
)

// Command is the outbound wire shape
type Command struct {
	Command CommandKind `json:"command"`
}

var (
	ErrUnknownEvent     = errors.New("unknown replay event")
	ErrMalformedMessage = errors.New("malformed replay message")
)

// InboundMessage is one decoded replay message: *TickMessage,
// *SessionGapMessage or *ErrorMessage.
type InboundMessage interface {
	Event() ReplayEvent
}

// TickMessage carries a fully formed bar for the current simulated instant
type TickMessage struct {
	Timestamp   time.Time
	Candle      models.Candle
	IsSynthetic bool
	Source      string
}

func (*TickMessage) Event() ReplayEvent { return ReplayEventTick }

// SessionGapMessage marks a calendar discontinuity
type SessionGapMessage struct {
	From       time.Time
	To         time.Time
	GapSeconds float64
	Reason     string
}

func (*SessionGapMessage) Event() ReplayEvent { return ReplayEventSessionGap }

// Marker converts the gap into a session marker placed at the gap end
func (m *SessionGapMessage) Marker() models.SessionMarker {
	marker := models.SessionMarker{
		Time:       m.To.Unix(),
		Kind:       models.MarkerKindSessionGap,
		GapSeconds: m.GapSeconds,
		Reason:     m.Reason,
		Label:      "Session gap",
	}
	if !m.From.IsZero() {
		marker.From = m.From.Unix()
	}
	return marker
}

// ErrorMessage is a non-fatal error reported by the backend
type ErrorMessage struct {
	Message string
}

func (*ErrorMessage) Event() ReplayEvent { return ReplayEventError }

type realCandle struct {
	Open   *float64 `json:"open"`
	High   *float64 `json:"high"`
	Low    *float64 `json:"low"`
	Close  *float64 `json:"close"`
	Volume *float64 `json:"volume"`
}

type rawInbound struct {
	Event       ReplayEvent `json:"event"`
	Timestamp   string      `json:"timestamp"`
	Price       *float64    `json:"price"`
	IsSynthetic bool        `json:"is_synthetic"`
	Source      string      `json:"source"`
	RealCandle  *realCandle `json:"real_candle"`
	From        string      `json:"from"`
	To          string      `json:"to"`
	GapSeconds  float64     `json:"gap_seconds"`
	Reason      string      `json:"reason"`
	Message     string      `json:"message"`
}

// DecodeInbound parses one replay frame. Unknown events return
// ErrUnknownEvent, anything unusable returns ErrMalformedMessage.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	switch raw.Event {
	case ReplayEventTick:
		return decodeTick(&raw)
	case ReplayEventSessionGap:
		return decodeSessionGap(&raw)
	case ReplayEventError:
		return &ErrorMessage{Message: raw.Message}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, raw.Event)
	}
}

func decodeTick(raw *rawInbound) (*TickMessage, error) {
	// Interpolated ticks carry only a price, there is no bar to append
	if raw.RealCandle == nil || raw.Timestamp == "" {
		return nil, fmt.Errorf("%w: tick without real_candle or timestamp", ErrMalformedMessage)
	}

	rc := raw.RealCandle
	if rc.Open == nil || rc.High == nil || rc.Low == nil || rc.Close == nil {
		return nil, fmt.Errorf("%w: incomplete real_candle", ErrMalformedMessage)
	}

	ts, err := ParseTimestamp(raw.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	candle := models.Candle{
		Time:  ts.Unix(),
		Open:  *rc.Open,
		High:  *rc.High,
		Low:   *rc.Low,
		Close: *rc.Close,
	}
	if rc.Volume != nil {
		candle.Volume = *rc.Volume
	}
	if err := models.ValidateCandle(candle); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	return &TickMessage{
		Timestamp:   ts,
		Candle:      candle,
		IsSynthetic: raw.IsSynthetic,
		Source:      raw.Source,
	}, nil
}

func decodeSessionGap(raw *rawInbound) (*SessionGapMessage, error) {
	if raw.To == "" {
		return nil, fmt.Errorf("%w: session_gap without to", ErrMalformedMessage)
	}

	to, err := ParseTimestamp(raw.To)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	msg := &SessionGapMessage{
		To:         to,
		GapSeconds: raw.GapSeconds,
		Reason:     raw.Reason,
	}
	if raw.From != "" {
		if from, err := ParseTimestamp(raw.From); err == nil {
			msg.From = from
		}
	}
	return msg, nil
}

var timestampLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses the backend's ISO-8601-like timestamps. Values
// without a zone are UTC.
func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)

	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
