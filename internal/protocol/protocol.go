package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/loadtest-dash/internal/model"
)

// Errors
var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrMissingType    = errors.New("envelope missing type")
)

// Bare control strings.
const (
	Ping              = "ping"
	Pong              = "pong"
	TimeSeriesRequest = "get_time_series"
)

// Kind classifies an inbound envelope by its type string.
type Kind int

const (
	KindUnknown Kind = iota
	KindTestUpdate
	KindTimeSeriesPoint
	KindTimeSeriesHistory
	KindMetricsUpdate
)

// Wire type strings for the known kinds.
const (
	TypeTestUpdate        = "test_update"
	TypeTimeSeries        = "time_series"
	TypeTimeSeriesHistory = "time_series_history"
	TypeMetricsUpdate     = "metrics_update"
)

var kindByType = map[string]Kind{
	TypeTestUpdate:        KindTestUpdate,
	TypeTimeSeries:        KindTimeSeriesPoint,
	TypeTimeSeriesHistory: KindTimeSeriesHistory,
	TypeMetricsUpdate:     KindMetricsUpdate,
}

// KindOf maps a wire type string to its Kind.
func KindOf(typ string) Kind {
	if k, ok := kindByType[typ]; ok {
		return k
	}
	return KindUnknown
}

// String returns the wire type string for known kinds.
func (k Kind) String() string {
	switch k {
	case KindTestUpdate:
		return TypeTestUpdate
	case KindTimeSeriesPoint:
		return TypeTimeSeries
	case KindTimeSeriesHistory:
		return TypeTimeSeriesHistory
	case KindMetricsUpdate:
		return TypeMetricsUpdate
	default:
		return "unknown"
	}
}

// Control identifies a bare control frame.
type Control int

const (
	ControlNone Control = iota
	ControlPing
	ControlPong
)

// Message is a decoded envelope.
type Message struct {
	Kind Kind
	Type string          // original type string, kept for unknown kinds
	Data json.RawMessage // payload, nil when absent
}

// Frame is the result of decoding one inbound text frame.
// Exactly one of Control or Message is meaningful.
type Frame struct {
	Control Control
	Message Message
}

// IsControl returns true for ping/pong frames.
func (f Frame) IsControl() bool {
	return f.Control != ControlNone
}

// envelope is the wire shape of a JSON frame.
type envelope struct {
	Type *string         `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Decode parses one inbound text frame.
func Decode(raw []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(raw)

	switch string(trimmed) {
	case Ping:
		return Frame{Control: ControlPing}, nil
	case Pong:
		return Frame{Control: ControlPong}, nil
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == nil || *env.Type == "" {
		return Frame{}, ErrMissingType
	}

	data := env.Data
	if bytes.Equal(data, []byte("null")) {
		data = nil
	}

	return Frame{
		Message: Message{
			Kind: KindOf(*env.Type),
			Type: *env.Type,
			Data: data,
		},
	}, nil
}

// Encode serializes an arbitrary outbound payload.
// Strings and byte slices are sent verbatim; everything else is JSON encoded.
func Encode(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case string:
		return []byte(p), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}

// EncodeEnvelope wraps data in a {"type","data"} envelope.
func EncodeEnvelope(typ string, data any) ([]byte, error) {
	if typ == "" {
		return nil, ErrMissingType
	}

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("encode %s data: %w", typ, err)
		}
		raw = b
	}

	out, err := json.Marshal(envelope{Type: &typ, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", typ, err)
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Typed accessors
// -----------------------------------------------------------------------------

// TestUpdate decodes the payload of a test_update message.
func (m Message) TestUpdate() (model.TestUpdate, error) {
	var u model.TestUpdate
	err := m.decode(&u)
	return u, err
}

// TimeSeriesPoint decodes the payload of a time_series message.
func (m Message) TimeSeriesPoint() (model.TimeSeriesPoint, error) {
	var p model.TimeSeriesPoint
	err := m.decode(&p)
	return p, err
}

// TimeSeriesHistory decodes the payload of a time_series_history message.
func (m Message) TimeSeriesHistory() ([]model.TimeSeriesPoint, error) {
	var pts []model.TimeSeriesPoint
	err := m.decode(&pts)
	return pts, err
}

// Metrics decodes the payload of a metrics_update message.
func (m Message) Metrics() (model.TestMetrics, error) {
	var tm model.TestMetrics
	err := m.decode(&tm)
	return tm, err
}

func (m Message) decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("%s: empty payload", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
