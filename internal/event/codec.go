package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// SchemaVersion is the wire version written by Encode.
const SchemaVersion = 1

var (
	ErrUnknownKind        = errors.New("unknown event kind")
	ErrUnsupportedVersion = errors.New("unsupported envelope schema version")
	ErrDuplicateKind      = errors.New("event kind already registered")
)

// DecodeFunc turns the raw data of an envelope into a typed payload.
type DecodeFunc func(data json.RawMessage) (Payload, error)

// envelope is the wire representation of an Event.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	AggregateID   string          `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	TenantID      string          `json:"tenant_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Data          json.RawMessage `json:"data"`
}

// Codec encodes events into versioned JSON envelopes and decodes them back
// using a static kind -> decoder table.
type Codec struct {
	mu       sync.RWMutex
	decoders map[string]DecodeFunc
}

func NewCodec() *Codec {
	return &Codec{decoders: make(map[string]DecodeFunc)}
}

// Register binds a kind to its decoder.
func (c *Codec) Register(kind string, decode DecodeFunc) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.decoders[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKind, kind)
	}
	c.decoders[kind] = decode
	return nil
}

// DecodeAs is a helper for building a DecodeFunc for a value payload type.
func DecodeAs[T Payload]() DecodeFunc {
	return func(data json.RawMessage) (Payload, error) {
		var p T
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Encode returns the wire form of e.
func (c *Codec) Encode(e Event) ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("encode event %s: nil payload", e.ID)
	}
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", e.ID, err)
	}
	return json.Marshal(envelope{
		SchemaVersion: SchemaVersion,
		ID:            e.ID,
		Kind:          e.Kind,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		TenantID:      e.TenantID,
		OccurredAt:    e.OccurredAt,
		Data:          data,
	})
}

// Decode parses a wire envelope.
func (c *Codec) Decode(raw []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.SchemaVersion != SchemaVersion {
		return Event{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, env.SchemaVersion)
	}

	c.mu.RLock()
	decode, ok := c.decoders[env.Kind]
	c.mu.RUnlock()
	if !ok {
		return Event{}, fmt.Errorf("%w: %s", ErrUnknownKind, env.Kind)
	}

	payload, err := decode(env.Data)
	if err != nil {
		return Event{}, fmt.Errorf("decode %s payload: %w", env.Kind, err)
	}

	return Event{
		ID:            env.ID,
		Kind:          env.Kind,
		AggregateID:   env.AggregateID,
		AggregateType: env.AggregateType,
		TenantID:      env.TenantID,
		Payload:       payload,
		OccurredAt:    env.OccurredAt,
	}, nil
}
