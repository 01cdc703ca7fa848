package broadcast

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	TypeViolationAlert = "violation_alert"
	TypeVehicleAlert   = "vehicle_alert"
	TypeReady          = "ready"
)

// Event is the envelope pushed to every observer.
type Event struct {
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

func NewEvent(eventType string, at time.Time, data map[string]any) Event {
	return Event{Type: eventType, Timestamp: at.UTC(), Data: data}
}

// Frame is an event serialized once and shared by every observer. The JSON
// form is built eagerly; the protobuf form on first use.
type Frame struct {
	Event Event

	json []byte

	protoOnce sync.Once
	proto     []byte
	protoErr  error
}

func NewFrame(evt Event) (*Frame, error) {
	b, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", evt.Type, err)
	}
	return &Frame{Event: evt, json: b}, nil
}

func (f *Frame) JSON() []byte { return f.json }

// Proto returns the event as a binary google.protobuf.Struct with the same
// fields as the JSON form.
func (f *Frame) Proto() ([]byte, error) {
	f.protoOnce.Do(func() {
		var s structpb.Struct
		if err := protojson.Unmarshal(f.json, &s); err != nil {
			f.protoErr = fmt.Errorf("struct from json: %w", err)
			return
		}
		f.proto, f.protoErr = proto.Marshal(&s)
	})
	return f.proto, f.protoErr
}
