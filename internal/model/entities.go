package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Entity is implemented by every synchronized configuration type.
type Entity interface {
	EntityID() string
}

// Collection names used on the wire.
const (
	CollectionKeys    = "keys"
	CollectionSinks   = "destinations"
	CollectionSources = "sources"
)

// Key is a write key. Only Comment and Origins change after creation.
type Key struct {
	UID        string   `json:"uid"`
	ServerAuth string   `json:"serverAuth"`
	JSAuth     string   `json:"jsAuth"`
	Comment    string   `json:"comment,omitempty"`
	Origins    []string `json:"origins"`
}

// EntityID implements Entity.
func (k Key) EntityID() string { return k.UID }

// MutableKeyFields lists the Key fields a patch may touch.
var MutableKeyFields = map[string]bool{
	"comment": true,
	"origins": true,
}

// Sink is a destination that receives events.
//
// Type-specific configuration lives in Config and is flattened into the
// JSON object next to the well-known fields.
type Sink struct {
	UID      string
	Type     string
	OnlyKeys []string
	Sources  []string
	Config   map[string]any
}

// EntityID implements Entity.
func (s Sink) EntityID() string { return s.UID }

// Well-known Sink JSON fields.
const (
	SinkFieldUID      = "uid"
	SinkFieldType     = "type"
	SinkFieldOnlyKeys = "onlyKeys"
	SinkFieldSources  = "sources"
)

// MarshalJSON flattens Config into the top-level object.
// Well-known fields win over Config entries with the same name.
func (s Sink) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(s.Config)+4)
	for k, v := range s.Config {
		m[k] = v
	}
	m[SinkFieldUID] = s.UID
	m[SinkFieldType] = s.Type
	m[SinkFieldOnlyKeys] = nonNil(s.OnlyKeys)
	m[SinkFieldSources] = nonNil(s.Sources)
	return json.Marshal(m)
}

// UnmarshalJSON splits the object into well-known fields and Config.
func (s *Sink) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal sink: %w", err)
	}

	out := Sink{}
	for name, value := range raw {
		var err error
		switch name {
		case SinkFieldUID:
			err = json.Unmarshal(value, &out.UID)
		case SinkFieldType:
			err = json.Unmarshal(value, &out.Type)
		case SinkFieldOnlyKeys:
			err = json.Unmarshal(value, &out.OnlyKeys)
		case SinkFieldSources:
			err = json.Unmarshal(value, &out.Sources)
		default:
			var v any
			dec := json.NewDecoder(bytes.NewReader(value))
			dec.UseNumber()
			if err = dec.Decode(&v); err == nil {
				if out.Config == nil {
					out.Config = make(map[string]any)
				}
				out.Config[name] = v
			}
		}
		if err != nil {
			return fmt.Errorf("unmarshal sink field %q: %w", name, err)
		}
	}
	out.OnlyKeys = nonNil(out.OnlyKeys)
	out.Sources = nonNil(out.Sources)
	*s = out
	return nil
}

// Source is a configured event source.
type Source struct {
	ID           string         `json:"id"`
	Destinations []string       `json:"destinations"`
	Schedule     string         `json:"schedule,omitempty"`
	Config       map[string]any `json:"config,omitempty"`
}

// EntityID implements Entity.
func (s Source) EntityID() string { return s.ID }

// Well-known Source JSON fields.
const (
	SourceFieldID           = "id"
	SourceFieldDestinations = "destinations"
)

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
