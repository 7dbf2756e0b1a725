package model

import (
	"encoding/json"
	"fmt"
)

// EventValueKind tags the variant held by an EventValue.
type EventValueKind string

const (
	KindString EventValueKind = "string"
	KindInt    EventValueKind = "integer"
	KindFloat  EventValueKind = "float"
	KindBool   EventValueKind = "boolean"
	KindArray  EventValueKind = "array"
	KindMap    EventValueKind = "map"
	KindNull   EventValueKind = "null"
)

// EventValue is a tagged variant for decoded event-attribute values:
// string | integer | float | boolean | array-of-EventValue |
// mapping-of-name-to-EventValue | null. Using a single struct with a
// discriminant (rather than a type hierarchy) keeps decoding and
// (de)serialization uniform across EVM ABI types and Cosmos protobuf/JSON
// attribute values, per spec §9 ("prefer tagged variants... over a deep
// inheritance hierarchy").
type EventValue struct {
	Kind EventValueKind `json:"kind"`

	Str   string                 `json:"str,omitempty"`
	Int   int64                  `json:"int,omitempty"`
	Float float64                `json:"float,omitempty"`
	Bool  bool                   `json:"bool,omitempty"`
	Arr   []EventValue           `json:"arr,omitempty"`
	Map   map[string]EventValue  `json:"map,omitempty"`
}

func StringValue(s string) EventValue              { return EventValue{Kind: KindString, Str: s} }
func IntValue(i int64) EventValue                   { return EventValue{Kind: KindInt, Int: i} }
func FloatValue(f float64) EventValue                { return EventValue{Kind: KindFloat, Float: f} }
func BoolValue(b bool) EventValue                    { return EventValue{Kind: KindBool, Bool: b} }
func ArrayValue(v []EventValue) EventValue           { return EventValue{Kind: KindArray, Arr: v} }
func MapValue(v map[string]EventValue) EventValue    { return EventValue{Kind: KindMap, Map: v} }
func NullValue() EventValue                          { return EventValue{Kind: KindNull} }

// Equal reports deep equality between two EventValues, used by the
// round-trip testable property (spec §8 property 8).
func (v EventValue) Equal(o EventValue) bool {
	a, _ := json.Marshal(v)
	b, _ := json.Marshal(o)
	return string(a) == string(b)
}

func (v EventValue) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindInt:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindNull:
		return "null"
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
