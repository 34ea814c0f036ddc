package flowlog

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Event is the flat descriptor a flow is tagged with.
type Event struct {
	Symbol     string
	Pattern    string
	Confidence float64
	Source     string
	Tier       string
}

// EventFromMap normalizes a pattern payload that may wrap its fields in
// data or data.data. Deeper levels override shallower ones; missing fields
// stay empty.
func EventFromMap(m map[string]interface{}) Event {
	var ev Event
	level := m
	for depth := 0; depth < 3 && level != nil; depth++ {
		ev.merge(level)
		next, _ := level["data"].(map[string]interface{})
		level = next
	}
	return ev
}

// ParseEvent decodes a JSON payload and normalizes it with EventFromMap.
func ParseEvent(b []byte) (Event, error) {
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return EventFromMap(m), nil
}

func (e *Event) merge(m map[string]interface{}) {
	if s := stringField(m, "symbol"); s != "" {
		e.Symbol = s
	}
	for _, key := range []string{"pattern", "pattern_name", "pattern_type"} {
		if s := stringField(m, key); s != "" {
			e.Pattern = s
			break
		}
	}
	if c, ok := floatField(m, "confidence"); ok {
		e.Confidence = c
	}
	if s := stringField(m, "source"); s != "" {
		e.Source = s
	}
	if s := stringField(m, "tier"); s != "" {
		e.Tier = s
	}
}

func stringField(m map[string]interface{}, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func floatField(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
