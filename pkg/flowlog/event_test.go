package flowlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventUnwrapsNestedData(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "flat",
			raw:  `{"symbol":"AAPL","pattern":"Hammer","confidence":0.85,"source":"tickstockpl","tier":"daily"}`,
			want: Event{Symbol: "AAPL", Pattern: "Hammer", Confidence: 0.85, Source: "tickstockpl", Tier: "daily"},
		},
		{
			name: "single data block",
			raw:  `{"event_type":"pattern_detected","source":"fallback_detector","data":{"symbol":"MSFT","pattern":"Doji","confidence":0.6,"source":"fallback"}}`,
			want: Event{Symbol: "MSFT", Pattern: "Doji", Confidence: 0.6, Source: "fallback"},
		},
		{
			name: "double nested with pattern_name",
			raw:  `{"source":"outer","data":{"data":{"symbol":"NVDA","pattern_name":"ShootingStar","confidence":"0.7"}}}`,
			want: Event{Symbol: "NVDA", Pattern: "ShootingStar", Confidence: 0.7, Source: "outer"},
		},
		{
			name: "missing fields",
			raw:  `{"data":"not a map"}`,
			want: Event{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEvent([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEventRejectsInvalidJSON(t *testing.T) {
	_, err := ParseEvent([]byte("{"))
	require.Error(t, err)
}
