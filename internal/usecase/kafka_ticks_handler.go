package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	domrepo "TickStockApp/internal/domain/repository"
	pkgkafka "TickStockApp/pkg/kafka"
	"TickStockApp/pkg/util"
)

// TickSink accepts raw market ticks.
type TickSink interface {
	AddMarketTick(symbol string, price float64, volume int64, ts time.Time)
}

// KafkaTicksHandler feeds ticks from the market data topic into a TickSink.
type KafkaTicksHandler struct {
	topic   string
	sink    TickSink
	metrics domrepo.Metrics
}

func NewKafkaTicksHandler(topic string, sink TickSink, metrics domrepo.Metrics) *KafkaTicksHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &KafkaTicksHandler{topic: topic, sink: sink, metrics: metrics}
}

func (h *KafkaTicksHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, price, volume, t}
// t may be epoch seconds, epoch milliseconds or an RFC3339 string.
func (h *KafkaTicksHandler) Handle(_ context.Context, b []byte) error {
	var m struct {
		Symbol string          `json:"symbol"`
		Price  float64         `json:"price"`
		Volume float64         `json:"volume"`
		T      json.RawMessage `json:"t"`
	}
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return fmt.Errorf("decode tick: %w", err)
	}
	if m.Symbol == "" {
		h.metrics.RecordError("consumer_invalid")
		return fmt.Errorf("decode tick: missing symbol")
	}

	ts, ok := util.ParseTime(string(m.T))
	if ok {
		h.metrics.RecordLatency("ingest_e2e_seconds", time.Since(ts).Seconds())
	}

	h.sink.AddMarketTick(m.Symbol, m.Price, int64(m.Volume), ts)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaTicksHandler)(nil)
