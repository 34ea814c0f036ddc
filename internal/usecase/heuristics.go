package usecase

import (
	"math"

	"TickStockApp/internal/domain/models"
)

const (
	surgeWindow       = 10
	surgeMinDepth     = 5
	surgeMultiplier   = 3.0
	surgeMinAvgVolume = 100.0
	surgeConfidence   = 0.75

	dojiWindow       = 7
	dojiMaxDistance  = 0.3
	dojiConfidence   = 0.6
	gapMinDepth      = 5
	gapThresholdPct  = 2.0
	gapConfidence    = 0.8
	maxHeuristicSpan = surgeWindow
)

// heuristic inspects a symbol's trailing ticks, oldest first, and returns a
// detection or nil.
type heuristic func(symbol string, ticks []models.Tick) *models.PatternDetection

var heuristics = []struct {
	kind models.PatternKind
	run  heuristic
}{
	{models.PatternHighVolumeSurge, detectHighVolumeSurge},
	{models.PatternDoji, detectDoji},
	{models.PatternPriceGap, detectPriceGap},
}

func detectHighVolumeSurge(symbol string, ticks []models.Tick) *models.PatternDetection {
	if len(ticks) < surgeMinDepth {
		return nil
	}
	window := tail(ticks, surgeWindow)
	latest := window[len(window)-1]
	prev := window[len(window)-2]

	var sum float64
	for _, t := range window[:len(window)-1] {
		sum += float64(t.Volume)
	}
	avg := sum / float64(len(window)-1)
	if avg <= surgeMinAvgVolume || float64(latest.Volume) <= surgeMultiplier*avg {
		return nil
	}

	return &models.PatternDetection{
		Kind:       models.PatternHighVolumeSurge,
		Symbol:     symbol,
		Confidence: surgeConfidence,
		Timestamp:  latest.Timestamp,
		Price:      latest.Price,
		Volume:     latest.Volume,
		Direction:  models.DirectionNeutral,
		Metadata: map[string]float64{
			"volume_ratio":     float64(latest.Volume) / avg,
			"price_change_pct": pctChange(prev.Price, latest.Price),
		},
	}
}

func detectDoji(symbol string, ticks []models.Tick) *models.PatternDetection {
	if len(ticks) < dojiWindow {
		return nil
	}
	window := tail(ticks, dojiWindow)
	latest := window[len(window)-1]

	hi, lo, sum := math.Inf(-1), math.Inf(1), 0.0
	for _, t := range window {
		hi = math.Max(hi, t.Price)
		lo = math.Min(lo, t.Price)
		sum += t.Price
	}
	rng := hi - lo
	if rng <= 0 {
		return nil
	}
	mean := sum / float64(len(window))
	dist := math.Abs(latest.Price-mean) / rng
	if dist >= dojiMaxDistance {
		return nil
	}

	return &models.PatternDetection{
		Kind:       models.PatternDoji,
		Symbol:     symbol,
		Confidence: dojiConfidence,
		Timestamp:  latest.Timestamp,
		Price:      latest.Price,
		Volume:     latest.Volume,
		Direction:  models.DirectionReversal,
		Metadata: map[string]float64{
			"price_range":          rng,
			"mean_price":           mean,
			"distance_from_center": dist,
		},
	}
}

func detectPriceGap(symbol string, ticks []models.Tick) *models.PatternDetection {
	if len(ticks) < gapMinDepth {
		return nil
	}
	prev, latest := ticks[len(ticks)-2], ticks[len(ticks)-1]
	pct := pctChange(prev.Price, latest.Price)
	if math.Abs(pct) <= gapThresholdPct {
		return nil
	}

	dir := models.DirectionBullish
	if pct < 0 {
		dir = models.DirectionBearish
	}
	return &models.PatternDetection{
		Kind:       models.PatternPriceGap,
		Symbol:     symbol,
		Confidence: gapConfidence,
		Timestamp:  latest.Timestamp,
		Price:      latest.Price,
		Volume:     latest.Volume,
		Direction:  dir,
		Metadata: map[string]float64{
			"gap_percent": pct,
			"price_delta": latest.Price - prev.Price,
		},
	}
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) * 100 / from
}

func tail(ticks []models.Tick, n int) []models.Tick {
	if len(ticks) <= n {
		return ticks
	}
	return ticks[len(ticks)-n:]
}
