package models

import (
	"fmt"
	"time"
)

// PatternKind enumerates the patterns the system knows how to name.
type PatternKind int

const (
	PatternDoji PatternKind = iota + 1
	PatternHighVolumeSurge
	PatternPriceGap
	PatternHammer
	PatternShootingStar
	PatternEngulfingBull
	PatternEngulfingBear
)

var patternNames = map[PatternKind]string{
	PatternDoji:            "Doji",
	PatternHighVolumeSurge: "HighVolumeSurge",
	PatternPriceGap:        "PriceGap",
	PatternHammer:          "Hammer",
	PatternShootingStar:    "ShootingStar",
	PatternEngulfingBull:   "EngulfingBull",
	PatternEngulfingBear:   "EngulfingBear",
}

func (k PatternKind) String() string {
	if s, ok := patternNames[k]; ok {
		return s
	}
	return fmt.Sprintf("PatternKind(%d)", int(k))
}

func (k PatternKind) MarshalText() ([]byte, error) {
	s, ok := patternNames[k]
	if !ok {
		return nil, fmt.Errorf("unknown pattern kind %d", int(k))
	}
	return []byte(s), nil
}

func (k *PatternKind) UnmarshalText(b []byte) error {
	for kind, name := range patternNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown pattern %q", string(b))
}

// Direction is the market bias a detection implies.
type Direction int

const (
	DirectionNeutral Direction = iota
	DirectionBullish
	DirectionBearish
	DirectionReversal
)

func (d Direction) String() string {
	switch d {
	case DirectionNeutral:
		return "neutral"
	case DirectionBullish:
		return "bullish"
	case DirectionBearish:
		return "bearish"
	case DirectionReversal:
		return "reversal"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// PatternDetection is produced by a heuristic and published immediately.
type PatternDetection struct {
	Kind       PatternKind
	Symbol     string
	Confidence float64 // [0,1]
	Timestamp  time.Time
	Price      float64
	Volume     int64
	Direction  Direction
	Metadata   map[string]float64 // volume_ratio, price_change_pct, price_range, gap_percent, ...
}
