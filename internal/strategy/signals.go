// Package strategy decides whether and what to trade: heuristic signal
// scoring, weighted fusion, Kelly-capped sizing, and the per-cycle runner
// that drives each strategy profile's paper trader.
package strategy

import (
	"encoding/json"
	"math"
	"time"

	"github.com/mholloway/rtx-paperbot/internal/models"
)

// Snapshot is one cycle's view of the market: the underlying quote plus the
// filtered, tradeable option contracts keyed by OCC symbol.
type Snapshot struct {
	Underlying models.Quote
	Contracts  map[string]models.OptionContract
	Time       time.Time
}

// Score is a signal's directional verdict with a confidence in [0,1].
type Score struct {
	Direction  models.Direction `json:"direction"`
	Confidence float64          `json:"confidence"`
}

// Signal scores one directional heuristic against a market snapshot.
type Signal interface {
	Name() string
	Evaluate(snap *Snapshot) Score
}

// DefaultSignals returns the bot's hand-tuned heuristic set.
func DefaultSignals() []Signal {
	return []Signal{
		&MomentumSignal{FullConfidenceMove: 0.015},
		&VolumePressureSignal{},
		&IVSkewSignal{FullConfidenceSkew: 0.10},
	}
}

// MomentumSignal scores the underlying's intraday move: up moves are bullish,
// down moves bearish, with confidence saturating at FullConfidenceMove.
type MomentumSignal struct {
	// FullConfidenceMove is the fractional move treated as maximum conviction.
	FullConfidenceMove float64
}

// Name implements Signal.
func (s *MomentumSignal) Name() string { return "momentum" }

// Evaluate implements Signal.
func (s *MomentumSignal) Evaluate(snap *Snapshot) Score {
	last := snap.Underlying.Last
	if last <= 0 || s.FullConfidenceMove <= 0 {
		return Score{Direction: models.DirectionBullish, Confidence: 0}
	}
	movePct := snap.Underlying.Change / last

	direction := models.DirectionBullish
	if movePct < 0 {
		direction = models.DirectionBearish
	}
	confidence := math.Min(math.Abs(movePct)/s.FullConfidenceMove, 1.0)
	return Score{Direction: direction, Confidence: confidence}
}

// VolumePressureSignal compares aggregate call volume against put volume in
// the tradeable chain. Heavy call activity reads bullish and vice versa.
type VolumePressureSignal struct{}

// Name implements Signal.
func (s *VolumePressureSignal) Name() string { return "volume_pressure" }

// Evaluate implements Signal.
func (s *VolumePressureSignal) Evaluate(snap *Snapshot) Score {
	var callVol, putVol int64
	for _, c := range snap.Contracts {
		if c.OptionType == models.OptionTypeCall {
			callVol += c.Volume
		} else {
			putVol += c.Volume
		}
	}

	total := callVol + putVol
	if total == 0 {
		return Score{Direction: models.DirectionBullish, Confidence: 0}
	}

	// Imbalance in [-1,1]: +1 all calls, -1 all puts. A 50/50 split scores 0.
	imbalance := float64(callVol-putVol) / float64(total)
	direction := models.DirectionBullish
	if imbalance < 0 {
		direction = models.DirectionBearish
	}
	return Score{Direction: direction, Confidence: math.Abs(imbalance)}
}

// IVSkewSignal reads put/call implied-volatility skew as positioning: puts
// bid up relative to calls means downside fear, scored bearish.
type IVSkewSignal struct {
	// FullConfidenceSkew is the absolute IV gap treated as maximum conviction.
	FullConfidenceSkew float64
}

// Name implements Signal.
func (s *IVSkewSignal) Name() string { return "iv_skew" }

// Evaluate implements Signal.
func (s *IVSkewSignal) Evaluate(snap *Snapshot) Score {
	var callIV, putIV float64
	var callN, putN int
	for _, c := range snap.Contracts {
		if c.Greeks.MidIV <= 0 {
			continue
		}
		if c.OptionType == models.OptionTypeCall {
			callIV += c.Greeks.MidIV
			callN++
		} else {
			putIV += c.Greeks.MidIV
			putN++
		}
	}
	if callN == 0 || putN == 0 || s.FullConfidenceSkew <= 0 {
		return Score{Direction: models.DirectionBullish, Confidence: 0}
	}

	skew := putIV/float64(putN) - callIV/float64(callN)
	direction := models.DirectionBullish
	if skew > 0 {
		direction = models.DirectionBearish
	}
	return Score{Direction: direction, Confidence: math.Min(math.Abs(skew)/s.FullConfidenceSkew, 1.0)}
}

// Fuse combines per-signal scores into one verdict by equal-weight averaging
// of signed confidences. The returned JSON blob records each signal's score
// for the prediction's audit trail.
func Fuse(signals []Signal, snap *Snapshot) (Score, string) {
	if len(signals) == 0 {
		return Score{Direction: models.DirectionBullish, Confidence: 0}, "{}"
	}

	scores := make(map[string]Score, len(signals))
	net := 0.0
	for _, sig := range signals {
		score := sig.Evaluate(snap)
		scores[sig.Name()] = score
		signed := score.Confidence
		if score.Direction == models.DirectionBearish {
			signed = -signed
		}
		net += signed
	}
	net /= float64(len(signals))

	blob, err := json.Marshal(scores)
	if err != nil {
		blob = []byte("{}")
	}

	direction := models.DirectionBullish
	if net < 0 {
		direction = models.DirectionBearish
	}
	return Score{Direction: direction, Confidence: math.Abs(net)}, string(blob)
}
