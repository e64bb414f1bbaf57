package metrics

import "math"

// Direction classifies a period-over-period movement.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Trend pairs a signed percentage delta with its direction. When the prior
// value is zero and the current is not, no percentage exists: NewGrowth is
// set and DeltaPercent stays zero instead of leaking an Infinity.
type Trend struct {
	DeltaPercent float64   `json:"delta_percent"`
	Direction    Direction `json:"direction"`
	NewGrowth    bool      `json:"new_growth,omitempty"`
}

// CompareTrend computes the movement from prior to current. Classification
// uses exact comparison, no epsilon: inputs are already rounded amounts.
func CompareTrend(current, prior float64) Trend {
	if prior == 0 {
		if current == 0 {
			return Trend{Direction: DirectionFlat}
		}
		if current > 0 {
			return Trend{Direction: DirectionUp, NewGrowth: true}
		}
		return Trend{Direction: DirectionDown, NewGrowth: true}
	}
	delta := (current - prior) / prior * 100
	trend := Trend{DeltaPercent: round2(delta)}
	switch {
	case current > prior:
		trend.Direction = DirectionUp
	case current < prior:
		trend.Direction = DirectionDown
	default:
		trend.Direction = DirectionFlat
	}
	return trend
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
