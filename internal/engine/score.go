package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxBaseScore is awarded when the predicted and actual shares are within
// π/1000 radians of each other.
const MaxBaseScore = 1000

// ShareScale is the denominator the shares are expressed against.
const ShareScale = 100.0

// Bonus grants Points to a prediction committed at least Threshold seconds
// before the round's end.
type Bonus struct {
	Threshold int64 `json:"threshold"`
	Points    int64 `json:"points"`
}

// BonusTable is scanned in stored order and the first entry whose threshold is
// at most the time remaining wins. Tables are kept in descending threshold order.
type BonusTable []Bonus

// DefaultBonusTable grants 100, 60 and 30 points for predictions placed 7, 6
// and 5 days before the round ends.
func DefaultBonusTable() BonusTable {
	const day = 24 * 60 * 60
	return BonusTable{
		{Threshold: 7 * day, Points: 100},
		{Threshold: 6 * day, Points: 60},
		{Threshold: 5 * day, Points: 30},
	}
}

// Bonus returns the points for timeRemaining seconds, or 0 if no entry applies.
func (t BonusTable) Bonus(timeRemaining int64) int64 {
	for _, b := range t {
		if b.Threshold <= timeRemaining {
			return b.Points
		}
	}
	return 0
}

// Validate reports tables that are not strictly descending or carry negative
// values. Scan order decides payouts, so a misordered table is rejected rather
// than sorted.
func (t BonusTable) Validate() error {
	for i, b := range t {
		if b.Threshold < 0 || b.Points < 0 {
			return fmt.Errorf("%w: bonus entry %d has negative values", ErrInvalidInput, i)
		}
		if i > 0 && b.Threshold >= t[i-1].Threshold {
			return fmt.Errorf("%w: bonus thresholds must descend, entry %d (%d) after %d",
				ErrInvalidInput, i, b.Threshold, t[i-1].Threshold)
		}
	}
	return nil
}

// String renders the table as "threshold:points,..." which ParseBonusTable reads back.
func (t BonusTable) String() string {
	parts := make([]string, len(t))
	for i, b := range t {
		parts[i] = fmt.Sprintf("%d:%d", b.Threshold, b.Points)
	}
	return strings.Join(parts, ",")
}

// ParseBonusTable reads "604800:100,518400:60" and validates the result.
func ParseBonusTable(s string) (BonusTable, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return BonusTable{}, nil
	}
	var t BonusTable
	for _, part := range strings.Split(s, ",") {
		threshold, points, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("%w: bonus entry %q is not threshold:points", ErrInvalidInput, part)
		}
		th, err := strconv.ParseInt(threshold, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bonus threshold %q: %v", ErrInvalidInput, threshold, err)
		}
		pts, err := strconv.ParseInt(points, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bonus points %q: %v", ErrInvalidInput, points, err)
		}
		t = append(t, Bonus{Threshold: th, Points: pts})
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// AngleScore maps the angle between the vectors (p, 100-p) and (a, 100-a) to a
// score. Angles up to π/1000 score MaxBaseScore, wider ones round(π/angle)
// rounding half away from zero.
func AngleScore(predicted, actual float64) (int64, error) {
	if err := checkShare(predicted); err != nil {
		return 0, fmt.Errorf("predicted share: %w", err)
	}
	if err := checkShare(actual); err != nil {
		return 0, fmt.Errorf("actual share: %w", err)
	}

	px, py := predicted, ShareScale-predicted
	ax, ay := actual, ShareScale-actual

	lengths := math.Sqrt(px*px+py*py) * math.Sqrt(ax*ax+ay*ay)
	if lengths == 0 || math.IsNaN(lengths) {
		return 0, fmt.Errorf("%w: zero-length share vector", ErrInvalidInput)
	}

	cos := (px*ax + py*ay) / lengths
	cos = math.Max(-1, math.Min(1, cos))
	angle := math.Acos(cos)

	if angle <= math.Pi/1000 {
		return MaxBaseScore, nil
	}
	return int64(math.Round(math.Pi / angle)), nil
}

// Score is AngleScore plus the bonus for committing timeRemaining seconds
// before the round ends.
func Score(predicted, actual float64, timeRemaining int64, table BonusTable) (int64, error) {
	base, err := AngleScore(predicted, actual)
	if err != nil {
		return 0, err
	}
	return base + table.Bonus(timeRemaining), nil
}

func checkShare(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%w: share is %v", ErrInvalidInput, v)
	}
	if v < 0 || v > ShareScale {
		return fmt.Errorf("%w: share %v outside 0..%v", ErrInvalidInput, v, ShareScale)
	}
	return nil
}
