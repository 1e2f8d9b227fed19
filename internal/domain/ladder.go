package domain

import (
	"fmt"
	"math"
	"strconv"
)

// Quality labels how tightly a match was made.
type Quality string

const (
	QualityExact       Quality = "exact"
	QualityApproximate Quality = "approximate"
	QualityBroad       Quality = "broad"
	// QualityNone marks a retained left-join row with no counterpart.
	QualityNone Quality = "none"
)

// TimeRule selects how timestamps are compared at a tolerance level.
type TimeRule int

const (
	// TimeSameDate requires the same UTC calendar date.
	TimeSameDate TimeRule = iota
	// TimeSameMonth requires the same UTC calendar month.
	TimeSameMonth
	// TimeWithinDays accepts any reference within +/- DayWindow days.
	TimeWithinDays
)

func (r TimeRule) String() string {
	switch r {
	case TimeSameMonth:
		return "same-month"
	case TimeWithinDays:
		return "within-days"
	default:
		return "same-day"
	}
}

// Tolerance is one rung of the matching ladder: a coordinate precision
// paired with a temporal rule and the quality label earned by matching here.
type Tolerance struct {
	Quality     Quality
	CoordPlaces int // Decimal places kept when rounding coordinates.
	TimeRule    TimeRule
	DayWindow   int // Days either side of the observation; TimeWithinDays only.
}

// Label renders the tolerance for logs and result tables,
// e.g. "0.01deg+same-day" or "1deg+within-15d".
func (t Tolerance) Label() string {
	deg := strconv.FormatFloat(math.Pow(10, float64(-t.CoordPlaces)), 'g', -1, 64)
	switch t.TimeRule {
	case TimeSameMonth:
		return deg + "deg+same-month"
	case TimeWithinDays:
		return fmt.Sprintf("%sdeg+within-%dd", deg, t.DayWindow)
	default:
		return deg + "deg+same-day"
	}
}

// Ladder is an ordered sequence of tolerances, tightest first. Matching
// walks the ladder downward; a record matched at one rung never loosens.
type Ladder []Tolerance

// DefaultDayWindow is the broad-level temporal window. Monthly products put
// any observation within half a time step of some cell midpoint.
const DefaultDayWindow = 15

// DefaultLadder returns the standard three-rung ladder.
func DefaultLadder() Ladder {
	return Ladder{
		{Quality: QualityExact, CoordPlaces: 2, TimeRule: TimeSameDate},
		{Quality: QualityApproximate, CoordPlaces: 1, TimeRule: TimeSameDate},
		{Quality: QualityBroad, CoordPlaces: 0, TimeRule: TimeWithinDays, DayWindow: DefaultDayWindow},
	}
}
