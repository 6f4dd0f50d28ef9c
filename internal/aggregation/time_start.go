package aggregation

import (
	"fmt"
	"time"

	"quantflow/internal/model"
)

// GetTimeBarStart returns the open time of the bar interval containing now.
//
// Sub-day aggregations anchor at the UTC day start plus origin and walk in
// step-sized intervals. Weeks anchor on Monday, months on January 1st stepped
// by whole months.
func GetTimeBarStart(now time.Time, spec model.BarSpecification, origin time.Duration) (time.Time, error) {
	now = now.UTC()
	var unit time.Duration
	switch spec.Aggregation {
	case model.Millisecond:
		unit = time.Millisecond
	case model.Second:
		unit = time.Second
	case model.Minute:
		unit = time.Minute
	case model.Hour:
		unit = time.Hour
	case model.Day:
		unit = 24 * time.Hour
	case model.Week:
		return weekBarStart(now, spec.Step, origin), nil
	case model.Month:
		return monthBarStart(now, spec.Step, origin), nil
	default:
		return time.Time{}, fmt.Errorf("aggregation %v is not time based", spec.Aggregation)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	anchor := dayStart.Add(origin)
	if anchor.After(now) {
		anchor = anchor.AddDate(0, 0, -1)
	}
	interval := time.Duration(spec.Step) * unit
	elapsed := now.Sub(anchor)
	return anchor.Add(elapsed / interval * interval), nil
}

func weekBarStart(now time.Time, step int, origin time.Duration) time.Time {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	monday := dayStart.AddDate(0, 0, -daysSinceMonday)
	anchor := monday.Add(origin)
	if anchor.After(now) {
		anchor = anchor.AddDate(0, 0, -7)
	}
	interval := time.Duration(step) * 7 * 24 * time.Hour
	elapsed := now.Sub(anchor)
	return anchor.Add(elapsed / interval * interval)
}

func monthBarStart(now time.Time, step int, origin time.Duration) time.Time {
	monthIdx := (int(now.Month()) - 1) / step * step
	anchor := time.Date(now.Year(), time.Month(monthIdx+1), 1, 0, 0, 0, 0, time.UTC).Add(origin)
	if anchor.After(now) {
		anchor = time.Date(now.Year()-1, 12, 1, 0, 0, 0, 0, time.UTC)
		monthIdx = (int(anchor.Month()) - 1) / step * step
		anchor = time.Date(anchor.Year(), time.Month(monthIdx+1), 1, 0, 0, 0, 0, time.UTC).Add(origin)
	}
	return anchor
}

// NextTimeBarClose returns the close boundary following now.
func NextTimeBarClose(now time.Time, spec model.BarSpecification, origin time.Duration) (time.Time, error) {
	start, err := GetTimeBarStart(now, spec, origin)
	if err != nil {
		return time.Time{}, err
	}
	if spec.Aggregation == model.Month {
		return start.AddDate(0, spec.Step, 0), nil
	}
	return start.Add(time.Duration(spec.TimedeltaNanos())), nil
}
