package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// consolidationQuery is one output file to produce during consolidation.
type consolidationQuery struct {
	start               uint64
	end                 uint64
	usePeriodBoundaries bool
}

// ConsolidateDirectory merges every data file whose interval lies entirely
// within [start, end] in dir into a single file named by the actual row
// bounds. Files straddling a window edge are left alone. Zero bounds mean
// unbounded.
func (c *Catalog) ConsolidateDirectory(dir string, start, end uint64) error {
	switch dataTypeOf(dir) {
	case "quote_tick":
		return consolidateDirectory[QuoteRow](c, dir, start, end)
	case "trade_tick":
		return consolidateDirectory[TradeRow](c, dir, start, end)
	default:
		return consolidateDirectory[BarRow](c, dir, start, end)
	}
}

func consolidateDirectory[T row](c *Catalog, dir string, start, end uint64) error {
	intervals, err := IntervalsForDirectory(dir)
	if err != nil {
		return err
	}
	selected := filterContained(intervals, start, end)
	if len(selected) < 2 {
		return nil
	}
	if err := CheckDisjoint(intervals); err != nil {
		return err
	}

	// Contained files carry only in-window rows by the filename invariant.
	var rows []T
	for _, interval := range selected {
		fileRows, err := readRows[T](interval.Path)
		if err != nil {
			return err
		}
		rows = append(rows, fileRows...)
	}
	if len(rows) == 0 {
		return nil
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].tsInit() < rows[j].tsInit() })

	lo, hi, err := boundsOf(rows)
	if err != nil {
		return err
	}
	target := filepath.Join(dir, fmt.Sprintf("%d-%d.parquet", lo, hi))
	if err := writeParquet(target, rows); err != nil {
		return err
	}
	for _, interval := range selected {
		if interval.Path == target {
			continue
		}
		if err := c.archiveReplaced(interval.Path); err != nil {
			return err
		}
		if err := os.Remove(interval.Path); err != nil {
			return err
		}
	}

	after, err := IntervalsForDirectory(dir)
	if err != nil {
		return err
	}
	if err := CheckDisjoint(after); err != nil {
		return fmt.Errorf("disjointness broken after consolidation: %w", err)
	}
	c.log.WithField("dir", dir).Info("Consolidated directory")
	return nil
}

// ConsolidateByPeriod rewrites the data files overlapping [start, end] into
// period-sized files. Files partially inside the window are split so rows
// outside the window are preserved under actual-bound names. Zero bounds
// mean unbounded; period is in nanoseconds.
func (c *Catalog) ConsolidateByPeriod(dir string, periodNs, start, end uint64) error {
	if periodNs == 0 {
		return fmt.Errorf("consolidation period must be positive")
	}
	switch dataTypeOf(dir) {
	case "quote_tick":
		return consolidateByPeriod[QuoteRow](c, dir, periodNs, start, end)
	case "trade_tick":
		return consolidateByPeriod[TradeRow](c, dir, periodNs, start, end)
	default:
		return consolidateByPeriod[BarRow](c, dir, periodNs, start, end)
	}
}

func consolidateByPeriod[T row](c *Catalog, dir string, periodNs, start, end uint64) error {
	intervals, err := IntervalsForDirectory(dir)
	if err != nil {
		return err
	}
	if err := CheckDisjoint(intervals); err != nil {
		return err
	}
	selected := filterOverlapping(intervals, start, end)
	if len(selected) == 0 {
		return nil
	}
	if c.ensureContiguous {
		if err := CheckContiguous(selected); err != nil {
			return fmt.Errorf("consolidation requires contiguous files: %w", err)
		}
	}

	for _, group := range groupContiguous(selected) {
		if err := consolidateGroup[T](c, dir, group, periodNs, start, end); err != nil {
			return err
		}
	}
	return nil
}

func consolidateGroup[T row](c *Catalog, dir string, group []Interval, periodNs, start, end uint64) error {
	groupStart := group[0].Start
	groupEnd := group[len(group)-1].End

	effStart := groupStart
	if start != 0 && start > effStart {
		effStart = start
	}
	effEnd := groupEnd
	if end != 0 && end < effEnd {
		effEnd = end
	}
	if effStart > effEnd {
		return nil
	}

	var queries []consolidationQuery

	// A window boundary strictly inside a file splits it: the rows outside
	// the window are rewritten under their actual bounds.
	for _, interval := range group {
		if interval.Start < effStart && effStart <= interval.End {
			queries = append(queries, consolidationQuery{interval.Start, effStart - 1, false})
		}
		if interval.Start <= effEnd && effEnd < interval.End {
			queries = append(queries, consolidationQuery{effEnd + 1, interval.End, false})
		}
	}

	// Period walk over the effective window.
	current := effStart / periodNs * periodNs
	for current <= effEnd {
		qEnd := current + periodNs - 1
		if qEnd > effEnd {
			qEnd = effEnd
		}
		qStart := current
		if qStart < effStart {
			qStart = effStart
		}
		queries = append(queries, consolidationQuery{qStart, qEnd, true})
		current += periodNs
	}

	sort.Slice(queries, func(i, j int) bool { return queries[i].start < queries[j].start })

	var outputs []string
	for _, q := range queries {
		var rows []T
		for _, interval := range group {
			if interval.Start > q.end || interval.End < q.start {
				continue
			}
			fileRows, err := readRows[T](interval.Path)
			if err != nil {
				return err
			}
			for _, r := range fileRows {
				ts := r.tsInit()
				if ts >= q.start && ts <= q.end {
					rows = append(rows, r)
				}
			}
		}
		if len(rows) == 0 {
			continue
		}
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].tsInit() < rows[j].tsInit() })

		nameStart, nameEnd := q.start, q.end
		if !q.usePeriodBoundaries {
			lo, hi, err := boundsOf(rows)
			if err != nil {
				return err
			}
			nameStart, nameEnd = lo, hi
		}
		target := filepath.Join(dir, fmt.Sprintf("%d-%d.parquet", nameStart, nameEnd))
		if c.ensureContiguous {
			if _, err := os.Stat(target); err == nil && !containsPath(group, target) {
				// An identically named file already exists outside this
				// group; writing would collide with consolidated output.
				continue
			}
		}
		if err := writeParquet(target, rows); err != nil {
			return err
		}
		outputs = append(outputs, target)
	}

	// Source files fully consumed by the written queries are removed.
	lastEnd := uint64(0)
	for _, q := range queries {
		if q.end > lastEnd {
			lastEnd = q.end
		}
	}
	for _, interval := range group {
		if interval.End > lastEnd {
			continue
		}
		keep := false
		for _, out := range outputs {
			if out == interval.Path {
				keep = true
				break
			}
		}
		if keep {
			continue
		}
		if err := c.archiveReplaced(interval.Path); err != nil {
			return err
		}
		if err := os.Remove(interval.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	c.log.WithField("dir", dir).Info("Consolidated by period")
	return nil
}

func filterOverlapping(intervals []Interval, start, end uint64) []Interval {
	var out []Interval
	for _, interval := range intervals {
		if end != 0 && interval.Start > end {
			continue
		}
		if start != 0 && interval.End < start {
			continue
		}
		out = append(out, interval)
	}
	return out
}

// filterContained keeps intervals lying entirely within [start, end].
func filterContained(intervals []Interval, start, end uint64) []Interval {
	var out []Interval
	for _, interval := range intervals {
		if start != 0 && interval.Start < start {
			continue
		}
		if end != 0 && interval.End > end {
			continue
		}
		out = append(out, interval)
	}
	return out
}

// groupContiguous splits intervals into runs where each file starts exactly
// one nanosecond after the previous ends.
func groupContiguous(intervals []Interval) [][]Interval {
	var groups [][]Interval
	var current []Interval
	for _, interval := range intervals {
		if len(current) > 0 && current[len(current)-1].End+1 != interval.Start {
			groups = append(groups, current)
			current = nil
		}
		current = append(current, interval)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups
}

func containsPath(group []Interval, path string) bool {
	for _, interval := range group {
		if interval.Path == path {
			return true
		}
	}
	return false
}
