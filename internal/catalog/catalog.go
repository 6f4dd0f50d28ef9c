package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"quantflow/internal/model"
	"quantflow/logger"
)

// filenameRe matches "<start>-<end>.parquet" (or legacy feather) data files.
var filenameRe = regexp.MustCompile(`^(\d+)-(\d+)\.(parquet|feather)$`)

const parquetParallelism = 4

// Interval is the closed ts_init range a data file covers.
type Interval struct {
	Start uint64
	End   uint64
	Path  string
}

// Catalog is a filesystem store of market data laid out as
// <root>/data/<type>/<instrument>/<start>-<end>.parquet. Filenames state the
// exact ts_init bounds of their rows; files in one directory never overlap.
type Catalog struct {
	root             string
	ensureContiguous bool
	archiver         Archiver
	log              *logger.Entry
}

func NewCatalog(root string, ensureContiguous bool) *Catalog {
	return &Catalog{
		root:             root,
		ensureContiguous: ensureContiguous,
		log:              logger.WithComponent("catalog"),
	}
}

// WithArchiver attaches an archiver; consolidation then uploads every file it
// replaces before removing it locally.
func (c *Catalog) WithArchiver(a Archiver) *Catalog {
	c.archiver = a
	return c
}

func (c *Catalog) archiveReplaced(path string) error {
	if c.archiver == nil {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return c.archiver.ArchiveFile(context.Background(), c.root, path)
}

// Root returns the catalog root directory.
func (c *Catalog) Root() string { return c.root }

// DataDir returns the directory for a data type and optional instrument key.
func (c *Catalog) DataDir(dataType, instrumentKey string) string {
	if instrumentKey == "" {
		return filepath.Join(c.root, "data", dataType)
	}
	return filepath.Join(c.root, "data", dataType, instrumentKey)
}

// ParseFilename extracts the interval from a data filename.
func ParseFilename(name string) (start, end uint64, ok bool) {
	m := filenameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	start, err1 := strconv.ParseUint(m[1], 10, 64)
	end, err2 := strconv.ParseUint(m[2], 10, 64)
	if err1 != nil || err2 != nil || start > end {
		return 0, 0, false
	}
	return start, end, true
}

// IntervalsForDirectory lists the file intervals in dir sorted by start.
func IntervalsForDirectory(dir string) ([]Interval, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var intervals []Interval
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		start, end, ok := ParseFilename(entry.Name())
		if !ok {
			continue
		}
		intervals = append(intervals, Interval{
			Start: start,
			End:   end,
			Path:  filepath.Join(dir, entry.Name()),
		})
	}
	sort.Slice(intervals, func(i, j int) bool { return intervals[i].Start < intervals[j].Start })
	return intervals, nil
}

// CheckDisjoint verifies that no two intervals overlap.
func CheckDisjoint(intervals []Interval) error {
	for i := 1; i < len(intervals); i++ {
		if intervals[i].Start <= intervals[i-1].End {
			return fmt.Errorf("overlapping intervals %d-%d and %d-%d",
				intervals[i-1].Start, intervals[i-1].End, intervals[i].Start, intervals[i].End)
		}
	}
	return nil
}

// CheckContiguous verifies that each interval starts exactly one nanosecond
// after the previous ends.
func CheckContiguous(intervals []Interval) error {
	for i := 1; i < len(intervals); i++ {
		if intervals[i-1].End+1 != intervals[i].Start {
			return fmt.Errorf("gap between intervals %d-%d and %d-%d",
				intervals[i-1].Start, intervals[i-1].End, intervals[i].Start, intervals[i].End)
		}
	}
	return nil
}

// FindLeafDataDirectories walks the data tree and returns the directories
// that hold data files rather than further directories.
func (c *Catalog) FindLeafDataDirectories() ([]string, error) {
	var leaves []string
	dataRoot := filepath.Join(c.root, "data")
	err := filepath.WalkDir(dataRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return err
		}
		hasFiles := false
		hasDirs := false
		for _, entry := range entries {
			if entry.IsDir() {
				hasDirs = true
			} else {
				hasFiles = true
			}
		}
		if hasFiles && !hasDirs {
			leaves = append(leaves, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(leaves)
	return leaves, nil
}

// WriteBars persists bars into the bar directory for their bar type, named
// by the actual ts_init bounds.
func (c *Catalog) WriteBars(bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([]BarRow, len(bars))
	for i, bar := range bars {
		rows[i] = BarToRow(bar)
	}
	dir := c.DataDir("bar", bars[0].BarType.String())
	return writeRows(dir, rows)
}

// WriteQuotes persists quotes for one instrument.
func (c *Catalog) WriteQuotes(instrumentId model.InstrumentId, quotes []model.QuoteTick) error {
	if len(quotes) == 0 {
		return nil
	}
	rows := make([]QuoteRow, len(quotes))
	for i, q := range quotes {
		rows[i] = QuoteToRow(q)
	}
	dir := c.DataDir("quote_tick", instrumentId.String())
	return writeRows(dir, rows)
}

// WriteTrades persists trades for one instrument.
func (c *Catalog) WriteTrades(instrumentId model.InstrumentId, trades []model.TradeTick) error {
	if len(trades) == 0 {
		return nil
	}
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = TradeToRow(t)
	}
	dir := c.DataDir("trade_tick", instrumentId.String())
	return writeRows(dir, rows)
}

// ReadBars loads every bar row for the bar type whose ts_init falls inside
// [start, end]. Zero bounds mean unbounded.
func (c *Catalog) ReadBars(barType model.BarType, start, end uint64) ([]BarRow, error) {
	dir := c.DataDir("bar", barType.String())
	return readRowsInRange[BarRow](dir, start, end)
}

// ReadQuotes loads quote rows for the instrument inside [start, end].
func (c *Catalog) ReadQuotes(instrumentId model.InstrumentId, start, end uint64) ([]QuoteRow, error) {
	dir := c.DataDir("quote_tick", instrumentId.String())
	return readRowsInRange[QuoteRow](dir, start, end)
}

// ReadTrades loads trade rows for the instrument inside [start, end].
func (c *Catalog) ReadTrades(instrumentId model.InstrumentId, start, end uint64) ([]TradeRow, error) {
	dir := c.DataDir("trade_tick", instrumentId.String())
	return readRowsInRange[TradeRow](dir, start, end)
}

// ResetFileNames re-derives each file's name in dir from the actual ts_init
// bounds of its rows, repairing files renamed or written with wrong bounds.
func (c *Catalog) ResetFileNames(dir string) error {
	intervals, err := IntervalsForDirectory(dir)
	if err != nil {
		return err
	}
	for _, interval := range intervals {
		start, end, err := rowBoundsForFile(dir, interval.Path)
		if err != nil {
			return err
		}
		target := filepath.Join(dir, fmt.Sprintf("%d-%d.parquet", start, end))
		if target == interval.Path {
			continue
		}
		if err := os.Rename(interval.Path, target); err != nil {
			return err
		}
		c.log.WithFields(logger.Fields{
			"from": filepath.Base(interval.Path),
			"to":   filepath.Base(target),
		}).Info("Reset file name")
	}
	return nil
}

// rowBoundsForFile reads a file's min and max ts_init using the directory's
// data type.
func rowBoundsForFile(dir, path string) (uint64, uint64, error) {
	switch dataTypeOf(dir) {
	case "quote_tick":
		rows, err := readRows[QuoteRow](path)
		if err != nil {
			return 0, 0, err
		}
		return boundsOf(rows)
	case "trade_tick":
		rows, err := readRows[TradeRow](path)
		if err != nil {
			return 0, 0, err
		}
		return boundsOf(rows)
	default:
		rows, err := readRows[BarRow](path)
		if err != nil {
			return 0, 0, err
		}
		return boundsOf(rows)
	}
}

// dataTypeOf extracts the <type> path segment of a leaf data directory.
func dataTypeOf(dir string) string {
	rest := dir
	for {
		parent := filepath.Dir(rest)
		if filepath.Base(parent) == "data" {
			return filepath.Base(rest)
		}
		if parent == rest || parent == "." || parent == string(filepath.Separator) {
			return filepath.Base(dir)
		}
		rest = parent
	}
}

func boundsOf[T row](rows []T) (uint64, uint64, error) {
	if len(rows) == 0 {
		return 0, 0, fmt.Errorf("empty data file")
	}
	start := rows[0].tsInit()
	end := rows[0].tsInit()
	for _, r := range rows[1:] {
		ts := r.tsInit()
		if ts < start {
			start = ts
		}
		if ts > end {
			end = ts
		}
	}
	return start, end, nil
}

// writeRows persists rows into dir named by their ts_init bounds.
func writeRows[T row](dir string, rows []T) error {
	start, end, err := boundsOf(rows)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, fmt.Sprintf("%d-%d.parquet", start, end))
	return writeParquet(path, rows)
}

func writeParquet[T any](path string, rows []T) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer fw.Close()

	var zero T
	pw, err := writer.NewParquetWriter(fw, &zero, parquetParallelism)
	if err != nil {
		return fmt.Errorf("parquet writer for %s: %w", path, err)
	}
	for _, r := range rows {
		if err := pw.Write(r); err != nil {
			return fmt.Errorf("write row to %s: %w", path, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize %s: %w", path, err)
	}
	return nil
}

func readRows[T any](path string) ([]T, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer fr.Close()

	var zero T
	pr, err := reader.NewParquetReader(fr, &zero, parquetParallelism)
	if err != nil {
		return nil, fmt.Errorf("parquet reader for %s: %w", path, err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	rows := make([]T, num)
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("read rows from %s: %w", path, err)
	}
	return rows, nil
}

// readRowsInRange loads every row in dir whose ts_init falls in [start, end],
// sorted by ts_init. Zero bounds mean unbounded.
func readRowsInRange[T row](dir string, start, end uint64) ([]T, error) {
	intervals, err := IntervalsForDirectory(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []T
	for _, interval := range intervals {
		if end != 0 && interval.Start > end {
			continue
		}
		if start != 0 && interval.End < start {
			continue
		}
		rows, err := readRows[T](interval.Path)
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			ts := r.tsInit()
			if start != 0 && ts < start {
				continue
			}
			if end != 0 && ts > end {
				continue
			}
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].tsInit() < out[j].tsInit() })
	return out, nil
}
