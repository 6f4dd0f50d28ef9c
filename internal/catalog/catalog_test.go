package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantflow/internal/model"
)

func TestParseFilename(t *testing.T) {
	start, end, ok := ParseFilename("100-200.parquet")
	require.True(t, ok)
	assert.EqualValues(t, 100, start)
	assert.EqualValues(t, 200, end)

	_, _, ok = ParseFilename("100-200.feather")
	assert.True(t, ok)

	for _, bad := range []string{"200-100.parquet", "abc-200.parquet", "100-200.csv", "100.parquet"} {
		_, _, ok := ParseFilename(bad)
		assert.False(t, ok, bad)
	}
}

func TestCheckDisjointAndContiguous(t *testing.T) {
	disjoint := []Interval{{Start: 0, End: 99}, {Start: 100, End: 199}, {Start: 300, End: 399}}
	assert.NoError(t, CheckDisjoint(disjoint))
	assert.Error(t, CheckContiguous(disjoint))

	contiguous := disjoint[:2]
	assert.NoError(t, CheckContiguous(contiguous))

	overlapping := []Interval{{Start: 0, End: 100}, {Start: 100, End: 199}}
	assert.Error(t, CheckDisjoint(overlapping))
}

func TestGroupContiguous(t *testing.T) {
	intervals := []Interval{
		{Start: 0, End: 99}, {Start: 100, End: 199},
		{Start: 300, End: 399}, {Start: 400, End: 499},
	}
	groups := groupContiguous(intervals)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 2)
}

func testBarType(t *testing.T) model.BarType {
	t.Helper()
	bt, err := model.ParseBarType("BTCUSDT.BYBIT-1-MINUTE-LAST-EXTERNAL")
	require.NoError(t, err)
	return bt
}

func barAt(t *testing.T, bt model.BarType, ts uint64) model.Bar {
	t.Helper()
	bar, err := model.NewBar(bt,
		model.NewPrice(100, 2), model.NewPrice(101, 2),
		model.NewPrice(99, 2), model.NewPrice(100.5, 2),
		model.NewQuantity(10, 0), model.UnixNanos(ts), model.UnixNanos(ts))
	require.NoError(t, err)
	return bar
}

func TestWriteAndReadBarsRoundTrip(t *testing.T) {
	c := NewCatalog(t.TempDir(), false)
	bt := testBarType(t)

	bars := []model.Bar{barAt(t, bt, 100), barAt(t, bt, 200), barAt(t, bt, 300)}
	require.NoError(t, c.WriteBars(bars))

	dir := c.DataDir("bar", bt.String())
	intervals, err := IntervalsForDirectory(dir)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.EqualValues(t, 100, intervals[0].Start)
	assert.EqualValues(t, 300, intervals[0].End)

	rows, err := c.ReadBars(bt, 150, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.EqualValues(t, 200, rows[0].TsInit)

	bar, err := RowToBar(rows[0], 2, 0)
	require.NoError(t, err)
	assert.Equal(t, model.NewPrice(100.5, 2), bar.Close)
}

func TestFindLeafDataDirectories(t *testing.T) {
	root := t.TempDir()
	c := NewCatalog(root, false)
	bt := testBarType(t)
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 100)}))
	require.NoError(t, c.WriteQuotes(model.NewInstrumentId("ETHUSDT", "BYBIT"), []model.QuoteTick{{
		InstrumentId: model.NewInstrumentId("ETHUSDT", "BYBIT"),
		BidPrice:     model.NewPrice(10, 2),
		AskPrice:     model.NewPrice(11, 2),
		TsInit:       50,
	}}))

	leaves, err := c.FindLeafDataDirectories()
	require.NoError(t, err)
	require.Len(t, leaves, 2)
}

func TestResetFileNames(t *testing.T) {
	root := t.TempDir()
	c := NewCatalog(root, false)
	bt := testBarType(t)
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 100), barAt(t, bt, 300)}))

	dir := c.DataDir("bar", bt.String())
	// Corrupt the name.
	require.NoError(t, os.Rename(
		filepath.Join(dir, "100-300.parquet"),
		filepath.Join(dir, "1-2.parquet")))

	require.NoError(t, c.ResetFileNames(dir))
	intervals, err := IntervalsForDirectory(dir)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.EqualValues(t, 100, intervals[0].Start)
	assert.EqualValues(t, 300, intervals[0].End)
}

func TestConsolidateDirectoryMergesFiles(t *testing.T) {
	root := t.TempDir()
	c := NewCatalog(root, false)
	bt := testBarType(t)

	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 100), barAt(t, bt, 199)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 200), barAt(t, bt, 299)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 300), barAt(t, bt, 399)}))

	dir := c.DataDir("bar", bt.String())
	require.NoError(t, c.ConsolidateDirectory(dir, 0, 0))

	intervals, err := IntervalsForDirectory(dir)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.EqualValues(t, 100, intervals[0].Start)
	assert.EqualValues(t, 399, intervals[0].End)

	rows, err := c.ReadBars(bt, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestConsolidateDirectorySkipsStraddlingFiles(t *testing.T) {
	root := t.TempDir()
	c := NewCatalog(root, false)
	bt := testBarType(t)

	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 10), barAt(t, bt, 90)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 100), barAt(t, bt, 190)}))

	dir := c.DataDir("bar", bt.String())

	// The second file straddles the window edge, so only one file is fully
	// inside and nothing happens.
	require.NoError(t, c.ConsolidateDirectory(dir, 10, 150))
	intervals, err := IntervalsForDirectory(dir)
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	assert.NoError(t, CheckDisjoint(intervals))

	// Widening the window to contain both files merges them.
	require.NoError(t, c.ConsolidateDirectory(dir, 10, 190))
	intervals, err = IntervalsForDirectory(dir)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.EqualValues(t, 10, intervals[0].Start)
	assert.EqualValues(t, 190, intervals[0].End)

	rows, err := c.ReadBars(bt, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 4)
}

type recordingArchiver struct {
	paths []string
}

func (a *recordingArchiver) ArchiveFile(_ context.Context, _, path string) error {
	a.paths = append(a.paths, path)
	return nil
}

func TestConsolidateDirectoryArchivesReplacedFiles(t *testing.T) {
	root := t.TempDir()
	archiver := &recordingArchiver{}
	c := NewCatalog(root, false).WithArchiver(archiver)
	bt := testBarType(t)

	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 100), barAt(t, bt, 199)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 200), barAt(t, bt, 299)}))

	dir := c.DataDir("bar", bt.String())
	require.NoError(t, c.ConsolidateDirectory(dir, 0, 0))

	require.Len(t, archiver.paths, 2)
	assert.Contains(t, archiver.paths, filepath.Join(dir, "100-199.parquet"))
	assert.Contains(t, archiver.paths, filepath.Join(dir, "200-299.parquet"))
}

func TestConsolidateByPeriodThreeFiles(t *testing.T) {
	root := t.TempDir()
	c := NewCatalog(root, true)
	bt := testBarType(t)

	// Three contiguous files inside one period: 0-99, 100-199, 200-299.
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 0), barAt(t, bt, 99)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 100), barAt(t, bt, 199)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 200), barAt(t, bt, 299)}))

	dir := c.DataDir("bar", bt.String())
	require.NoError(t, c.ConsolidateByPeriod(dir, 1000, 0, 0))

	intervals, err := IntervalsForDirectory(dir)
	require.NoError(t, err)
	require.Len(t, intervals, 1)
	assert.EqualValues(t, 0, intervals[0].Start)
	assert.EqualValues(t, 299, intervals[0].End)

	rows, err := c.ReadBars(bt, 0, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestConsolidateByPeriodSplitsAcrossPeriods(t *testing.T) {
	root := t.TempDir()
	c := NewCatalog(root, false)
	bt := testBarType(t)

	// Rows span two 1000ns periods.
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 500), barAt(t, bt, 900)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 901), barAt(t, bt, 1500)}))

	dir := c.DataDir("bar", bt.String())
	// Rename second file so the pair is contiguous by name.
	require.NoError(t, c.ResetFileNames(dir))
	require.NoError(t, c.ConsolidateByPeriod(dir, 1000, 0, 0))

	intervals, err := IntervalsForDirectory(dir)
	require.NoError(t, err)
	require.Len(t, intervals, 2)

	rows, err := c.ReadBars(bt, 0, 999)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	rows, err = c.ReadBars(bt, 1000, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestConsolidateByPeriodRespectsWindow(t *testing.T) {
	root := t.TempDir()
	c := NewCatalog(root, false)
	bt := testBarType(t)

	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 100), barAt(t, bt, 199)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 200), barAt(t, bt, 299)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 5000), barAt(t, bt, 5099)}))

	dir := c.DataDir("bar", bt.String())
	// Only the first two files overlap the window.
	require.NoError(t, c.ConsolidateByPeriod(dir, 1000, 0, 400))

	intervals, err := IntervalsForDirectory(dir)
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	assert.EqualValues(t, 5000, intervals[1].Start)
}

func TestConsolidateByPeriodContiguityEnforced(t *testing.T) {
	root := t.TempDir()
	c := NewCatalog(root, true)
	bt := testBarType(t)

	// Gap between 199 and 300.
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 100), barAt(t, bt, 199)}))
	require.NoError(t, c.WriteBars([]model.Bar{barAt(t, bt, 300), barAt(t, bt, 399)}))

	dir := c.DataDir("bar", bt.String())
	assert.Error(t, c.ConsolidateByPeriod(dir, 1000, 0, 0))
}
