// Package csvfile reads daily history from local CSV files for offline runs.
package csvfile

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/signalbench/internal/collector"
	"github.com/newthinker/signalbench/internal/core"
)

var dateLayouts = []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339}

// CSVFile loads <dir>/<SYMBOL>.csv with a date,open,high,low,close,volume
// header. Column order is free and names are case-insensitive; volume is
// optional.
type CSVFile struct {
	dir string
	loc *time.Location
}

// New creates a CSV collector. Dates without a zone are read in loc.
func New(dir string, loc *time.Location) *CSVFile {
	if loc == nil {
		loc = time.UTC
	}
	return &CSVFile{dir: dir, loc: loc}
}

func (c *CSVFile) Name() string {
	return "csv"
}

func (c *CSVFile) Init(cfg collector.Config) error {
	if cfg.Dir != "" {
		c.dir = cfg.Dir
	}
	if c.dir == "" {
		return core.WrapError(core.ErrConfigMissing, fmt.Errorf("csv collector needs a directory"))
	}
	return nil
}

// Path returns the file read for symbol.
func (c *CSVFile) Path(symbol string) string {
	return filepath.Join(c.dir, strings.ToUpper(symbol)+".csv")
}

func (c *CSVFile) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	if symbol == "" || strings.ContainsAny(symbol, `/\`) || strings.Contains(symbol, "..") {
		return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("invalid symbol %q", symbol))
	}

	f, err := os.Open(c.Path(symbol))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, core.WrapError(core.ErrSymbolNotFound, fmt.Errorf("%s: %w", symbol, err))
		}
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}
	defer f.Close()

	bars, err := c.parse(f, symbol, interval)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("%s: %w", c.Path(symbol), err))
	}

	out := bars[:0]
	for _, b := range bars {
		if !start.IsZero() && b.Time.Before(start) {
			continue
		}
		if !end.IsZero() && b.Time.After(endOfDay(end, c.loc)) {
			continue
		}
		out = append(out, b)
	}
	return out, ctx.Err()
}

func (c *CSVFile) parse(r io.Reader, symbol, interval string) ([]core.OHLCV, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, name := range []string{"date", "open", "high", "low", "close"} {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("missing column %q", name)
		}
	}

	var bars []core.OHLCV
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		bar := core.OHLCV{Symbol: symbol, Interval: interval}
		if bar.Time, err = c.parseTime(rec[cols["date"]]); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		fields := []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low}, {"close", &bar.Close},
		}
		for _, fd := range fields {
			if *fd.dst, err = strconv.ParseFloat(rec[cols[fd.name]], 64); err != nil {
				return nil, fmt.Errorf("line %d %s: %w", line, fd.name, err)
			}
		}
		if i, ok := cols["volume"]; ok && rec[i] != "" {
			v, err := strconv.ParseFloat(rec[i], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d volume: %w", line, err)
			}
			bar.Volume = int64(v)
		}
		bars = append(bars, bar)
	}

	sort.SliceStable(bars, func(i, j int) bool {
		return bars[i].Time.Before(bars[j].Time)
	})
	return bars, nil
}

func (c *CSVFile) parseTime(s string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, strings.TrimSpace(s), c.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func endOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc).Add(-time.Nanosecond)
}

// WriteHistory writes bars in the format FetchHistory reads.
func WriteHistory(w io.Writer, bars []core.OHLCV) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		if err := cw.Write([]string{
			b.Time.Format("2006-01-02"),
			formatF(b.Open), formatF(b.High), formatF(b.Low), formatF(b.Close),
			strconv.FormatInt(b.Volume, 10),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
