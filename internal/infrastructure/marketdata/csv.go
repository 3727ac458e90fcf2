// Package marketdata ingests bar files produced by the data-acquisition
// pipeline. Price and indicator computation happen upstream; this package
// only maps columns onto domain.Bar.
package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yishaiam518/papertrader/internal/domain"
)

// Accepted layouts for the time column, tried in order.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ReadBarsFile loads one symbol's bar series from a CSV file. Column headers
// are matched case-insensitively: time/date/timestamp, open, high, low,
// close, volume. Every other column is treated as a precomputed indicator
// named by its lowercased header; blank or non-numeric cells leave that
// indicator absent for the row.
func ReadBarsFile(path string, symbol string) ([]domain.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadBars(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// ReadBars parses CSV bar data from r. See ReadBarsFile for the format.
func ReadBars(r io.Reader, symbol string) ([]domain.Bar, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV: %w", err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("no data rows in CSV")
	}

	cols, err := mapColumns(records[0])
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	for i, record := range records[1:] {
		line := i + 2 // 1-based, after the header

		ts, err := parseTime(record[cols.time])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		b := domain.Bar{Symbol: symbol, Time: ts}
		if b.Open, err = parsePrice(record[cols.open]); err != nil {
			return nil, fmt.Errorf("line %d: open: %w", line, err)
		}
		if b.High, err = parsePrice(record[cols.high]); err != nil {
			return nil, fmt.Errorf("line %d: high: %w", line, err)
		}
		if b.Low, err = parsePrice(record[cols.low]); err != nil {
			return nil, fmt.Errorf("line %d: low: %w", line, err)
		}
		if b.Close, err = parsePrice(record[cols.close]); err != nil {
			return nil, fmt.Errorf("line %d: close: %w", line, err)
		}
		if cols.volume >= 0 {
			if b.Volume, err = parsePrice(record[cols.volume]); err != nil {
				return nil, fmt.Errorf("line %d: volume: %w", line, err)
			}
		}

		for name, idx := range cols.indicators {
			cell := strings.TrimSpace(record[idx])
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue
			}
			if b.Indicators == nil {
				b.Indicators = make(map[string]float64)
			}
			b.Indicators[name] = v
		}

		bars = append(bars, b)
	}

	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return bars, nil
}

type columnMap struct {
	time       int
	open       int
	high       int
	low        int
	close      int
	volume     int
	indicators map[string]int
}

func mapColumns(header []string) (columnMap, error) {
	cols := columnMap{time: -1, open: -1, high: -1, low: -1, close: -1, volume: -1, indicators: make(map[string]int)}

	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(h))
		switch name {
		case "time", "date", "timestamp":
			cols.time = i
		case "open":
			cols.open = i
		case "high":
			cols.high = i
		case "low":
			cols.low = i
		case "close":
			cols.close = i
		case "volume":
			cols.volume = i
		case "symbol", "":
			// Symbol comes from the caller; the file covers one series.
		default:
			cols.indicators[name] = i
		}
	}

	switch {
	case cols.time < 0:
		return cols, fmt.Errorf("missing time/date column")
	case cols.open < 0 || cols.high < 0 || cols.low < 0 || cols.close < 0:
		return cols, fmt.Errorf("missing OHLC columns")
	}
	return cols, nil
}

func parseTime(cell string) (time.Time, error) {
	cell = strings.TrimSpace(cell)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, cell); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", cell)
}

func parsePrice(cell string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", cell)
	}
	return v, nil
}
