package backtest

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/evdnx/govr/types"
)

const csvDateLayout = "2006-01-02"

// LoadCSV reads `Date,Open,High,Low,Close,Volume` bar history from a file.
// A header row is skipped when present.  Rows must be in ascending date
// order; the loader does not sort.
func LoadCSV(path string) ([]time.Time, []types.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) > 0 && rows[0][0] == "Date" {
		rows = rows[1:]
	}

	dates := make([]time.Time, 0, len(rows))
	bars := make([]types.Bar, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, nil, fmt.Errorf("%s row %d: want 6 columns, got %d", path, i+1, len(row))
		}
		date, err := time.Parse(csvDateLayout, row[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		var vals [5]float64
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(row[j+1], 64)
			if err != nil {
				return nil, nil, fmt.Errorf("%s row %d column %d: %w", path, i+1, j+2, err)
			}
			vals[j] = v
		}
		dates = append(dates, date)
		bars = append(bars, types.Bar{Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]})
	}
	return dates, bars, nil
}

// LoadCSVSeries reads a `Date,Value` file, e.g. a volatility index or a
// sentiment ratio history.
func LoadCSVSeries(path string) ([]time.Time, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) > 0 && rows[0][0] == "Date" {
		rows = rows[1:]
	}

	dates := make([]time.Time, 0, len(rows))
	values := make([]float64, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, nil, fmt.Errorf("%s row %d: want 2 columns, got %d", path, i+1, len(row))
		}
		date, err := time.Parse(csvDateLayout, row[0])
		if err != nil {
			return nil, nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		v, err := strconv.ParseFloat(row[1], 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		dates = append(dates, date)
		values = append(values, v)
	}
	return dates, values, nil
}
