package feed

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"trades-backtest/internal/config"
	"trades-backtest/internal/errs"
	"trades-backtest/internal/market"
)

func TestReadCSV(t *testing.T) {
	input := `timestamp,open,high,low,close,volume
2024-01-01T00:00:00Z,10,11,9,10.5,100
1704070800, 10.5, 12, 10, 11.5, 80
`
	bars, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV returned error: %v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(bars))
	}
	if !bars[1].Timestamp.Equal(time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected unix timestamp conversion: %v", bars[1].Timestamp)
	}
	if bars[1].Close != 11.5 || bars[0].Volume != 100 {
		t.Fatalf("unexpected values: %+v", bars)
	}
	if err := market.ValidateSeries(bars); err != nil {
		t.Fatalf("loaded series failed validation: %v", err)
	}
}

func TestReadCSV_ReorderedColumns(t *testing.T) {
	input := "close,volume,timestamp,open,high,low\n5,1,0,5,5,5\n"
	bars, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV returned error: %v", err)
	}
	if bars[0].Close != 5 || !bars[0].Timestamp.Equal(time.Unix(0, 0)) {
		t.Fatalf("unexpected bar: %+v", bars[0])
	}
}

func TestReadCSV_Errors(t *testing.T) {
	cases := map[string]struct {
		input string
		want  error
	}{
		"empty":          {"", errs.ErrEmptyRun},
		"missing column": {"timestamp,open,high,low,close\n", errs.ErrConfiguration},
		"bad number":     {"timestamp,open,high,low,close,volume\n0,1,1,1,x,1\n", errs.ErrInvalidParameter},
		"bad timestamp":  {"timestamp,open,high,low,close,volume\nyesterday,1,1,1,1,1\n", errs.ErrInvalidParameter},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tc.input)); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParquetRoundTripKeepsOrder(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	bars := []market.Bar{
		{Timestamp: base.Add(time.Hour), Open: 2, High: 3, Low: 1, Close: 2.5, Volume: 7},
		{Timestamp: base, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3},
	}
	path := filepath.Join(t.TempDir(), "nested", "bars.parquet")
	if err := WriteParquet(path, bars); err != nil {
		t.Fatalf("WriteParquet returned error: %v", err)
	}

	loaded, err := LoadFile(config.SourceConfig{Name: "p", Kind: config.SourceParquet, Path: path})
	if err != nil {
		t.Fatalf("LoadFile returned error: %v", err)
	}
	if len(loaded) != 2 || !loaded[0].Timestamp.Equal(base) || loaded[1].Close != 2.5 {
		t.Fatalf("unexpected bars: %+v", loaded)
	}
}

func TestLoadFile_RejectsExchangeSource(t *testing.T) {
	_, err := LoadFile(config.SourceConfig{Name: "x", Kind: config.SourceExchange})
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
