package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"trades-backtest/internal/backtest"
	"trades-backtest/internal/config"
	"trades-backtest/internal/market"
	"trades-backtest/internal/strategy"
)

func newTestArchive(t *testing.T) *Archive {
	t.Helper()
	s, err := NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 4})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	archive, err := NewArchive(s, nil)
	if err != nil {
		t.Fatalf("NewArchive returned error: %v", err)
	}
	return archive
}

func sampleRun(t *testing.T) (backtest.Config, backtest.Result) {
	t.Helper()
	cfg := backtest.Config{
		Symbol:        "BTC/USDT",
		InitialEquity: 1000,
		Strategy: strategy.Config{
			Kind: strategy.KindScripted,
			Schedule: []strategy.Instruction{
				{Bar: 0, Signal: "long"},
				{Bar: 2, Signal: "short"},
			},
		},
	}
	engine, err := backtest.NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine returned error: %v", err)
	}

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	closes := []float64{100, 104, 103, 99}
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{Timestamp: start.Add(time.Duration(i) * time.Hour), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	result, err := engine.Run(context.Background(), bars)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return engine.Config(), result
}

func TestArchive_SaveAndLoadRun(t *testing.T) {
	archive := newTestArchive(t)
	cfg, result := sampleRun(t)

	id, err := archive.SaveRun(context.Background(), "btc-hourly", cfg, result)
	if err != nil {
		t.Fatalf("SaveRun returned error: %v", err)
	}
	if id == "" {
		t.Fatalf("expected generated id")
	}

	detail, err := archive.LoadRun(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadRun returned error: %v", err)
	}
	if detail.Name != "btc-hourly" || detail.Symbol != "BTC/USDT" || detail.Strategy != strategy.KindScripted {
		t.Fatalf("unexpected summary: %+v", detail.RunSummary)
	}
	if detail.Report.PnL != result.Report.PnL || detail.FinalEquity != result.Report.FinalEquity {
		t.Fatalf("report mismatch: %+v vs %+v", detail.Report, result.Report)
	}
	if len(detail.Ledger) != len(result.Ledger) {
		t.Fatalf("expected %d fills, got %d", len(result.Ledger), len(detail.Ledger))
	}
	for i := range detail.Ledger {
		got, want := detail.Ledger[i], result.Ledger[i]
		if got.Side != want.Side || got.Price != want.Price || got.Forced != want.Forced || !got.Timestamp.Equal(want.Timestamp) {
			t.Fatalf("fill %d mismatch: %+v vs %+v", i, got, want)
		}
	}
	if len(detail.EquityCurve) != 4 || detail.EquityCurve[3].Equity != result.EquityCurve[3].Equity ||
		detail.EquityCurve[3].PnL != result.EquityCurve[3].PnL {
		t.Fatalf("unexpected equity curve: %+v", detail.EquityCurve)
	}
	if detail.Config.InitialEquity != 1000 || len(detail.Config.Strategy.Schedule) != 2 {
		t.Fatalf("unexpected config: %+v", detail.Config)
	}
}

func TestArchive_ListRunsNewestFirst(t *testing.T) {
	archive := newTestArchive(t)
	cfg, result := sampleRun(t)

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i, name := range []string{"first", "second", "third"} {
		archive.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		id, err := archive.SaveRun(context.Background(), name, cfg, result)
		if err != nil {
			t.Fatalf("SaveRun returned error: %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := archive.ListRuns(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListRuns returned error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].Name != "second" {
		t.Fatalf("unexpected runs: %+v", runs)
	}
}

func TestArchive_LoadRunNotFound(t *testing.T) {
	archive := newTestArchive(t)
	if _, err := archive.LoadRun(context.Background(), "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestNewArchive_NilStore(t *testing.T) {
	if _, err := NewArchive(nil, nil); err == nil {
		t.Fatalf("expected error for nil store")
	}
}
