package indicator

import (
	"errors"
	"math"
	"testing"
	"time"

	"trades-backtest/internal/errs"
	"trades-backtest/internal/market"
)

func TestSMA_PadsUntilWindowFills(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	out, err := SMA(values, 3)
	if err != nil {
		t.Fatalf("SMA returned error: %v", err)
	}
	if len(out) != len(values) {
		t.Fatalf("expected %d values, got %d", len(values), len(out))
	}
	for i := 0; i < 2; i++ {
		if out[i].OK {
			t.Fatalf("expected index %d to be unavailable", i)
		}
	}
	expected := []float64{2, 3, 4}
	for i, want := range expected {
		got, ok := out.At(i + 2)
		if !ok || got != want {
			t.Fatalf("sma mismatch at %d: got %v ok=%v want %v", i+2, got, ok, want)
		}
	}
}

func TestEMA_SeededWithSMA(t *testing.T) {
	out, err := EMA([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("EMA returned error: %v", err)
	}
	expected := []float64{2, 3, 4}
	for i, want := range expected {
		got, ok := out.At(i + 2)
		if !ok || math.Abs(got-want) > 1e-12 {
			t.Fatalf("ema mismatch at %d: got %v want %v", i+2, got, want)
		}
	}
}

func TestMovingAverages_WindowOne(t *testing.T) {
	values := []float64{4, 5, 6}
	for name, fn := range map[string]func([]float64, int) (Values, error){"sma": SMA, "ema": EMA, "wma": WMA} {
		out, err := fn(values, 1)
		if err != nil {
			t.Fatalf("%s returned error: %v", name, err)
		}
		for i, want := range values {
			got, ok := out.At(i)
			if !ok || got != want {
				t.Fatalf("%s mismatch at %d: got %v want %v", name, i, got, want)
			}
		}
	}
}

func TestIndicators_InvalidWindow(t *testing.T) {
	values := []float64{1, 2, 3}
	if _, err := SMA(values, 0); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for window 0, got %v", err)
	}
	if _, err := EMA(values, 4); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for window > len, got %v", err)
	}
	if _, err := RSI(values, 3); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for rsi without enough data, got %v", err)
	}
	if _, err := ATR(values, values[:2], values, 2); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for mismatched atr input, got %v", err)
	}
}

func TestRSI_LookbackAndRange(t *testing.T) {
	values := []float64{10, 11, 10.5, 11.5, 12, 11.8, 12.4, 12.1}
	out, err := RSI(values, 3)
	if err != nil {
		t.Fatalf("RSI returned error: %v", err)
	}
	for i := range values {
		v, ok := out.At(i)
		if i < 3 {
			if ok {
				t.Fatalf("expected index %d unavailable", i)
			}
			continue
		}
		if !ok || v < 0 || v > 100 {
			t.Fatalf("rsi out of range at %d: %v ok=%v", i, v, ok)
		}
	}
}

func TestWMA_LinearWeights(t *testing.T) {
	out, err := WMA([]float64{1, 2, 3, 4, 5}, 3)
	if err != nil {
		t.Fatalf("WMA returned error: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, ok := out.At(i); ok {
			t.Fatalf("expected index %d unavailable", i)
		}
	}
	// weights 1,2,3 over a divider of 6
	expected := []float64{14.0 / 6, 20.0 / 6, 26.0 / 6}
	for i, want := range expected {
		got, ok := out.At(i + 2)
		if !ok || math.Abs(got-want) > 1e-12 {
			t.Fatalf("wma mismatch at %d: got %v want %v", i+2, got, want)
		}
	}
}

func TestATR_WilderSmoothing(t *testing.T) {
	closes := []float64{10, 10, 10, 10, 10, 10}
	high := make([]float64, len(closes))
	low := make([]float64, len(closes))
	for i, c := range closes {
		high[i], low[i] = c+1, c-1
	}
	high[4] = 14

	out, err := ATR(high, low, closes, 3)
	if err != nil {
		t.Fatalf("ATR returned error: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, ok := out.At(i); ok {
			t.Fatalf("expected index %d unavailable", i)
		}
	}
	// true range 2,2,2 seeds 2; bar 4 has range 5
	expected := map[int]float64{3: 2, 4: 3, 5: 8.0 / 3}
	for i, want := range expected {
		got, ok := out.At(i)
		if !ok || math.Abs(got-want) > 1e-12 {
			t.Fatalf("atr mismatch at %d: got %v want %v", i, got, want)
		}
	}

	if _, err := ATR(high[:3], low[:3], closes[:3], 3); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for short series, got %v", err)
	}
	if _, err := ATR(high, low[:5], closes, 3); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for mismatched inputs, got %v", err)
	}
}

func TestIndicators_Deterministic(t *testing.T) {
	values := []float64{10.1, 10.7, 9.9, 11.3, 12.8, 12.1, 13.4, 12.9, 14.2}
	a, _ := EMA(values, 4)
	b, _ := EMA(values, 4)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("ema not deterministic at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func makeBars(closes ...float64) []market.Bar {
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Timestamp: time.Unix(int64(i+1)*60, 0).UTC(),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

func TestCompute_FrameAndView(t *testing.T) {
	bars := makeBars(1, 2, 3, 4, 5, 6)
	frame, err := Compute(bars, map[string]int{"sma_fast": 2, "sma_slow": 3, "atr": 2})
	if err != nil {
		t.Fatalf("Compute returned error: %v", err)
	}
	names := frame.Names()
	if len(names) != 3 || names[0] != "atr" || names[1] != "sma_fast" || names[2] != "sma_slow" {
		t.Fatalf("unexpected names %v", names)
	}

	view := frame.View(2)
	if v, ok := view.Value("sma_slow"); !ok || v != 2 {
		t.Fatalf("expected sma_slow=2 at index 2, got %v ok=%v", v, ok)
	}
	if v, ok := view.Previous("sma_fast"); !ok || v != 1.5 {
		t.Fatalf("expected previous sma_fast=1.5, got %v ok=%v", v, ok)
	}
	if view.Close() != 3 {
		t.Fatalf("expected close 3, got %v", view.Close())
	}
	if _, ok := view.Value("missing"); ok {
		t.Fatalf("expected missing indicator to be unavailable")
	}
}

func TestCompute_Errors(t *testing.T) {
	bars := makeBars(1, 2, 3)
	if _, err := Compute(bars, map[string]int{"macd": 3}); !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown kind, got %v", err)
	}
	if _, err := Compute(bars, map[string]int{"sma": 0}); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for window 0, got %v", err)
	}
	if _, err := Compute(bars, map[string]int{"ema_long": 10}); !errors.Is(err, errs.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for window > len, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	cases := map[string]string{"sma_fast": "sma", "EMA": "ema", "rsi_14": "rsi", "atr": "atr"}
	for name, want := range cases {
		if got := KindOf(name); got != want {
			t.Errorf("KindOf(%q)=%q want %q", name, got, want)
		}
	}
}
