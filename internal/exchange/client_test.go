package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"

	"trades-backtest/internal/config"
)

type fakeFeed struct {
	candles []ccxt.OHLCV
	fails   []error
	calls   int
	loads   int
}

func (f *fakeFeed) source() source {
	return source{
		loadMarkets: func() error {
			f.loads++
			return nil
		},
		fetchOHLCV: func(_, _ string, since, limit int64) ([]ccxt.OHLCV, error) {
			f.calls++
			if len(f.fails) > 0 {
				err := f.fails[0]
				f.fails = f.fails[1:]
				return nil, err
			}
			var page []ccxt.OHLCV
			for _, c := range f.candles {
				if c.Timestamp >= since && int64(len(page)) < limit {
					page = append(page, c)
				}
			}
			return page, nil
		},
	}
}

func testConfig() config.ExchangeConfig {
	return config.ExchangeConfig{
		Name: "fake",
		Retry: config.RetryConfig{
			MaxAttempts: 3,
			MinDelay:    time.Millisecond,
			MaxDelay:    2 * time.Millisecond,
		},
	}
}

func hourly(n int) []ccxt.OHLCV {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	out := make([]ccxt.OHLCV, n)
	for i := range out {
		price := float64(100 + i)
		out[i] = ccxt.OHLCV{Timestamp: start + int64(i)*3_600_000, Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 5}
	}
	return out
}

func TestFetchBars_RetriesTransientErrors(t *testing.T) {
	feed := &fakeFeed{
		candles: hourly(3),
		fails:   []error{&ccxt.Error{Type: ccxt.NetworkErrorErrType, Message: "reset"}},
	}
	client := newClient(testConfig(), feed.source(), nil)

	bars, err := client.FetchBars(context.Background(), "BTC/USDT", "1h", time.Time{}, 3)
	if err != nil {
		t.Fatalf("FetchBars returned error: %v", err)
	}
	if len(bars) != 3 || feed.calls != 2 || feed.loads != 1 {
		t.Fatalf("unexpected result: bars=%d calls=%d loads=%d", len(bars), feed.calls, feed.loads)
	}
	if bars[0].Timestamp.Location() != time.UTC || bars[2].Close != 102 {
		t.Fatalf("unexpected conversion: %+v", bars)
	}
}

func TestFetchBars_StopsOnMaintenance(t *testing.T) {
	feed := &fakeFeed{
		candles: hourly(3),
		fails:   []error{&ccxt.Error{Type: ccxt.OnMaintenanceErrType}},
	}
	client := newClient(testConfig(), feed.source(), nil)

	_, err := client.FetchBars(context.Background(), "BTC/USDT", "1h", time.Time{}, 3)
	if !errors.Is(err, ErrMaintenance) {
		t.Fatalf("expected ErrMaintenance, got %v", err)
	}
	if feed.calls != 1 {
		t.Fatalf("expected a single call, got %d", feed.calls)
	}
}

func TestFetchBars_GivesUpAfterMaxAttempts(t *testing.T) {
	timeout := &ccxt.Error{Type: ccxt.RequestTimeoutErrType}
	feed := &fakeFeed{fails: []error{timeout, timeout, timeout, timeout}}
	client := newClient(testConfig(), feed.source(), nil)

	if _, err := client.FetchBars(context.Background(), "BTC/USDT", "1h", time.Time{}, 3); err == nil {
		t.Fatalf("expected error after retries")
	}
	if feed.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", feed.calls)
	}
}

func TestFetchBars_SinceFilter(t *testing.T) {
	feed := &fakeFeed{candles: hourly(5)}
	client := newClient(testConfig(), feed.source(), nil)

	since := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
	bars, err := client.FetchBars(context.Background(), "BTC/USDT", "1h", since, 10)
	if err != nil {
		t.Fatalf("FetchBars returned error: %v", err)
	}
	if len(bars) != 3 || !bars[0].Timestamp.Equal(since) {
		t.Fatalf("unexpected bars: %+v", bars)
	}
}

func TestConvertOHLCV_SortsAndDeduplicates(t *testing.T) {
	raw := hourly(3)
	shuffled := []ccxt.OHLCV{raw[2], raw[0], raw[1], raw[0]}
	bars := convertOHLCV(shuffled)
	if len(bars) != 3 {
		t.Fatalf("expected 3 bars, got %d", len(bars))
	}
	for i := 1; i < len(bars); i++ {
		if !bars[i].Timestamp.After(bars[i-1].Timestamp) {
			t.Fatalf("bars not strictly increasing at %d", i)
		}
	}
}

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want outcome
	}{
		{"canceled", context.Canceled, giveUp},
		{"rate limit", &ccxt.Error{Type: ccxt.RateLimitExceededErrType}, retry},
		{"wrapped timeout", fmt.Errorf("page 2: %w", &ccxt.Error{Type: ccxt.RequestTimeoutErrType}), retry},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, retry},
		{"maintenance", &ccxt.Error{Type: ccxt.OnMaintenanceErrType, Message: " upgrade "}, maintenance},
		{"plain", errors.New("bad symbol"), giveUp},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err, got := classifyError(tc.err)
			if got != tc.want {
				t.Fatalf("outcome %d, want %d", got, tc.want)
			}
			if tc.want == maintenance && (!errors.Is(err, ErrMaintenance) || err.Error() != "exchange on maintenance: upgrade") {
				t.Fatalf("unexpected maintenance error %v", err)
			}
		})
	}
	if !IsRetryable(&ccxt.Error{Type: ccxt.DDoSProtectionErrType}) || IsRetryable(nil) {
		t.Fatalf("unexpected IsRetryable result")
	}
}

func TestBackoff_DoublesUpToMax(t *testing.T) {
	b := newBackoff(config.RetryConfig{MinDelay: 100 * time.Millisecond, MaxDelay: 350 * time.Millisecond})
	if b.attempts != 1 {
		t.Fatalf("expected a single attempt by default, got %d", b.attempts)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 350 * time.Millisecond, 350 * time.Millisecond}
	for i, w := range want {
		if got := b.delay(i + 1); got != w {
			t.Fatalf("delay(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestFetchBars_StopsWhenContextCanceled(t *testing.T) {
	cfg := testConfig()
	cfg.Retry.MinDelay = time.Hour
	cfg.Retry.MaxDelay = time.Hour
	ctx, cancel := context.WithCancel(context.Background())
	feed := &fakeFeed{candles: hourly(2)}
	src := feed.source()
	fetch := src.fetchOHLCV
	src.fetchOHLCV = func(symbol, timeframe string, since, limit int64) ([]ccxt.OHLCV, error) {
		if feed.calls == 0 {
			feed.calls++
			cancel()
			return nil, &ccxt.Error{Type: ccxt.NetworkErrorErrType}
		}
		return fetch(symbol, timeframe, since, limit)
	}

	_, err := newClient(cfg, src, nil).FetchBars(ctx, "BTC/USDT", "1h", time.Time{}, 2)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if feed.calls != 1 {
		t.Fatalf("expected no retry after cancel, got %d calls", feed.calls)
	}
}

func TestNewClient_UnknownExchange(t *testing.T) {
	if _, err := NewClient(config.ExchangeConfig{Name: "nowhere"}, nil); err == nil {
		t.Fatalf("expected error for unknown exchange")
	}
}

func TestMarketDataService_FetchAll(t *testing.T) {
	feed := &fakeFeed{candles: hourly(4)}
	svc := NewMarketDataService(newClient(testConfig(), feed.source(), nil), nil)

	out, err := svc.FetchAll(context.Background(), []Request{
		{Name: "a", Symbol: "BTC/USDT", Timeframe: "1h", Limit: 2},
	})
	if err != nil {
		t.Fatalf("FetchAll returned error: %v", err)
	}
	if len(out["a"]) != 2 {
		t.Fatalf("expected 2 bars for a, got %d", len(out["a"]))
	}
}
