package cost

import (
	"errors"
	"math"
	"testing"
	"time"

	"trades-backtest/internal/errs"
	"trades-backtest/internal/market"
)

func testBar(close float64) market.Bar {
	return market.Bar{Timestamp: time.Unix(60, 0).UTC(), Open: close, High: close, Low: close, Close: close}
}

func TestSlippage_FixedFraction(t *testing.T) {
	m, err := New(Config{
		Slippage:   Policy{Model: SlippageFixedFraction, Value: 0.01},
		Commission: Policy{Model: CommissionFixed, Value: 0},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	buy := Order{Side: SideBuy, Quantity: 2, Price: 100}
	cost, err := m.Slippage(buy, testBar(100))
	if err != nil || cost != 2 {
		t.Fatalf("expected slippage cost 2, got %v err=%v", cost, err)
	}
	price, err := m.FillPrice(buy, testBar(100))
	if err != nil || price != 101 {
		t.Fatalf("expected buy fill price 101, got %v err=%v", price, err)
	}

	sell := Order{Side: SideSell, Quantity: 2, Price: 100}
	price, err = m.FillPrice(sell, testBar(100))
	if err != nil || price != 99 {
		t.Fatalf("expected sell fill price 99, got %v err=%v", price, err)
	}
}

func TestSlippage_FixedAmount(t *testing.T) {
	m, err := New(Config{
		Slippage:   Policy{Model: "Fixed_Amount", Value: 0.5},
		Commission: Policy{Model: CommissionFixed},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	order := Order{Side: SideSell, Quantity: 4, Price: 10}
	cost, err := m.Slippage(order, testBar(10))
	if err != nil || cost != 2 {
		t.Fatalf("expected slippage cost 2, got %v err=%v", cost, err)
	}
	price, _ := m.FillPrice(order, testBar(10))
	if price != 9.5 {
		t.Fatalf("expected fill price 9.5, got %v", price)
	}
}

func TestCommission_Models(t *testing.T) {
	order := Order{Side: SideBuy, Quantity: 3, Price: 20}
	cases := []struct {
		policy Policy
		want   float64
	}{
		{Policy{Model: CommissionFixed, Value: 1}, 1},
		{Policy{Model: CommissionPerUnit, Value: 0.25}, 0.75},
		{Policy{Model: CommissionPercentage, Value: 0.001}, 0.06},
	}
	for _, c := range cases {
		m, err := New(Config{Slippage: Policy{Model: SlippageFixedAmount}, Commission: c.policy})
		if err != nil {
			t.Fatalf("New(%s) returned error: %v", c.policy.Model, err)
		}
		fee, err := m.Commission(order, 20)
		if err != nil {
			t.Fatalf("Commission(%s) returned error: %v", c.policy.Model, err)
		}
		if math.Abs(fee-c.want) > 1e-12 {
			t.Errorf("%s: expected %v got %v", c.policy.Model, c.want, fee)
		}
	}
}

func TestInvalidOrder(t *testing.T) {
	m, _ := New(Config{Slippage: Policy{Model: SlippageFixedAmount}, Commission: Policy{Model: CommissionFixed, Value: 1}})

	if _, err := m.Slippage(Order{Side: SideBuy, Quantity: 0, Price: 10}, testBar(10)); !errors.Is(err, errs.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder for zero quantity, got %v", err)
	}
	if _, err := m.Commission(Order{Side: SideBuy, Quantity: -1, Price: 10}, 10); !errors.Is(err, errs.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder for negative quantity, got %v", err)
	}
	if _, err := m.FillPrice(Order{Side: SideBuy, Quantity: 1, Price: math.Inf(1)}, testBar(10)); !errors.Is(err, errs.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder for infinite price, got %v", err)
	}
	if _, err := m.Commission(Order{Side: SideSell, Quantity: 1, Price: 10}, math.NaN()); !errors.Is(err, errs.ErrInvalidOrder) {
		t.Fatalf("expected ErrInvalidOrder for NaN fill price, got %v", err)
	}
}

func TestNew_ConfigurationErrors(t *testing.T) {
	cases := []Config{
		{Slippage: Policy{Model: "random"}, Commission: Policy{Model: CommissionFixed}},
		{Slippage: Policy{Model: SlippageFixedAmount}, Commission: Policy{Model: "tiered"}},
		{Slippage: Policy{Model: SlippageFixedAmount, Value: -1}, Commission: Policy{Model: CommissionFixed}},
		{Slippage: Policy{Model: SlippageFixedAmount}, Commission: Policy{Model: CommissionFixed, Value: math.NaN()}},
	}
	for i, cfg := range cases {
		if _, err := New(cfg); !errors.Is(err, errs.ErrConfiguration) {
			t.Errorf("case %d: expected ErrConfiguration, got %v", i, err)
		}
	}
}

func TestNumericOverflow(t *testing.T) {
	m, _ := New(Config{Slippage: Policy{Model: SlippageFixedFraction, Value: 0.5}, Commission: Policy{Model: CommissionPercentage, Value: 1}})
	order := Order{Side: SideBuy, Quantity: math.MaxFloat64, Price: math.MaxFloat64}
	if _, err := m.Slippage(order, testBar(1)); !errors.Is(err, errs.ErrNumeric) {
		t.Fatalf("expected ErrNumeric on overflow, got %v", err)
	}
}
