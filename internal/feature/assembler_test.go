package feature

import (
	"testing"

	"microflow/internal/domain"
	"microflow/internal/hawkes"
	"microflow/pkg/quant"
)

func TestAssembler(t *testing.T) {
	newBook := func(ts int64) *domain.BookSnapshot {
		return &domain.BookSnapshot{
			Symbol: "BTCUSDT",
			Time:   quant.TimeStamp(ts),
			Bids:   []domain.BookLevel{{Price: 100, Volume: 20}, {Price: 99, Volume: 10}},
			Asks:   []domain.BookLevel{{Price: 101, Volume: 10}, {Price: 102, Volume: 10}},
		}
	}

	t.Run("book derived fields", func(t *testing.T) {
		a, err := NewAssembler(AssemblerConfig{})
		if err != nil {
			t.Fatal(err)
		}

		fs := a.Assemble(newBook(1), hawkes.Features{BuyIntensity: 0.2, SellIntensity: 0.1, BuySellRatio: 2})
		approx(t, fs.MidPrice, 100.5, 1e-12)
		approx(t, fs.MicroPrice, (100*10.0+101*20.0)/30, 1e-12)
		approx(t, fs.Spread, 1, 1e-12)
		approx(t, fs.RelativeSpread, 1.0/100.5, 1e-12)
		approx(t, fs.BookImbalance, (20.0-10)/30, 1e-12)
		approx(t, fs.HawkesBuyIntensity, 0.2, 1e-12)
		approx(t, fs.HawkesBuySellRatio, 2, 1e-12)
		if fs.Symbol != "BTCUSDT" {
			t.Fatalf("symbol = %q", fs.Symbol)
		}
	})

	t.Run("ofi levels must cover the pinned depths", func(t *testing.T) {
		if _, err := NewAssembler(AssemblerConfig{OFILevels: []int{2, 4}}); err == nil {
			t.Fatal("expected error: configured levels skip depths 1, 3 and 5")
		}
		if _, err := NewAssembler(AssemblerConfig{OFILevels: []int{1, 2, 3, 5, 10}}); err != nil {
			t.Fatalf("superset of pinned depths rejected: %v", err)
		}
	})

	t.Run("neutral defaults without tick history", func(t *testing.T) {
		a, err := NewAssembler(AssemblerConfig{})
		if err != nil {
			t.Fatal(err)
		}
		fs := a.Assemble(newBook(1), hawkes.Features{})
		if fs.RSI != 50 {
			t.Fatalf("RSI = %v, want neutral 50", fs.RSI)
		}
		if fs.BollingerPosition != 0.5 {
			t.Fatalf("bollinger = %v, want 0.5", fs.BollingerPosition)
		}
		if fs.KyleLambda != 0 || fs.AmihudIlliquidity != 0 {
			t.Fatal("expected zero liquidity features without ticks")
		}
		if fs.OFI1 != 0 {
			t.Fatalf("OFI1 = %v, want 0 on first snapshot", fs.OFI1)
		}
	})

	t.Run("ofi is sequential across assemblies", func(t *testing.T) {
		a, err := NewAssembler(AssemblerConfig{})
		if err != nil {
			t.Fatal(err)
		}
		a.Assemble(newBook(1), hawkes.Features{})

		b2 := newBook(2)
		b2.Bids[0].Volume = 35 // +15 at best bid
		fs := a.Assemble(b2, hawkes.Features{})
		approx(t, fs.OFI1, 15, 1e-12)

		a.ResetOFI()
		b3 := newBook(3)
		b3.Bids[0].Volume = 50
		if fs := a.Assemble(b3, hawkes.Features{}); fs.OFI1 != 0 {
			t.Fatalf("OFI1 = %v, want 0 after reset", fs.OFI1)
		}
	})

	t.Run("tick derived fields appear with history", func(t *testing.T) {
		a, err := NewAssembler(AssemblerConfig{VolatilityWindow: 16})
		if err != nil {
			t.Fatal(err)
		}

		price := 100.0
		for i := 0; i < 150; i++ {
			if i%2 == 0 {
				price += 0.5
			} else {
				price -= 0.2
			}
			a.OnTick(domain.Tick{Time: quant.TimeStamp(i), Last: price, Volume: 10})
		}
		if a.BufferLen() != 150 {
			t.Fatalf("buffer = %d, want 150", a.BufferLen())
		}

		fs := a.Assemble(newBook(100), hawkes.Features{})
		if fs.RealizedVolatility <= 0 {
			t.Fatalf("realized vol = %v, want > 0", fs.RealizedVolatility)
		}
		if fs.AmihudIlliquidity <= 0 {
			t.Fatalf("amihud = %v, want > 0", fs.AmihudIlliquidity)
		}
		if fs.FracDiffPrice == 0 {
			t.Fatal("expected non-zero fracdiff price with full buffer")
		}
		if fs.RSI == 50 {
			t.Fatal("expected RSI to move off neutral")
		}
	})

	t.Run("ignores non-positive tick prices", func(t *testing.T) {
		a, err := NewAssembler(AssemblerConfig{})
		if err != nil {
			t.Fatal(err)
		}
		a.OnTick(domain.Tick{Last: 0, Volume: 5})
		a.OnTick(domain.Tick{Last: -1, Volume: 5})
		if a.BufferLen() != 0 {
			t.Fatalf("buffer = %d, want 0", a.BufferLen())
		}
	})
}
