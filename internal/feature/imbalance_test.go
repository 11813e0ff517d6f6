package feature

import (
	"math"
	"testing"

	"microflow/internal/domain"
)

func approx(t *testing.T, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Fatalf("got %v, want %v (tol %v)", got, want, tol)
	}
}

func TestSimpleImbalance(t *testing.T) {
	cases := []struct {
		name     string
		bid, ask float64
		want     float64
	}{
		{"bid heavy", 30, 10, 0.5},
		{"ask heavy", 10, 30, -0.5},
		{"balanced", 20, 20, 0},
		{"empty book", 0, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SimpleImbalance(tc.bid, tc.ask); got != tc.want {
				t.Fatalf("SimpleImbalance(%v, %v) = %v, want %v", tc.bid, tc.ask, got, tc.want)
			}
		})
	}
}

func TestWeightedImbalance(t *testing.T) {
	b := book(
		[]domain.BookLevel{{Price: 100, Volume: 10}, {Price: 99, Volume: 10}},
		[]domain.BookLevel{{Price: 101, Volume: 10}, {Price: 102, Volume: 30}},
	)
	// bid = 10 + 0.5*10 = 15, ask = 10 + 0.5*30 = 25.
	approx(t, WeightedImbalance(b, 2, 0.5), -0.25, 1e-12)
}

func TestBookPressure(t *testing.T) {
	t.Run("inverse distance weighting", func(t *testing.T) {
		b := book(
			[]domain.BookLevel{{Price: 100, Volume: 10}},
			[]domain.BookLevel{{Price: 102, Volume: 20}},
		)
		// mid = 101, both levels at distance 1: (10-20)/30.
		approx(t, BookPressure(b, 1), -1.0/3, 1e-12)
	})

	t.Run("empty book", func(t *testing.T) {
		if got := BookPressure(book(nil, nil), 5); got != 0 {
			t.Fatalf("got %v, want 0", got)
		}
	})

	t.Run("level at mid is skipped", func(t *testing.T) {
		// Locked book: bid == ask == mid. Both sides are at zero
		// distance, so nothing divides by zero and pressure is 0.
		b := book(
			[]domain.BookLevel{{Price: 100, Volume: 10}},
			[]domain.BookLevel{{Price: 100, Volume: 20}},
		)
		if got := BookPressure(b, 1); got != 0 {
			t.Fatalf("got %v, want 0", got)
		}
	})
}

func TestDepthWeightedMicroPrice(t *testing.T) {
	t.Run("cross weighted vwaps", func(t *testing.T) {
		b := book(
			[]domain.BookLevel{{Price: 100, Volume: 20}},
			[]domain.BookLevel{{Price: 101, Volume: 10}},
		)
		// Single level reduces to the classic micro price:
		// (100*10 + 101*20) / 30.
		approx(t, DepthWeightedMicroPrice(b, 1), (100*10.0+101*20.0)/30, 1e-12)
	})

	t.Run("falls back to mid on one-sided volume", func(t *testing.T) {
		b := book(
			[]domain.BookLevel{{Price: 100, Volume: 20}},
			[]domain.BookLevel{{Price: 101, Volume: 0}},
		)
		approx(t, DepthWeightedMicroPrice(b, 1), 100.5, 1e-12)
	})
}

func TestImbalanceAdjustedMicroPrice(t *testing.T) {
	b := book(
		[]domain.BookLevel{{Price: 100, Volume: 10}},
		[]domain.BookLevel{{Price: 101, Volume: 30}},
	)
	// micro = (100*30 + 101*10) / 40 = 100.25, spread = 1,
	// (askVol - bidVol) / total = 0.5.
	micro := b.MicroPrice()

	t.Run("sell print shifts down on ask-heavy book", func(t *testing.T) {
		// Trade at the bid: adjustment = -0.01 * 0.5 * spread.
		approx(t, ImbalanceAdjustedMicroPrice(b, 100.1), micro-0.005, 1e-12)
	})

	t.Run("buy print shifts up on bid-heavy book", func(t *testing.T) {
		heavy := book(
			[]domain.BookLevel{{Price: 100, Volume: 30}},
			[]domain.BookLevel{{Price: 101, Volume: 10}},
		)
		// Trade at the ask: adjustment = 0.01 * 0.5 * spread.
		approx(t, ImbalanceAdjustedMicroPrice(heavy, 100.9), heavy.MicroPrice()+0.005, 1e-12)
	})

	t.Run("no trade context degrades to micro price", func(t *testing.T) {
		approx(t, ImbalanceAdjustedMicroPrice(b, 0), micro, 1e-12)
	})

	t.Run("balanced top of book needs no adjustment", func(t *testing.T) {
		even := book(
			[]domain.BookLevel{{Price: 100, Volume: 10}},
			[]domain.BookLevel{{Price: 101, Volume: 10}},
		)
		approx(t, ImbalanceAdjustedMicroPrice(even, 100.1), even.MicroPrice(), 1e-12)
	})
}

func TestRelativeSpread(t *testing.T) {
	approx(t, RelativeSpread(100, 101), 1.0/100.5, 1e-12)
	if got := RelativeSpread(0, 0); got != 0 {
		t.Fatalf("RelativeSpread(0,0) = %v, want 0", got)
	}
}

func TestEffectiveSpread(t *testing.T) {
	// Buy at 101 against mid 100.5 pays the full spread of 1.
	approx(t, EffectiveSpread(101, 100.5, 1), 1, 1e-12)
	// Sell at 100 against the same mid.
	approx(t, EffectiveSpread(100, 100.5, -1), 1, 1e-12)
}

func TestRealizedSpread(t *testing.T) {
	// Price impact moved the mid toward the buy: realized cost shrinks.
	approx(t, RealizedSpread(101, 100.8, 1), 0.4, 1e-12)
}
