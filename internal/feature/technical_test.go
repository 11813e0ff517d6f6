package feature

import "testing"

func TestRSI(t *testing.T) {
	t.Run("neutral under insufficient history", func(t *testing.T) {
		if got := RSI([]float64{100, 101}, 14); got != 50 {
			t.Fatalf("got %v, want 50", got)
		}
	})

	t.Run("no losses", func(t *testing.T) {
		if got := RSI([]float64{100, 101, 102, 103}, 3); got != 100 {
			t.Fatalf("got %v, want 100", got)
		}
	})

	t.Run("mixed window", func(t *testing.T) {
		// gains 1, losses 0.5 over period 2: RS=2, RSI=66.67.
		approx(t, RSI([]float64{1, 2, 1.5}, 2), 100-100.0/3, 1e-9)
	})
}

func TestMACDSignal(t *testing.T) {
	t.Run("zero under insufficient history", func(t *testing.T) {
		if got := MACDSignal([]float64{100, 101}, 12, 26, 9); got != 0 {
			t.Fatalf("got %v, want 0", got)
		}
	})

	t.Run("flat series stays zero", func(t *testing.T) {
		prices := make([]float64, 40)
		for i := range prices {
			prices[i] = 100
		}
		approx(t, MACDSignal(prices, 12, 26, 9), 0, 1e-12)
	})

	t.Run("uptrend is positive", func(t *testing.T) {
		prices := make([]float64, 60)
		for i := range prices {
			prices[i] = 100 + float64(i)
		}
		if got := MACDSignal(prices, 12, 26, 9); got <= 0 {
			t.Fatalf("got %v, want > 0 in an uptrend", got)
		}
	})
}

func TestBollingerPosition(t *testing.T) {
	t.Run("mid band defaults", func(t *testing.T) {
		if got := BollingerPosition([]float64{100}, 20, 2); got != 0.5 {
			t.Fatalf("got %v, want 0.5 under insufficient history", got)
		}
		flat := []float64{100, 100, 100, 100, 100}
		if got := BollingerPosition(flat, 5, 2); got != 0.5 {
			t.Fatalf("got %v, want 0.5 for zero band width", got)
		}
	})

	t.Run("clamped to [0,1]", func(t *testing.T) {
		spike := []float64{100, 100, 100, 100, 150}
		if got := BollingerPosition(spike, 5, 2); got < 0 || got > 1 {
			t.Fatalf("got %v, want within [0,1]", got)
		}
	})

	t.Run("latest at window mean is centered", func(t *testing.T) {
		// Symmetric window, last price equal to the mean.
		prices := []float64{99, 101, 99, 101, 100}
		approx(t, BollingerPosition(prices, 5, 2), 0.5, 1e-12)
	})
}
