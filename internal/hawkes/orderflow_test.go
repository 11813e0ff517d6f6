package hawkes

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"microflow/internal/domain"
	"microflow/pkg/quant"
)

func seconds(s float64) quant.TimeStamp {
	return quant.TimeStamp(s * 1e6)
}

func TestParseFitMethod(t *testing.T) {
	for _, s := range []string{"", "mle", "MLE"} {
		if got, err := ParseFitMethod(s); err != nil || got != FitMLE {
			t.Fatalf("ParseFitMethod(%q) = %v, %v", s, got, err)
		}
	}
	for _, s := range []string{"em", "EM"} {
		if got, err := ParseFitMethod(s); err != nil || got != FitEM {
			t.Fatalf("ParseFitMethod(%q) = %v, %v", s, got, err)
		}
	}
	if _, err := ParseFitMethod("bayes"); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestOrderFlowIntensity(t *testing.T) {
	t.Run("baselines before any events", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		for i := 0; i < domain.NumOrderTypes; i++ {
			approx(t, of.Intensity(1, domain.OrderType(i)), 0.1, 1e-12)
		}
	})

	t.Run("self excitation decays", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		of.Observe(domain.OrderEvent{Time: seconds(1), Type: domain.MarketBuy})

		approx(t, of.Intensity(2, domain.MarketBuy), 0.1+0.5*math.Exp(-1), 1e-9)
		// No cross coupling configured: other types stay at baseline.
		approx(t, of.Intensity(2, domain.MarketSell), 0.1, 1e-12)
	})

	t.Run("cross coupling", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel(), CrossAlpha: 0.05})
		of.Observe(domain.OrderEvent{Time: seconds(0), Type: domain.MarketSell})

		approx(t, of.Intensity(1, domain.MarketBuy), 0.1+0.05*math.Exp(-1), 1e-9)
	})

	t.Run("out of order observations clamp", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		of.Observe(domain.OrderEvent{Time: seconds(5), Type: domain.LimitBuy})
		of.Observe(domain.OrderEvent{Time: seconds(3), Type: domain.LimitBuy})

		counts := of.EventCounts()
		if counts[domain.LimitBuy] != 2 {
			t.Fatalf("count = %d, want 2", counts[domain.LimitBuy])
		}
		// Both events now sit at t=5: just after, both contribute.
		approx(t, of.Intensity(5.0001, domain.LimitBuy), 0.1+2*0.5*math.Exp(-0.0001), 1e-6)
	})
}

func TestOrderFlowFeatures(t *testing.T) {
	t.Run("neutral ratios at baseline", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel(), CrossAlpha: 0.05})
		f := of.FeaturesAt(1)

		approx(t, f.BuyIntensity, 0.2, 1e-12)
		approx(t, f.SellIntensity, 0.2, 1e-12)
		approx(t, f.BuySellRatio, 0.5, 1e-12)
		approx(t, f.SelfExcitation, 0.5, 1e-12)
		approx(t, f.CrossExcitation, 0.05, 1e-12)
		approx(t, f.MaxBranching, 0.5, 1e-12)
		if !f.Stable {
			t.Fatal("default parameterization should be stable")
		}
	})

	t.Run("buy pressure shifts the ratio", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		for i := 0; i < 5; i++ {
			of.Observe(domain.OrderEvent{Time: seconds(float64(i) * 0.1), Type: domain.MarketBuy})
		}
		f := of.FeaturesAt(0.6)
		if f.BuySellRatio <= 0.5 {
			t.Fatalf("ratio = %v, want > 0.5 after a burst of buys", f.BuySellRatio)
		}
		if f.BuyIntensity <= f.SellIntensity {
			t.Fatal("buy intensity should exceed sell intensity")
		}
	})
}

func TestOrderFlowRefit(t *testing.T) {
	t.Run("sparse dimensions are skipped", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		of.Observe(domain.OrderEvent{Time: seconds(1), Type: domain.MarketBuy})

		statuses := of.Refit(FitEM, 10)
		for i, s := range statuses {
			if s.Converged || s.Events != 0 {
				t.Fatalf("dim %d: %+v, want untouched status for sparse history", i, s)
			}
		}
		// Parameters unchanged: baseline intensity still 0.1.
		approx(t, of.Intensity(100, domain.CancelSell), 0.1, 1e-12)
	})

	t.Run("refit updates only fitted dimensions", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		for i := 0; i < 40; i++ {
			of.Observe(domain.OrderEvent{Time: seconds(float64(i) * 0.5), Type: domain.MarketBuy})
		}

		statuses := of.Refit(FitEM, 20)
		if statuses[domain.MarketBuy].Events != 40 {
			t.Fatalf("events = %d, want 40", statuses[domain.MarketBuy].Events)
		}
		for i := 1; i < domain.NumOrderTypes; i++ {
			if statuses[i].Events != 0 {
				t.Fatalf("dim %d saw %d events, want 0", i, statuses[i].Events)
			}
		}

		if got := of.LastFitStatus(domain.MarketBuy); got != statuses[domain.MarketBuy] {
			t.Fatalf("LastFitStatus = %+v, want %+v", got, statuses[domain.MarketBuy])
		}

		// Whatever the fit produced, intensity queries stay finite.
		f := of.FeaturesAt(25)
		for i, lambda := range f.Intensities {
			if math.IsNaN(lambda) || math.IsInf(lambda, 0) || lambda < 0 {
				t.Fatalf("dim %d: intensity %v after refit", i, lambda)
			}
		}
	})

	t.Run("concurrent queries during refit", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		for i := 0; i < 60; i++ {
			of.Observe(domain.OrderEvent{Time: seconds(float64(i) * 0.2), Type: domain.LimitSell})
		}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			of.Refit(FitEM, 15)
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				f := of.FeaturesAt(15)
				if math.IsNaN(f.BuySellRatio) {
					t.Error("NaN ratio under concurrent refit")
					return
				}
			}
		}()
		wg.Wait()
	})
}

func TestOrderFlowPredictIntensity(t *testing.T) {
	t.Run("rates reflect baselines with empty history", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		rng := rand.New(rand.NewSource(17))

		fc := of.PredictIntensity(rng, 50, 200)
		for i := 0; i < domain.NumOrderTypes; i++ {
			// Defaults mu=0.1, alpha/beta=0.5 put the stationary
			// rate at mu/(1-0.5) = 0.2; allow generous sampling
			// slack around it.
			if fc.Mean[i] < 0.05 || fc.Mean[i] > 0.5 {
				t.Fatalf("dim %d: mean rate %v, want near baseline 0.1", i, fc.Mean[i])
			}
			if fc.Std[i] < 0 || math.IsNaN(fc.Std[i]) {
				t.Fatalf("dim %d: std %v", i, fc.Std[i])
			}
		}
	})

	t.Run("recent burst raises the forecast for its type", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		quiet := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		for i := 0; i < 50; i++ {
			of.Observe(domain.OrderEvent{Time: seconds(10 + float64(i)*0.01), Type: domain.MarketBuy})
		}

		rng := rand.New(rand.NewSource(17))
		burst := of.PredictIntensity(rng, 2, 100)
		base := quiet.PredictIntensity(rng, 2, 100)
		if burst.Mean[domain.MarketBuy] <= base.Mean[domain.MarketBuy] {
			t.Fatalf("burst forecast %v not above quiet forecast %v",
				burst.Mean[domain.MarketBuy], base.Mean[domain.MarketBuy])
		}
	})

	t.Run("forecast leaves live state untouched", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		for i := 0; i < 10; i++ {
			of.Observe(domain.OrderEvent{Time: seconds(float64(i)), Type: domain.LimitBuy})
		}
		before := of.EventCounts()

		of.PredictIntensity(rand.New(rand.NewSource(3)), 10, 20)
		if of.EventCounts() != before {
			t.Fatal("simulated events leaked into the live history")
		}
	})

	t.Run("non-positive horizon yields zeros", func(t *testing.T) {
		of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
		fc := of.PredictIntensity(rand.New(rand.NewSource(1)), 0, 10)
		if fc.Mean != [domain.NumOrderTypes]float64{} {
			t.Fatalf("mean = %v, want zeros", fc.Mean)
		}
	})
}

func TestRefitter(t *testing.T) {
	of := NewOrderFlow(OrderFlowConfig{Kernel: ExponentialKernel()})
	for i := 0; i < 30; i++ {
		of.Observe(domain.OrderEvent{Time: seconds(float64(i)), Type: domain.MarketBuy})
	}

	cycles := make(chan []FitStatus, 16)
	r := NewRefitter(of, FitEM, 5*time.Millisecond, func(s []FitStatus) {
		select {
		case cycles <- s:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case s := <-cycles:
		if len(s) != domain.NumOrderTypes {
			t.Fatalf("statuses = %d, want %d", len(s), domain.NumOrderTypes)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no refit cycle within 2s")
	}

	cancel()
	<-done
}
