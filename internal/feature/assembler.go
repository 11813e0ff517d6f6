package feature

import (
	"fmt"
	"math"

	"microflow/internal/domain"
	"microflow/internal/hawkes"
)

// schemaOFILevels are the book depths the FeatureSet exposes as fixed
// OFI fields.
var schemaOFILevels = []int{1, 2, 3, 5}

func containsLevel(levels []int, depth int) bool {
	for _, l := range levels {
		if l == depth {
			return true
		}
	}
	return false
}

// AssemblerConfig carries the calculator tunables. Zero values select
// the reference defaults.
type AssemblerConfig struct {
	OFILevels        []int
	ImbalanceLevels  int
	ImbalanceDecay   float64
	VolatilityWindow int
	Annualization    float64
	BufferSize       int

	FracDiffD         float64
	FracDiffThreshold float64
	FracDiffMaxTerms  int

	RSIPeriod       int
	MACDFast        int
	MACDSlow        int
	MACDSignal      int
	BollingerPeriod int
	BollingerStd    float64
}

func (c *AssemblerConfig) applyDefaults() {
	if len(c.OFILevels) == 0 {
		c.OFILevels = append([]int(nil), schemaOFILevels...)
	}
	if c.ImbalanceLevels <= 0 {
		c.ImbalanceLevels = 5
	}
	if c.ImbalanceDecay <= 0 {
		c.ImbalanceDecay = 0.5
	}
	if c.VolatilityWindow <= 0 {
		c.VolatilityWindow = 20
	}
	if c.Annualization <= 0 {
		c.Annualization = 252 * 390 * 60
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 200
	}
	if c.FracDiffD <= 0 || c.FracDiffD >= 1 {
		c.FracDiffD = 0.4
	}
	if c.FracDiffThreshold <= 0 {
		c.FracDiffThreshold = 1e-4
	}
	if c.RSIPeriod <= 0 {
		c.RSIPeriod = 14
	}
	if c.MACDFast <= 0 {
		c.MACDFast = 12
	}
	if c.MACDSlow <= 0 {
		c.MACDSlow = 26
	}
	if c.MACDSignal <= 0 {
		c.MACDSignal = 9
	}
	if c.BollingerPeriod <= 0 {
		c.BollingerPeriod = 20
	}
	if c.BollingerStd <= 0 {
		c.BollingerStd = 2
	}
}

// Assembler merges every calculator's output into one fixed-schema
// FeatureSet per qualifying book update. It owns the stateful
// calculators and the rolling price/volume buffers; updates must
// arrive from a single writer in timestamp order.
type Assembler struct {
	cfg AssemblerConfig

	ofi      *OFICalculator
	vol      *VolatilityTracker
	fracDiff *FracDiff

	prices  *ring
	volumes *ring
}

// NewAssembler wires the calculators from config.
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	cfg.applyDefaults()

	// The feature vector pins OFI at depths 1, 2, 3 and 5. Configured
	// levels may add depths but must cover those four, or the pinned
	// fields would silently read zero.
	for _, depth := range schemaOFILevels {
		if !containsLevel(cfg.OFILevels, depth) {
			return nil, fmt.Errorf("feature: ofi levels %v missing required depth %d", cfg.OFILevels, depth)
		}
	}

	fd, err := NewFracDiff(cfg.FracDiffD, cfg.FracDiffThreshold, cfg.FracDiffMaxTerms)
	if err != nil {
		return nil, err
	}

	return &Assembler{
		cfg:      cfg,
		ofi:      NewOFICalculator(cfg.OFILevels),
		vol:      NewVolatilityTracker(cfg.VolatilityWindow, cfg.Annualization),
		fracDiff: fd,
		prices:   newRing(cfg.BufferSize),
		volumes:  newRing(cfg.BufferSize),
	}, nil
}

// OnTick folds a trade tick into the rolling state.
func (a *Assembler) OnTick(t domain.Tick) {
	if t.Last > 0 {
		a.prices.push(t.Last)
		a.volumes.push(t.Volume)
		a.vol.Update(t.Last)
	}
}

// Assemble produces the feature vector for a book update, merging the
// book-derived metrics with rolling tick state and the current Hawkes
// block. Never fails: insufficient history yields neutral defaults so
// the per-update cadence is unbroken.
func (a *Assembler) Assemble(book *domain.BookSnapshot, hf hawkes.Features) *domain.FeatureSet {
	fs := &domain.FeatureSet{
		Time:   book.Time,
		Symbol: book.Symbol,

		MidPrice:    book.Mid(),
		MicroPrice:  book.MicroPrice(),
		WeightedMid: DepthWeightedMicroPrice(book, a.cfg.ImbalanceLevels),

		Spread:         book.Spread(),
		RelativeSpread: RelativeSpread(book.BestBid(), book.BestAsk()),

		WeightedImbalance: WeightedImbalance(book, a.cfg.ImbalanceLevels, a.cfg.ImbalanceDecay),
		BookPressure:      BookPressure(book, a.cfg.ImbalanceLevels),

		RealizedVolatility: a.vol.RealizedVolatility(),
		PriceVelocity:      a.vol.PriceVelocity(),
		PriceAcceleration:  a.vol.PriceAcceleration(),

		HawkesBuyIntensity:   hf.BuyIntensity,
		HawkesSellIntensity:  hf.SellIntensity,
		HawkesBuySellRatio:   hf.BuySellRatio,
		HawkesSelfExcitation: hf.SelfExcitation,

		RSI:               50,
		BollingerPosition: 0.5,
	}

	var bidVol, askVol float64
	if len(book.Bids) > 0 {
		bidVol = book.Bids[0].Volume
	}
	if len(book.Asks) > 0 {
		askVol = book.Asks[0].Volume
	}
	fs.BookImbalance = SimpleImbalance(bidVol, askVol)

	ofi := a.ofi.Calculate(book)
	fs.OFI1 = ofi[1]
	fs.OFI2 = ofi[2]
	fs.OFI3 = ofi[3]
	fs.OFI5 = ofi[5]

	a.fillTickDerived(fs)
	return fs
}

// fillTickDerived computes the liquidity, fracdiff and technical
// blocks from the rolling tick buffers.
func (a *Assembler) fillTickDerived(fs *domain.FeatureSet) {
	prices := a.prices.values()
	volumes := a.volumes.values()

	if len(prices) >= 2 {
		returns := make([]float64, len(prices)-1)
		for i := 1; i < len(prices); i++ {
			if prices[i-1] != 0 {
				returns[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
			}
		}

		fs.KyleLambda = KyleLambda(math.Abs(returns[len(returns)-1]), volumes[len(volumes)-1])
		fs.AmihudIlliquidity = AmihudIlliquidity(returns, volumes[1:])
	}

	if v, ok := a.fracDiff.Latest(prices); ok {
		fs.FracDiffPrice = v
	}
	if v, ok := a.fracDiff.Latest(volumes); ok {
		fs.FracDiffVolume = v
	}

	fs.RSI = RSI(prices, a.cfg.RSIPeriod)
	fs.MACDSignal = MACDSignal(prices, a.cfg.MACDFast, a.cfg.MACDSlow, a.cfg.MACDSignal)
	fs.BollingerPosition = BollingerPosition(prices, a.cfg.BollingerPeriod, a.cfg.BollingerStd)
}

// ResetOFI drops the OFI delta state (used when a crossed or otherwise
// corrupt snapshot breaks the consecutive-pair contract).
func (a *Assembler) ResetOFI() { a.ofi.Reset() }

// BufferLen reports the rolling tick-buffer fill for status snapshots.
func (a *Assembler) BufferLen() int { return a.prices.count }
