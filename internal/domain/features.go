package domain

import "microflow/pkg/quant"

// FeatureSet is the fixed-schema feature vector emitted once per
// qualifying book update. Immutable once created.
//
// Vector and FeatureNames must stay in lock-step: any schema change
// updates both together (enforced by TestFeatureSchemaLockstep).
type FeatureSet struct {
	Time   quant.TimeStamp `json:"time"`
	Symbol string          `json:"symbol"`

	// Price features
	MidPrice        float64 `json:"mid_price"`
	MicroPrice      float64 `json:"micro_price"`
	WeightedMid     float64 `json:"weighted_mid_price"`

	// Order flow imbalance at configured depths
	OFI1 float64 `json:"ofi_1"`
	OFI2 float64 `json:"ofi_2"`
	OFI3 float64 `json:"ofi_3"`
	OFI5 float64 `json:"ofi_5"`

	// Book imbalance
	BookImbalance     float64 `json:"book_imbalance"`
	WeightedImbalance float64 `json:"weighted_imbalance"`
	BookPressure      float64 `json:"book_pressure"`

	// Spread
	Spread         float64 `json:"spread"`
	RelativeSpread float64 `json:"relative_spread"`

	// Volatility
	RealizedVolatility float64 `json:"realized_volatility"`
	PriceVelocity      float64 `json:"price_velocity"`
	PriceAcceleration  float64 `json:"price_acceleration"`

	// Hawkes intensities
	HawkesBuyIntensity    float64 `json:"hawkes_buy_intensity"`
	HawkesSellIntensity   float64 `json:"hawkes_sell_intensity"`
	HawkesBuySellRatio    float64 `json:"hawkes_buy_sell_ratio"`
	HawkesSelfExcitation  float64 `json:"hawkes_self_excitation"`

	// Liquidity
	KyleLambda        float64 `json:"kyle_lambda"`
	AmihudIlliquidity float64 `json:"amihud_illiquidity"`

	// Fractionally differentiated series
	FracDiffPrice  float64 `json:"frac_diff_price"`
	FracDiffVolume float64 `json:"frac_diff_volume"`

	// Technical indicators
	RSI               float64 `json:"rsi"`
	MACDSignal        float64 `json:"macd_signal"`
	BollingerPosition float64 `json:"bollinger_position"`
}

// FeatureNames lists the canonical feature ordering. Index i of Vector()
// corresponds to FeatureNames()[i].
func FeatureNames() []string {
	return []string{
		"mid_price", "micro_price", "weighted_mid_price",
		"ofi_1", "ofi_2", "ofi_3", "ofi_5",
		"book_imbalance", "weighted_imbalance", "book_pressure",
		"spread", "relative_spread",
		"realized_volatility", "price_velocity", "price_acceleration",
		"hawkes_buy_intensity", "hawkes_sell_intensity",
		"hawkes_buy_sell_ratio", "hawkes_self_excitation",
		"kyle_lambda", "amihud_illiquidity",
		"frac_diff_price", "frac_diff_volume",
		"rsi", "macd_signal", "bollinger_position",
	}
}

// Vector returns the positional representation consumed by ML models.
func (f *FeatureSet) Vector() []float64 {
	return []float64{
		f.MidPrice, f.MicroPrice, f.WeightedMid,
		f.OFI1, f.OFI2, f.OFI3, f.OFI5,
		f.BookImbalance, f.WeightedImbalance, f.BookPressure,
		f.Spread, f.RelativeSpread,
		f.RealizedVolatility, f.PriceVelocity, f.PriceAcceleration,
		f.HawkesBuyIntensity, f.HawkesSellIntensity,
		f.HawkesBuySellRatio, f.HawkesSelfExcitation,
		f.KyleLambda, f.AmihudIlliquidity,
		f.FracDiffPrice, f.FracDiffVolume,
		f.RSI, f.MACDSignal, f.BollingerPosition,
	}
}
