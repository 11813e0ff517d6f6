package app

import (
	"log/slog"

	"microflow/internal/domain"
)

// LogSink is the default output sink when no downstream consumer is
// attached: bars at info, feature vectors at debug (one per book
// update is too chatty for info).
type LogSink struct{}

func (LogSink) OnFeatures(fs *domain.FeatureSet) {
	slog.Debug("FEATURES_EMITTED",
		slog.String("symbol", fs.Symbol),
		slog.Float64("micro_price", fs.MicroPrice),
		slog.Float64("book_imbalance", fs.BookImbalance),
		slog.Float64("realized_vol", fs.RealizedVolatility))
}

func (LogSink) OnBar(bar domain.Bar) {
	slog.Info("BAR_CLOSED",
		slog.String("kind", bar.Kind.String()),
		slog.Float64("open", bar.Open),
		slog.Float64("close", bar.Close),
		slog.Float64("volume", bar.Volume),
		slog.Int("ticks", bar.TickCount))
}
