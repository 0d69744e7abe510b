package backend

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// ErrNotImplemented is returned by predictors that cannot answer a request.
var ErrNotImplemented = errors.New("prediction not implemented")

// Predictor produces model output for a reading. A nil result with a nil
// error means the model had nothing to say.
type Predictor interface {
	Predict(ctx context.Context, metric string, value float64, input map[string]any) (map[string]any, error)
}

// ModelLoader is implemented by predictors that can load weights from disk.
type ModelLoader interface {
	LoadModel(path string) error
}

// TrendPredictor fits a least-squares line through the newest readings of
// a metric and extrapolates one step ahead.
type TrendPredictor struct {
	Analyzer *Analyzer
	Window   int     // readings used for the fit
	Steady   float64 // |slope| below this is reported as steady
}

// NewTrendPredictor creates a predictor over a's history.
func NewTrendPredictor(a *Analyzer, window int) *TrendPredictor {
	if window < 2 {
		window = 32
	}
	return &TrendPredictor{Analyzer: a, Window: window, Steady: 1e-3}
}

// Predict implements Predictor. value is appended to the fitted series
// without being stored.
func (p *TrendPredictor) Predict(_ context.Context, metric string, value float64, _ map[string]any) (map[string]any, error) {
	m, ok := LookupMetric(metric)
	if !ok {
		return nil, fmt.Errorf("%w: unknown metric %q", ErrNotImplemented, metric)
	}

	ys := append(p.Analyzer.Values(metric, p.Window-1), value)
	if len(ys) < 3 {
		return nil, nil
	}

	slope, intercept := linearFit(ys)
	next := intercept + slope*float64(len(ys))
	next = math.Max(m.Min, math.Min(m.Max, next))

	trend := "steady"
	switch {
	case slope > p.Steady:
		trend = "rising"
	case slope < -p.Steady:
		trend = "falling"
	}

	return map[string]any{
		"trend":              trend,
		"slope_per_sample":   slope,
		"next_value":         next,
		"next_category":      m.Categorize(next),
		"samples_considered": len(ys),
	}, nil
}

// linearFit returns slope and intercept of y against sample index.
func linearFit(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
