package metamodel

import (
	"fmt"
	"math"

	"FinSignal/internal/domain/models"
)

func sigmoid(z float64) float64 { return 1 / (1 + math.Exp(-z)) }

func (m *Model) standardize(i int, v float64) float64 {
	if m.Means == nil {
		return v
	}
	sd := m.Stds[i]
	if sd == 0 {
		sd = 1
	}
	return (v - m.Means[i]) / sd
}

// Probability is the model's tp1 probability for features.
func (m *Model) Probability(features map[string]float64) (float64, error) {
	z := m.Bias
	for i, name := range m.Features {
		v, ok := features[name]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("%w: %s", ErrMissingFeature, name)
		}
		z += m.Weights[i] * m.standardize(i, v)
	}
	return sigmoid(z), nil
}

// Score returns the probability, the expected value in R for a trade with
// reward ratio rr, and whether both clear the model's bar.
func (m *Model) Score(features map[string]float64, rr float64) (models.MetaPrediction, error) {
	p, err := m.Probability(features)
	if err != nil {
		return models.MetaPrediction{}, err
	}
	ev := p*rr - (1 - p)
	return models.MetaPrediction{Prob: p, EV: ev, Pass: p >= m.ThresholdOrDefault() && ev > 0}, nil
}

// ScoreSignal scores s with its own features and reward ratio.
func (m *Model) ScoreSignal(s models.Signal) (models.MetaPrediction, error) {
	return m.Score(FeaturesOf(s), s.RR)
}
