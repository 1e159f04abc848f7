package metamodel

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/creasty/defaults"
)

var ErrNotEnoughRows = errors.New("not enough training rows")

type TrainConfig struct {
	Iterations    int     `yaml:"iterations" json:"iterations" default:"2000" validate:"gte=1"`
	LearningRate  float64 `yaml:"learning_rate" json:"learningRate" default:"0.15" validate:"gt=0"`
	L2            float64 `yaml:"l2" json:"l2" default:"0.02" validate:"gte=0"`
	Threshold     float64 `yaml:"threshold" json:"threshold" default:"0.5" validate:"gte=0,lte=1"`
	MinRows       int     `yaml:"min_rows" json:"minRows" default:"10" validate:"gte=2"`
	MinThresholdN int     `yaml:"min_threshold_trades" json:"minThresholdTrades" default:"30" validate:"gte=1"`
}

func DefaultTrainConfig() TrainConfig {
	var c TrainConfig
	defaults.MustSet(&c)
	return c
}

// Metrics are classification metrics on a set of rows.
type Metrics struct {
	Rows     int     `json:"rows"`
	Accuracy float64 `json:"accuracy"`
	LogLoss  float64 `json:"logLoss"`
	BaseRate float64 `json:"baseRate"`
}

type Report struct {
	Metrics
	Iterations         int      `json:"iterations"`
	SuggestedThreshold *float64 `json:"suggestedThreshold"`
}

// Train fits a z-score standardized logistic regression with L2 penalty by
// batch gradient descent.
func Train(ds Dataset, cfg TrainConfig) (*Model, Report, error) {
	if len(ds.Rows) < cfg.MinRows {
		return nil, Report{}, fmt.Errorf("%w: %d < %d", ErrNotEnoughRows, len(ds.Rows), cfg.MinRows)
	}
	dim := len(ds.Features)
	for _, r := range ds.Rows {
		if len(r.X) != dim {
			return nil, Report{}, fmt.Errorf("row %s has %d features, want %d", r.SignalID, len(r.X), dim)
		}
	}
	means, stds := moments(ds.Rows, dim)
	m := &Model{
		Version:  Version,
		Features: append([]string(nil), ds.Features...),
		Weights:  make([]float64, dim),
		Means:    means,
		Stds:     stds,
		Rows:     len(ds.Rows),
	}

	z := make([][]float64, len(ds.Rows))
	for i, r := range ds.Rows {
		z[i] = make([]float64, dim)
		for j, v := range r.X {
			z[i][j] = m.standardize(j, v)
		}
	}

	n := float64(len(ds.Rows))
	grad := make([]float64, dim)
	for it := 0; it < cfg.Iterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		gradB := 0.0
		for i, r := range ds.Rows {
			e := predict(m.Weights, m.Bias, z[i]) - r.Label
			for j, v := range z[i] {
				grad[j] += e * v
			}
			gradB += e
		}
		for j := range m.Weights {
			m.Weights[j] -= cfg.LearningRate * (grad[j]/n + cfg.L2*m.Weights[j])
		}
		m.Bias -= cfg.LearningRate * gradB / n
	}

	threshold := cfg.Threshold
	m.Threshold = &threshold
	m.TrainedAt = time.Now().UTC()

	report := Report{Metrics: Measure(m, ds.Rows), Iterations: cfg.Iterations}
	probs := make([]float64, len(ds.Rows))
	for i := range ds.Rows {
		probs[i] = predict(m.Weights, m.Bias, z[i])
	}
	report.SuggestedThreshold = SuggestThreshold(probs, ds.Rows, cfg.MinThresholdN)
	return m, report, nil
}

func predict(w []float64, b float64, x []float64) float64 {
	s := b
	for j, v := range x {
		s += w[j] * v
	}
	return sigmoid(s)
}

func moments(rows []Row, dim int) (means, stds []float64) {
	means = make([]float64, dim)
	stds = make([]float64, dim)
	n := float64(len(rows))
	for _, r := range rows {
		for j, v := range r.X {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= n
	}
	for _, r := range rows {
		for j, v := range r.X {
			d := v - means[j]
			stds[j] += d * d
		}
	}
	for j := range stds {
		stds[j] = math.Sqrt(stds[j] / n)
		if stds[j] == 0 {
			stds[j] = 1
		}
	}
	return means, stds
}

// Measure computes accuracy at the model threshold, log-loss and base rate.
func Measure(m *Model, rows []Row) Metrics {
	out := Metrics{Rows: len(rows)}
	if len(rows) == 0 {
		return out
	}
	const eps = 1e-12
	threshold := m.ThresholdOrDefault()
	var correct, loss, pos float64
	for _, r := range rows {
		p := m.probabilityOf(r.X)
		predicted := 0.0
		if p >= threshold {
			predicted = 1
		}
		if predicted == r.Label {
			correct++
		}
		p = math.Min(math.Max(p, eps), 1-eps)
		loss -= r.Label*math.Log(p) + (1-r.Label)*math.Log(1-p)
		pos += r.Label
	}
	n := float64(len(rows))
	out.Accuracy = correct / n
	out.LogLoss = loss / n
	out.BaseRate = pos / n
	return out
}

func (m *Model) probabilityOf(x []float64) float64 {
	z := m.Bias
	for j, v := range x {
		z += m.Weights[j] * m.standardize(j, v)
	}
	return sigmoid(z)
}
