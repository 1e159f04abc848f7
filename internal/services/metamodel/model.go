// Package metamodel scores signals with a logistic-regression meta-model and
// trains new models from evaluated signal history.
package metamodel

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"FinSignal/internal/domain/models"
)

// Version is the only accepted model format.
const Version = "fsd-meta-v1"

// DefaultThreshold applies when a model carries no threshold.
const DefaultThreshold = 0.5

// FeatureNames lists every feature a model may reference.
var FeatureNames = []string{"score", "rr", "stopPct", "atrPct", "adx", "bbBw", "emaSlope", "trend"}

var (
	ErrInvalidModel   = errors.New("invalid meta model")
	ErrMissingFeature = errors.New("missing feature")
)

// ValidationError describes why a model document was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return ErrInvalidModel.Error() + ": " + e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidModel }

func invalid(format string, args ...any) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

type Model struct {
	Version   string    `json:"version"`
	Features  []string  `json:"features"`
	Weights   []float64 `json:"weights"`
	Bias      float64   `json:"bias"`
	Means     []float64 `json:"means,omitempty"`
	Stds      []float64 `json:"stds,omitempty"`
	Threshold *float64  `json:"threshold,omitempty"`
	TrainedAt time.Time `json:"trainedAt,omitzero"`
	Rows      int       `json:"rows,omitempty"`
}

// Parse decodes and validates a model document.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, invalid("decode: %v", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the structural invariants of the model.
func (m *Model) Validate() error {
	if m.Version != Version {
		return invalid("unsupported version %q", m.Version)
	}
	if len(m.Features) == 0 {
		return invalid("no features")
	}
	known := make(map[string]bool, len(FeatureNames))
	for _, f := range FeatureNames {
		known[f] = true
	}
	seen := make(map[string]bool, len(m.Features))
	for _, f := range m.Features {
		if !known[f] {
			return invalid("unknown feature %q", f)
		}
		if seen[f] {
			return invalid("duplicate feature %q", f)
		}
		seen[f] = true
	}
	if len(m.Weights) != len(m.Features) {
		return invalid("%d weights for %d features", len(m.Weights), len(m.Features))
	}
	if (m.Means == nil) != (m.Stds == nil) {
		return invalid("means and stds must be given together")
	}
	if m.Means != nil && (len(m.Means) != len(m.Features) || len(m.Stds) != len(m.Features)) {
		return invalid("standardization length mismatch")
	}
	for _, group := range [][]float64{m.Weights, m.Means, m.Stds, {m.Bias}} {
		for _, v := range group {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return invalid("non-finite parameter")
			}
		}
	}
	for _, s := range m.Stds {
		if s < 0 {
			return invalid("negative std")
		}
	}
	if m.Threshold != nil && (*m.Threshold < 0 || *m.Threshold > 1) {
		return invalid("threshold %v outside [0,1]", *m.Threshold)
	}
	return nil
}

// ThresholdOrDefault returns the pass threshold.
func (m *Model) ThresholdOrDefault() float64 {
	if m.Threshold == nil {
		return DefaultThreshold
	}
	return *m.Threshold
}

func (m *Model) Marshal() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

// Save writes the model to path through a temporary file in the same directory.
func (m *Model) Save(path string) error {
	data, err := m.Marshal()
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".model-*.json")
	if err != nil {
		return fmt.Errorf("create temp model: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write model: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close model: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// FeaturesOf maps a signal to its named feature values. Features recorded
// as missing are left out.
func FeaturesOf(s models.Signal) map[string]float64 {
	all := map[string]float64{
		"score":    s.Score,
		"rr":       s.RR,
		"stopPct":  s.Features.StopPct,
		"atrPct":   s.Features.ATRPct,
		"adx":      s.Features.ADX,
		"bbBw":     s.Features.BBBw,
		"emaSlope": s.Features.EMASlope,
		"trend":    float64(s.Features.Trend),
	}
	for _, name := range s.Features.Missing {
		delete(all, name)
	}
	return all
}

// Vector orders the features of s by names. Absent features are NaN.
func Vector(s models.Signal, names []string) []float64 {
	all := FeaturesOf(s)
	out := make([]float64, len(names))
	for i, n := range names {
		v, ok := all[n]
		if !ok {
			v = math.NaN()
		}
		out[i] = v
	}
	return out
}
