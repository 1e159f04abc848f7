package metamodel

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/creasty/defaults"
)

type WalkForwardConfig struct {
	Folds          int     `yaml:"folds" json:"folds" default:"5" validate:"gte=1"`
	MinTrainFrac   float64 `yaml:"min_train_frac" json:"minTrainFrac" default:"0.5" validate:"gt=0,lt=1"`
	TestFrac       float64 `yaml:"test_frac" json:"testFrac" default:"0.15" validate:"gt=0,lt=1"`
	MinTestRows    int     `yaml:"min_test_rows" json:"minTestRows" default:"50" validate:"gte=1"`
	DriftThreshold float64 `yaml:"drift_threshold" json:"driftThreshold" default:"1" validate:"gt=0"`
}

func DefaultWalkForwardConfig() WalkForwardConfig {
	var c WalkForwardConfig
	defaults.MustSet(&c)
	return c
}

// Fold covers rows[TrainStart:TrainEnd] for training and
// rows[TestStart:TestEnd] for testing.
type Fold struct {
	Index      int       `json:"index"`
	TrainStart int       `json:"trainStart"`
	TrainEnd   int       `json:"trainEnd"`
	TestStart  int       `json:"testStart"`
	TestEnd    int       `json:"testEnd"`
	TestFrom   time.Time `json:"testFrom"`
	TestTo     time.Time `json:"testTo"`
	Train      Metrics   `json:"train"`
	Test       Metrics   `json:"test"`
	DriftAvg   float64   `json:"driftAvg"`
	DriftMax   float64   `json:"driftMax"`
	Drifted    bool      `json:"drifted"`
}

type WalkForwardReport struct {
	Folds        []Fold  `json:"folds"`
	MeanAccuracy float64 `json:"meanAccuracy"`
	MeanLogLoss  float64 `json:"meanLogLoss"`
	DriftedFolds int     `json:"driftedFolds"`
}

// Windows computes expanding-train, non-overlapping test windows over n rows.
func Windows(n int, cfg WalkForwardConfig) []Fold {
	trainEnd := int(math.Floor(float64(n) * cfg.MinTrainFrac))
	testSize := int(math.Floor(float64(n) * cfg.TestFrac))
	if testSize < cfg.MinTestRows {
		testSize = cfg.MinTestRows
	}
	var out []Fold
	if trainEnd < 1 || testSize < 1 {
		return out
	}
	for k := 0; k < cfg.Folds; k++ {
		start := trainEnd + k*testSize
		end := start + testSize
		if end > n {
			break
		}
		out = append(out, Fold{Index: k, TrainStart: 0, TrainEnd: start, TestStart: start, TestEnd: end})
	}
	return out
}

// WalkForward trains on each expanding window and measures the following
// held-out window, flagging folds whose held-out features drift from the
// training distribution.
func WalkForward(ds Dataset, cfg WalkForwardConfig, train TrainConfig) (WalkForwardReport, error) {
	rows := append([]Row(nil), ds.Rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Time.Before(rows[j].Time) })

	var rep WalkForwardReport
	for _, f := range Windows(len(rows), cfg) {
		trainSet := Dataset{Features: ds.Features, Rows: rows[f.TrainStart:f.TrainEnd]}
		test := rows[f.TestStart:f.TestEnd]
		m, tr, err := Train(trainSet, train)
		if err != nil {
			return rep, fmt.Errorf("fold %d: %w", f.Index, err)
		}
		f.Train = tr.Metrics
		f.Test = Measure(m, test)
		f.TestFrom, f.TestTo = test[0].Time, test[len(test)-1].Time
		f.DriftAvg, f.DriftMax = drift(m, test)
		f.Drifted = f.DriftAvg > cfg.DriftThreshold
		if f.Drifted {
			rep.DriftedFolds++
		}
		rep.MeanAccuracy += f.Test.Accuracy
		rep.MeanLogLoss += f.Test.LogLoss
		rep.Folds = append(rep.Folds, f)
	}
	if n := float64(len(rep.Folds)); n > 0 {
		rep.MeanAccuracy /= n
		rep.MeanLogLoss /= n
	}
	return rep, nil
}

// drift is the mean and max absolute z-score of rows under the model's
// training standardization.
func drift(m *Model, rows []Row) (avg, max float64) {
	cells := 0
	for _, r := range rows {
		for j, v := range r.X {
			z := math.Abs(m.standardize(j, v))
			avg += z
			max = math.Max(max, z)
			cells++
		}
	}
	if cells > 0 {
		avg /= float64(cells)
	}
	return avg, max
}
