package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"FinSignal/internal/di"
	"FinSignal/internal/domain/models"
	"FinSignal/internal/domain/repository"
	"FinSignal/internal/services/metamodel"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/config"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
	"FinSignal/pkg/util"
)

type options struct {
	configPath string
	statePath  string
	out        string
	candlesDir string
	since      string
	iterations int
	lr         float64
	l2         float64
	threshold  float64
}

func newRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:           "train",
		Short:         "Offline meta-model training and evaluation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, "config", "config/config.yaml", "config file path")
	pf.StringVar(&o.statePath, "state", "", "state file (overrides the configured state store)")
	pf.StringVar(&o.candlesDir, "candles-dir", "", "directory of SYMBOL_TF.json candle files (default: fetch from the configured source)")
	pf.StringVar(&o.since, "since", "", "only use signals at or after this time (RFC3339, date or unix seconds)")
	pf.IntVar(&o.iterations, "iterations", 0, "gradient descent iterations (default: engine.training)")
	pf.Float64Var(&o.lr, "lr", 0, "learning rate")
	pf.Float64Var(&o.l2, "l2", 0, "L2 penalty")
	pf.Float64Var(&o.threshold, "threshold", 0, "decision threshold stored in the model")

	root.AddCommand(trainCmd(o), walkForwardCmd(o), evaluateCmd(o))
	return root
}

func trainCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit the logistic meta-model and write it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := o.prepare(cmd)
			if err != nil {
				return err
			}
			model, rep, err := metamodel.Train(in.ds, in.train)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}
			out := o.out
			if out == "" {
				out = in.cfg.Engine.MetaModel.Path
			}
			if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
				return fmt.Errorf("create model dir: %w", err)
			}
			if err := model.Save(out); err != nil {
				return fmt.Errorf("save model: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), struct {
				metamodel.Report
				Out     string                 `json:"out"`
				Skipped []metamodel.SkippedRow `json:"skipped"`
			}{rep, out, in.skipped})
		},
	}
	cmd.Flags().StringVar(&o.out, "out", "", "model output path (default: engine.metamodel.path)")
	return cmd
}

func walkForwardCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "walkforward",
		Short: "Validate on chronological expanding-window folds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := o.prepare(cmd)
			if err != nil {
				return err
			}
			rep, err := metamodel.WalkForward(in.ds, in.cfg.Engine.WalkForward, in.train)
			if err != nil {
				return fmt.Errorf("walkforward: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), rep)
		},
	}
}

func evaluateCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate",
		Short: "Print performance per stream from recorded outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, hist, err := o.history(cmd.Context())
			if err != nil {
				return err
			}
			perf := usecase.NewPerformance(staticHistory(hist))
			return writeJSON(cmd.OutOrStdout(), perf.ByStream())
		},
	}
}

type staticHistory []models.Signal

func (h staticHistory) History() []models.Signal { return h }

type prepared struct {
	cfg     *config.Config
	train   metamodel.TrainConfig
	ds      metamodel.Dataset
	skipped []metamodel.SkippedRow
}

// prepare loads history and candles and builds the labeled dataset.
func (o *options) prepare(cmd *cobra.Command) (*prepared, error) {
	ctx := cmd.Context()
	cfg, hist, err := o.history(ctx)
	if err != nil {
		return nil, err
	}
	lookup, err := o.candles(ctx, cfg, hist)
	if err != nil {
		return nil, err
	}
	ds, skipped := metamodel.BuildDataset(hist, lookup, cfg.Engine.Evaluation)
	return &prepared{cfg: cfg, train: o.trainConfig(cmd, cfg.Engine.Training), ds: ds, skipped: skipped}, nil
}

// trainConfig applies the training flags that were set explicitly.
func (o *options) trainConfig(cmd *cobra.Command, base metamodel.TrainConfig) metamodel.TrainConfig {
	f := cmd.Flags()
	if f.Changed("iterations") {
		base.Iterations = o.iterations
	}
	if f.Changed("lr") {
		base.LearningRate = o.lr
	}
	if f.Changed("l2") {
		base.L2 = o.l2
	}
	if f.Changed("threshold") {
		base.Threshold = o.threshold
	}
	return base
}

func (o *options) loadConfig() (*config.Config, error) {
	if _, err := os.Stat(o.configPath); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.LoadWithEnv(o.configPath)
}

// history returns persisted signals, oldest first, filtered by --since.
func (o *options) history(ctx context.Context) (*config.Config, []models.Signal, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if o.statePath != "" {
		cfg.State.Backend = "file"
		cfg.State.Path = o.statePath
	}
	store, err := di.ProvideStateStore(cfg, di.ProvideRedisClient(cfg))
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Load(ctx)
	if err != nil && !errors.Is(err, repository.ErrNoState) {
		return nil, nil, fmt.Errorf("load state: %w", err)
	}
	if o.since == "" {
		return cfg, st.History, nil
	}
	since, ok := util.ParseTime(o.since)
	if !ok {
		return nil, nil, fmt.Errorf("invalid --since: %q", o.since)
	}
	return cfg, filterSince(st.History, since), nil
}

func filterSince(hist []models.Signal, since time.Time) []models.Signal {
	var out []models.Signal
	for _, s := range hist {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out
}

// candles loads every stream used by hist, from --candles-dir when set or
// from the configured live source.
func (o *options) candles(ctx context.Context, cfg *config.Config, hist []models.Signal) (metamodel.CandleLookup, error) {
	streams := map[string]bool{}
	var keys [][2]string
	for _, s := range hist {
		if s.Outcome.Resolved() {
			continue
		}
		k := s.Symbol + "_" + s.Timeframe
		if !streams[k] {
			streams[k] = true
			keys = append(keys, [2]string{s.Symbol, s.Timeframe})
		}
	}

	loaded := make(map[string][]models.Candle, len(keys))
	if o.candlesDir != "" {
		for _, k := range keys {
			cs, err := readCandles(filepath.Join(o.candlesDir, k[0]+"_"+k[1]+".json"))
			if err != nil {
				return nil, err
			}
			loaded[k[0]+"_"+k[1]] = cs
		}
	} else if len(keys) > 0 {
		src, err := liveSource(cfg)
		if err != nil {
			return nil, err
		}
		for _, k := range keys {
			cs, err := src.Candles(ctx, k[0], k[1], cfg.Worker.Limit)
			if err != nil {
				return nil, fmt.Errorf("fetch %s %s: %w", k[0], k[1], err)
			}
			loaded[k[0]+"_"+k[1]] = cs
		}
	}
	return func(symbol, timeframe string) []models.Candle {
		return loaded[symbol+"_"+timeframe]
	}, nil
}

func liveSource(cfg *config.Config) (repository.CandleSource, error) {
	l := applogger.Nop()
	ch, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		return nil, err
	}
	return di.ProvideCandleSource(cfg, l, di.ProvideBinanceSource(cfg), ch, nil, di.ProvideBreakers(cfg, l), metrics.Nop{})
}

// readCandles reads a JSON array of candles. A missing file yields none.
func readCandles(path string) ([]models.Candle, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read candles: %w", err)
	}
	var cs []models.Candle
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return cs, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
