package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"FinSignal/internal/domain/repository"
	"FinSignal/internal/services/automute"
	"FinSignal/internal/services/evaluation"
	"FinSignal/internal/services/gate"
	"FinSignal/internal/services/metamodel"
	"FinSignal/internal/services/signals"
	"FinSignal/internal/services/tradeplan"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"30s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		AllowOrigins    []string      `yaml:"allow_origins" default:"[\"*\"]"`
		RefreshPerMin   float64       `yaml:"refresh_per_min" default:"6" validate:"gt=0"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"log"`
	Worker struct {
		Symbols          []string      `yaml:"symbols" default:"[\"BTCUSDT\",\"ETHUSDT\"]" validate:"min=1"`
		Timeframes       []string      `yaml:"timeframes" default:"[\"15m\",\"1h\"]" validate:"min=1"`
		References       []string      `yaml:"references" default:"[\"1h\",\"4h\"]" validate:"len=2"`
		Limit            int           `yaml:"limit" default:"500" validate:"gte=50,lte=1500"`
		Interval         time.Duration `yaml:"interval" default:"1m"`
		RunOnStart       bool          `yaml:"run_on_start" default:"true"`
		FetchConcurrency int           `yaml:"fetch_concurrency" default:"3" validate:"gte=1"`
		HistoryMax       int           `yaml:"history_max" default:"2000" validate:"gte=1"`
		SnapshotLimit    int           `yaml:"snapshot_limit" default:"500" validate:"gte=1"`
		UnitTimeout      time.Duration `yaml:"unit_timeout" default:"30s"`
	} `yaml:"worker"`
	Engine struct {
		Signals     signals.Config              `yaml:"signals"`
		Gate        gate.Config                 `yaml:"gate"`
		DynamicGate gate.DynamicConfig          `yaml:"dynamic_gate"`
		TradePlan   tradeplan.Config            `yaml:"tradeplan"`
		Evaluation  evaluation.Config           `yaml:"evaluation"`
		AutoMute    automute.Config             `yaml:"automute"`
		Training    metamodel.TrainConfig       `yaml:"training"`
		WalkForward metamodel.WalkForwardConfig `yaml:"walkforward"`
		MetaModel   struct {
			Enabled bool   `yaml:"enabled" default:"true"`
			Path    string `yaml:"path" default:"data/meta-model.json"`
		} `yaml:"metamodel"`
	} `yaml:"engine"`
	Sources struct {
		Primary  string `yaml:"primary" default:"binance" validate:"oneof=binance clickhouse"`
		Fallback string `yaml:"fallback" validate:"omitempty,oneof=binance clickhouse"`
		Binance  struct {
			BaseURL   string        `yaml:"base_url" default:"https://api.binance.com" validate:"url"`
			Timeout   time.Duration `yaml:"timeout" default:"10s"`
			RateLimit float64       `yaml:"rate_limit" default:"10" validate:"gt=0"`
			Burst     int           `yaml:"burst" default:"5" validate:"gte=1"`
		} `yaml:"binance"`
		ClickHouse struct {
			Host        string        `yaml:"host" default:"localhost"`
			Port        int           `yaml:"port" default:"9000"`
			Database    string        `yaml:"database" default:"default"`
			User        string        `yaml:"user" default:"default"`
			Password    string        `yaml:"password"`
			UseHTTP     bool          `yaml:"use_http"`
			DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
			ReadTimeout time.Duration `yaml:"read_timeout" default:"30s"`
			TablePrefix string        `yaml:"table_prefix" default:"rt_candles_"`
		} `yaml:"clickhouse"`
		Breaker struct {
			FailureThreshold uint32        `yaml:"failure_threshold" default:"3" validate:"gte=1"`
			OpenTimeout      time.Duration `yaml:"open_timeout" default:"30s"`
			Interval         time.Duration `yaml:"interval" default:"1m"`
		} `yaml:"breaker"`
	} `yaml:"sources"`
	Cache struct {
		Enabled       bool `yaml:"enabled" default:"true"`
		MemoryMaxSize int  `yaml:"memory_max_size" default:"256" validate:"gte=1"`
		Redis         struct {
			Enabled  bool   `yaml:"enabled"`
			Addr     string `yaml:"addr" default:"localhost:6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"finsignal"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	State struct {
		Backend  string `yaml:"backend" default:"file" validate:"oneof=file redis"`
		Path     string `yaml:"path" default:"data/state.json"`
		RedisKey string `yaml:"redis_key" default:"finsignal:state"`
	} `yaml:"state"`
	Notify struct {
		MaxPerMin  float64 `yaml:"max_per_min" default:"30" validate:"gte=0"`
		BufferSize int     `yaml:"buffer_size" default:"256" validate:"gte=1"`
		Kafka      struct {
			Enabled      bool          `yaml:"enabled"`
			Brokers      []string      `yaml:"brokers" default:"[\"localhost:9092\"]"`
			Topic        string        `yaml:"topic" default:"signals"`
			RequiredAcks int           `yaml:"required_acks" default:"1"`
			Compression  string        `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"kafka"`
	} `yaml:"notify"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var c Config
	defaults.MustSet(&c)
	return &c
}

// Load reads and parses a YAML configuration file. Defaults fill every key
// the file leaves out.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Worker.Symbols = splitList(v)
	}
	if v := os.Getenv("TIMEFRAMES"); v != "" {
		c.Worker.Timeframes = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Notify.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("STATE_PATH"); v != "" {
		c.State.Path = v
	}
	if v := os.Getenv("MODEL_PATH"); v != "" {
		c.Engine.MetaModel.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks tag rules and the cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	for _, tf := range append(append([]string(nil), c.Worker.Timeframes...), c.Worker.References...) {
		if !repository.IsValidTimeframe(repository.Timeframe(tf)) {
			return fmt.Errorf("unsupported timeframe %q", tf)
		}
	}
	if c.Engine.Gate.ATRPctMin > c.Engine.Gate.ATRPctMax {
		return fmt.Errorf("engine.gate.atr_pct_min %.3f exceeds atr_pct_max %.3f", c.Engine.Gate.ATRPctMin, c.Engine.Gate.ATRPctMax)
	}
	if c.Engine.Signals.RangeLow >= c.Engine.Signals.RangeHigh {
		return fmt.Errorf("engine.signals.range_low must be below range_high")
	}
	if c.Sources.Fallback != "" && c.Sources.Fallback == c.Sources.Primary {
		return fmt.Errorf("sources.fallback must differ from sources.primary")
	}
	if c.Worker.Interval <= 0 {
		return fmt.Errorf("worker.interval must be positive")
	}
	return nil
}

// GateMode names the active gate flavor.
func (c *Config) GateMode() string {
	if c.Engine.DynamicGate.Enabled {
		return "dynamic"
	}
	return "static"
}
