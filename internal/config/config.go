package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Symbols     []string          `yaml:"symbols"`
	Timeframe   time.Duration     `yaml:"timeframe"`
	StrategyRef StrategyReference `yaml:"strategy"`
	SourceRef   SourceReference   `yaml:"source"`
	Backtest    Backtest          `yaml:"backtest"`
	Live        Live              `yaml:"live"`
	Store       Store             `yaml:"store"`
	Redis       Redis             `yaml:"redis"`
	Ops         Ops               `yaml:"ops"`
}

func Read(r io.Reader) (*Config, error) {
	var cfg Config
	d := yaml.NewDecoder(r)
	err := d.Decode(&cfg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	return &cfg, nil
}

func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Load reads the config file and applies environment overrides. Variables
// from envFiles are loaded first and never override the real environment.
func Load(path string, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	cfg, err := ReadFromFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overrides secrets and addresses from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if a, ok := c.SourceRef.Source.(Alpaca); ok {
		str("ALPACA_API_KEY", &a.ApiKey)
		str("ALPACA_SECRET", &a.Secret)
		str("ALPACA_DATA_URL", &a.DataUrl)
		c.SourceRef.Source = a
	}

	str("REDIS_ADDR", &c.Redis.Addr)
	str("REDIS_PASSWORD", &c.Redis.Password)
	str("STORE_DRIVER", &c.Store.Driver)
	str("STORE_DSN", &c.Store.DSN)
	str("OPS_ADDR", &c.Ops.Addr)

	if v, ok := lookup("REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB value %q: %w", v, err)
		}
		c.Redis.DB = db
	}

	return nil
}

type Backtest struct {
	InitialCapital      float64 `yaml:"initial_capital"`
	CommissionPercent   float64 `yaml:"commission_percent"`
	SlippagePercent     float64 `yaml:"slippage_percent"`
	PositionSizePercent float64 `yaml:"position_size_percent"`
	MaxPositions        int     `yaml:"max_positions"`
	AllowShort          bool    `yaml:"allow_short"`
	StopLossPercent     float64 `yaml:"stop_loss_percent"`
	TakeProfitPercent   float64 `yaml:"take_profit_percent"`
	Parallelism         int     `yaml:"parallelism"`
	Report              string  `yaml:"report"`
	PlotDir             string  `yaml:"plot_dir"`
}

type Live struct {
	BufferSize int    `yaml:"buffer_size"`
	DataDump   string `yaml:"data_dump"`
}

type Store struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
	Stream   string `yaml:"stream"`
}

type Ops struct {
	Addr string `yaml:"addr"`
}

// strategy configs

type EMACrossover struct {
	Fast int `yaml:"fast"`
	Slow int `yaml:"slow"`
}

type RSIReversion struct {
	Period     int     `yaml:"period"`
	Oversold   float64 `yaml:"oversold"`
	Overbought float64 `yaml:"overbought"`
}

type MACD struct {
	Fast          int     `yaml:"fast"`
	Slow          int     `yaml:"slow"`
	Signal        int     `yaml:"signal"`
	BuyThreshold  float64 `yaml:"buy_threshold"`
	BuyCap        float64 `yaml:"buy_cap"`
	SellThreshold float64 `yaml:"sell_threshold"`
	SellCap       float64 `yaml:"sell_cap"`
	CrossLookback int     `yaml:"cross_lookback"`
}

type Supertrend struct {
	Period     int     `yaml:"period"`
	Multiplier float64 `yaml:"multiplier"`
}

type Ensemble struct {
	MinConfidence float64            `yaml:"min_confidence"`
	Strategies    []WeightedStrategy `yaml:"strategies"`
}

type WeightedStrategy struct {
	Weight float64           `yaml:"weight"`
	Ref    StrategyReference `yaml:"strategy"`
}

type Strategy interface{}

type StrategyReference struct {
	Strategy Strategy
}

func (w *StrategyReference) UnmarshalYAML(value *yaml.Node) error {
	if len(value.Content) == 0 {
		return nil
	}

	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return errors.New("invalid strategy yaml format")
	}

	key := value.Content[0].Value
	switch key {
	case "ema_crossover":
		var s EMACrossover
		if err := value.Content[1].Decode(&s); err != nil {
			return fmt.Errorf("failed parsing ema_crossover strategy config: %w", err)
		}
		w.Strategy = s
	case "rsi_reversion":
		var s RSIReversion
		if err := value.Content[1].Decode(&s); err != nil {
			return fmt.Errorf("failed parsing rsi_reversion strategy config: %w", err)
		}
		w.Strategy = s
	case "macd":
		var s MACD
		if err := value.Content[1].Decode(&s); err != nil {
			return fmt.Errorf("failed parsing macd strategy config: %w", err)
		}
		w.Strategy = s
	case "supertrend":
		var s Supertrend
		if err := value.Content[1].Decode(&s); err != nil {
			return fmt.Errorf("failed parsing supertrend strategy config: %w", err)
		}
		w.Strategy = s
	case "ensemble":
		var s Ensemble
		if err := value.Content[1].Decode(&s); err != nil {
			return fmt.Errorf("failed parsing ensemble strategy config: %w", err)
		}
		w.Strategy = s
	default:
		return fmt.Errorf("unknown strategy type: %s", key)
	}

	return nil
}

// candle source configs

type CSV struct {
	Data        map[string]string `yaml:"data"`
	Start       time.Time         `yaml:"start"`
	End         time.Time         `yaml:"end"`
	SessionOnly bool              `yaml:"session_only"`
}

type Alpaca struct {
	DataUrl string        `yaml:"data_url"`
	ApiKey  string        `yaml:"api_key"`
	Secret  string        `yaml:"secret"`
	History time.Duration `yaml:"history"`
	Start   time.Time     `yaml:"start"`
	End     time.Time     `yaml:"end"`
}

type SQL struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

type Source interface{}

type SourceReference struct {
	Source Source
}

func (w *SourceReference) UnmarshalYAML(value *yaml.Node) error {
	if len(value.Content) == 0 {
		return nil
	}

	if value.Kind != yaml.MappingNode || len(value.Content) != 2 {
		return errors.New("invalid source yaml format")
	}

	key := value.Content[0].Value
	switch key {
	case "csv":
		var src CSV
		if err := value.Content[1].Decode(&src); err != nil {
			return fmt.Errorf("failed parsing csv source config: %w", err)
		}
		w.Source = src
	case "alpaca":
		var src Alpaca
		if err := value.Content[1].Decode(&src); err != nil {
			return fmt.Errorf("failed parsing Alpaca source config: %w", err)
		}
		w.Source = src
	case "sql":
		var src SQL
		if err := value.Content[1].Decode(&src); err != nil {
			return fmt.Errorf("failed parsing sql source config: %w", err)
		}
		w.Source = src
	default:
		return fmt.Errorf("unknown source type: %s", key)
	}

	return nil
}
