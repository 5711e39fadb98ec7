package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/compose-network/proof-orchestrator/x/coordinator"
	"github.com/compose-network/proof-orchestrator/x/prover"
	"github.com/compose-network/proof-orchestrator/x/scheduler"
	"github.com/compose-network/proof-orchestrator/x/settlement"
	"github.com/compose-network/proof-orchestrator/x/submitter"
)

// Config holds the complete application configuration
type Config struct {
	Coordinator coordinator.Config `mapstructure:"coordinator" yaml:"coordinator"`
	Scheduler   scheduler.Config   `mapstructure:"scheduler"   yaml:"scheduler"`
	Submitter   submitter.Config   `mapstructure:"submitter"   yaml:"submitter"`
	Settlement  settlement.Config  `mapstructure:"settlement"  yaml:"settlement"`
	Inputs      InputsConfig       `mapstructure:"inputs"      yaml:"inputs"`
	Store       StoreConfig        `mapstructure:"store"       yaml:"store"`
	Provers     ProversConfig      `mapstructure:"provers"     yaml:"provers"`
	API         APIServerConfig    `mapstructure:"api"         yaml:"api"`
	Metrics     MetricsConfig      `mapstructure:"metrics"     yaml:"metrics"`
	Log         LogConfig          `mapstructure:"log"         yaml:"log"`
}

// InputsConfig points at the sequencer endpoint serving proving inputs
type InputsConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url" env:"INPUTS_BASE_URL"`
	Timeout time.Duration `mapstructure:"timeout"  yaml:"timeout"  env:"INPUTS_TIMEOUT"`
}

// StoreConfig selects and configures the proof store backend
type StoreConfig struct {
	// Backend is "memory" or "disk"
	Backend string `mapstructure:"backend" yaml:"backend" env:"STORE_BACKEND"`
	// Dir is the data directory for the disk backend
	Dir string `mapstructure:"dir" yaml:"dir" env:"STORE_DIR"`
}

// ProversConfig names the proof types a batch must collect before
// submission
type ProversConfig struct {
	Required []string `mapstructure:"required" yaml:"required"`
}

// APIServerConfig holds HTTP API server configuration
type APIServerConfig struct {
	ListenAddr        string        `mapstructure:"listen_addr"         yaml:"listen_addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"        yaml:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"       yaml:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"        yaml:"idle_timeout"`
	MaxHeaderBytes    int           `mapstructure:"max_header_bytes"    yaml:"max_header_bytes"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" env:"METRICS_ENABLED"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  env:"LOG_LEVEL"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty" env:"LOG_PRETTY"`
}

// RequiredTypes parses the configured prover type names.
func (c *Config) RequiredTypes() ([]prover.Type, error) {
	return prover.ParseTypes(c.Provers.Required)
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Fallback env aliases for the settlement secrets
	if strings.TrimSpace(cfg.Settlement.RPCEndpoint) == "" {
		if ev := strings.TrimSpace(os.Getenv("SETTLEMENT_RPC_ENDPOINT")); ev != "" {
			cfg.Settlement.RPCEndpoint = ev
		}
	}
	if strings.TrimSpace(cfg.Settlement.PrivateKeyHex) == "" {
		if ev := strings.TrimSpace(os.Getenv("SETTLEMENT_PRIVATE_KEY_HEX")); ev != "" {
			cfg.Settlement.PrivateKeyHex = ev
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("coordinator.listen_addr", ":3900")
	v.SetDefault("coordinator.read_timeout", "120s")
	v.SetDefault("coordinator.write_timeout", "30s")
	v.SetDefault("coordinator.max_frame_size", 64*1024*1024)
	v.SetDefault("coordinator.max_connections", 256)
	v.SetDefault("coordinator.commit_hash", "")

	v.SetDefault("scheduler.lease_timeout", "10m")
	v.SetDefault("scheduler.scan_window", 64)

	v.SetDefault("submitter.interval", "15s")
	v.SetDefault("submitter.jitter", "0s")
	v.SetDefault("submitter.max_batches_per_tx", 16)

	v.SetDefault("settlement.rpc_endpoint", "")
	v.SetDefault("settlement.contract_address", "")
	v.SetDefault("settlement.private_key_hex", "")
	v.SetDefault("settlement.chain_id", 0)
	v.SetDefault("settlement.gas_limit_buffer_pct", 15)
	v.SetDefault("settlement.receipt_timeout", "120s")
	v.SetDefault("settlement.receipt_poll_interval", "2s")

	v.SetDefault("inputs.base_url", "")
	v.SetDefault("inputs.timeout", "30s")

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.dir", "data/proofs")

	v.SetDefault("provers.required", []string{"exec"})

	// API defaults (separate HTTP API server)
	v.SetDefault("api.listen_addr", ":8081")
	v.SetDefault("api.read_header_timeout", "5s")
	v.SetDefault("api.read_timeout", "15s")
	v.SetDefault("api.write_timeout", "30s")
	v.SetDefault("api.idle_timeout", "120s")
	v.SetDefault("api.max_header_bytes", 1048576)

	v.SetDefault("metrics.enabled", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Coordinator.Validate(); err != nil {
		return err
	}
	if err := c.Scheduler.Validate(); err != nil {
		return err
	}
	if err := c.Submitter.Validate(); err != nil {
		return err
	}
	if err := c.Settlement.Validate(); err != nil {
		return err
	}
	if err := c.validateInputs(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateProvers(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateInputs() error {
	if strings.TrimSpace(c.Inputs.BaseURL) == "" {
		return fmt.Errorf("inputs.base_url is required")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.Backend {
	case "memory":
		return nil
	case "disk":
		if strings.TrimSpace(c.Store.Dir) == "" {
			return fmt.Errorf("store.dir is required for the disk backend")
		}
		return nil
	default:
		return fmt.Errorf("store.backend must be memory or disk, got %q", c.Store.Backend)
	}
}

func (c *Config) validateProvers() error {
	if len(c.Provers.Required) == 0 {
		return fmt.Errorf("provers.required must name at least one prover type")
	}
	if _, err := c.RequiredTypes(); err != nil {
		return fmt.Errorf("provers.required is invalid: %w", err)
	}
	return nil
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Coordinator: coordinator.Config{
			ListenAddr:     ":3900",
			ReadTimeout:    120 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxFrameSize:   64 * 1024 * 1024,
			MaxConnections: 256,
		},
		Scheduler: scheduler.Config{
			LeaseTimeout: 10 * time.Minute,
			ScanWindow:   64,
		},
		Submitter: submitter.Config{
			Interval:        15 * time.Second,
			MaxBatchesPerTx: 16,
		},
		Inputs: InputsConfig{
			Timeout: 30 * time.Second,
		},
		Store: StoreConfig{
			Backend: "memory",
			Dir:     "data/proofs",
		},
		Provers: ProversConfig{
			Required: []string{"exec"},
		},
		API: APIServerConfig{
			ListenAddr:        ":8081",
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}
