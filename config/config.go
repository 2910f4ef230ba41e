package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

const (
	// LogFormatPlain is a format for colored text
	LogFormatPlain = "plain"
	// LogFormatJSON is a format for json output
	LogFormatJSON = "json"
)

// NOTE: Most of the structs & relevant comments + the
// default configuration options were used to manually
// generate the config.toml. Please reflect any changes
// made here in the defaultConfigTemplate constant in
// config/toml.go
var (
	DefaultExchangeDir = ".tm-exchange"
	defaultConfigDir   = "config"

	defaultConfigFileName = "config.toml"

	defaultConfigFilePath = filepath.Join(defaultConfigDir, defaultConfigFileName)
)

// Config defines the top level configuration of the exchange tool
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	Exchange        *ExchangeConfig        `mapstructure:"exchange"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		Exchange:        DefaultExchangeConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		Exchange:        TestExchangeConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	if err := cfg.Exchange.ValidateBasic(); err != nil {
		return errors.Wrap(err, "error in [exchange] section")
	}
	return errors.Wrap(
		cfg.Instrumentation.ValidateBasic(),
		"error in [instrumentation] section",
	)
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`
}

// DefaultBaseConfig returns a default base configuration
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		LogLevel:  DefaultLogLevel,
		LogFormat: LogFormatPlain,
	}
}

// TestBaseConfig returns a base configuration for testing
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.LogLevel = "debug"
	return cfg
}

// ConfigFile returns the full path to the config.toml file
func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log-format (must be 'plain' or 'json')")
	}
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log-level %q", cfg.LogLevel)
	}
	return nil
}

// DefaultLogLevel is the log level used unless configured otherwise
const DefaultLogLevel = "info"

//-----------------------------------------------------------------------------
// ExchangeConfig

// ExchangeConfig defines the configuration of the request/response exchange
// with peers and of the peer performance tracker.
type ExchangeConfig struct {
	// How long to wait for a response unless a call asks otherwise.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// Tag requests with ids and match responses by them. When false,
	// responses are matched to the oldest pending request of the same kind.
	UseRequestIDs bool `mapstructure:"use-request-ids"`

	// Weight of a new sample in the moving averages kept per peer, in (0, 1].
	MeasurementImpact float64 `mapstructure:"measurement-impact"`

	// Round trip time that recommended request sizes aim for.
	TargetRTT time.Duration `mapstructure:"target-rtt"`

	// Upper bounds of the recommended request sizes.
	MaxHeaderFetch   int `mapstructure:"max-header-fetch"`
	MaxBodyFetch     int `mapstructure:"max-body-fetch"`
	MaxReceiptFetch  int `mapstructure:"max-receipt-fetch"`
	MaxNodeDataFetch int `mapstructure:"max-node-data-fetch"`
}

// DefaultExchangeConfig returns a default configuration for the exchange
func DefaultExchangeConfig() *ExchangeConfig {
	return &ExchangeConfig{
		RequestTimeout:    20 * time.Second,
		UseRequestIDs:     true,
		MeasurementImpact: 0.1,
		TargetRTT:         5 * time.Second,
		MaxHeaderFetch:    192,
		MaxBodyFetch:      128,
		MaxReceiptFetch:   256,
		MaxNodeDataFetch:  384,
	}
}

// TestExchangeConfig returns a configuration for testing the exchange
func TestExchangeConfig() *ExchangeConfig {
	cfg := DefaultExchangeConfig()
	cfg.RequestTimeout = 2 * time.Second
	cfg.TargetRTT = time.Second
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *ExchangeConfig) ValidateBasic() error {
	if cfg.RequestTimeout <= 0 {
		return errors.New("request-timeout must be positive")
	}
	if cfg.MeasurementImpact <= 0 || cfg.MeasurementImpact > 1 {
		return fmt.Errorf("measurement-impact must be in (0, 1], got %v", cfg.MeasurementImpact)
	}
	if cfg.TargetRTT <= 0 {
		return errors.New("target-rtt must be positive")
	}
	for name, max := range map[string]int{
		"max-header-fetch":    cfg.MaxHeaderFetch,
		"max-body-fetch":      cfg.MaxBodyFetch,
		"max-receipt-fetch":   cfg.MaxReceiptFetch,
		"max-node-data-fetch": cfg.MaxNodeDataFetch,
	} {
		if max < 1 {
			return fmt.Errorf("%s must be at least 1, got %d", name, max)
		}
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	Prometheus bool `mapstructure:"prometheus"`

	// Address to listen for Prometheus collector(s) connections.
	PrometheusListenAddr string `mapstructure:"prometheus-listen-addr"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() *InstrumentationConfig {
	return &InstrumentationConfig{
		Prometheus:           false,
		PrometheusListenAddr: ":26660",
		Namespace:            "tm_exchange",
	}
}

// TestInstrumentationConfig returns a default configuration for metrics
// reporting.
func TestInstrumentationConfig() *InstrumentationConfig {
	return DefaultInstrumentationConfig()
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *InstrumentationConfig) ValidateBasic() error {
	if cfg.Prometheus && cfg.PrometheusListenAddr == "" {
		return errors.New("prometheus-listen-addr can't be empty when prometheus is enabled")
	}
	return nil
}

//-----------------------------------------------------------------------------
// Utils

// helper function to make config creation independent of root dir
func rootify(path, root string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}
