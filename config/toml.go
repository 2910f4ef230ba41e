package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"text/template"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate")
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root and config directories if they don't exist.
func EnsureRoot(rootDir string) error {
	if err := os.MkdirAll(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		return fmt.Errorf("could not create directory %q: %w", rootDir, err)
	}
	return nil
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
// This function is called by cmd/tm-exchange/commands/init.go
func WriteConfigFile(rootDir string, config *Config) error {
	return config.WriteToTemplate(filepath.Join(rootDir, defaultConfigFilePath))
}

// WriteToTemplate writes the config to the exact file specified by
// the path, in the default toml template and does not mangle the path
// or filename at all.
func (cfg *Config) WriteToTemplate(path string) error {
	var buffer bytes.Buffer

	if err := configTemplate.Execute(&buffer, cfg); err != nil {
		return err
	}

	return os.WriteFile(path, buffer.Bytes(), 0644)
}

// WriteDefaultConfigFileIfNone writes the default configuration unless a
// config file already exists under rootDir.
func WriteDefaultConfigFileIfNone(rootDir string) error {
	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if _, err := os.Stat(configFilePath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return WriteConfigFile(rootDir, DefaultConfig())
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: The home directory is "$HOME/.tm-exchange" by default, but could be
# changed via $TMEXHOME env variable or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# Output level for logging: debug | info | warn | error
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

#######################################################################
###                 Exchange Configuration Options                  ###
#######################################################################
[exchange]

# How long to wait for a response unless a request asks otherwise.
request-timeout = "{{ .Exchange.RequestTimeout }}"

# Tag requests with ids and match responses by them. When false, responses
# are matched to the oldest pending request of the same kind.
use-request-ids = {{ .Exchange.UseRequestIDs }}

# Weight of a new sample in the moving averages kept per peer, in (0, 1].
measurement-impact = {{ .Exchange.MeasurementImpact }}

# Round trip time that recommended request sizes aim for.
target-rtt = "{{ .Exchange.TargetRTT }}"

# Upper bounds of the recommended request sizes.
max-header-fetch = {{ .Exchange.MaxHeaderFetch }}
max-body-fetch = {{ .Exchange.MaxBodyFetch }}
max-receipt-fetch = {{ .Exchange.MaxReceiptFetch }}
max-node-data-fetch = {{ .Exchange.MaxNodeDataFetch }}

#######################################################################
###       Instrumentation Configuration Options                     ###
#######################################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus-listen-addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

/****** these are for test settings ***********/

// ResetTestRoot creates a fresh root directory under dir with the default
// config file written, and returns a test configuration rooted there.
func ResetTestRoot(dir, testName string) (*Config, error) {
	// create a unique, concurrency-safe test directory under os.TempDir()
	rootDir, err := os.MkdirTemp(dir, fmt.Sprintf("%s_", testName))
	if err != nil {
		return nil, err
	}
	if err := EnsureRoot(rootDir); err != nil {
		return nil, err
	}
	if err := WriteDefaultConfigFileIfNone(rootDir); err != nil {
		return nil, err
	}
	return TestConfig().SetRoot(rootDir), nil
}
