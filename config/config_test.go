package config

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	assert.NotNil(cfg.Exchange)
	assert.NotNil(cfg.Instrumentation)

	cfg.SetRoot("/foo")
	assert.Equal("/foo/config/config.toml", cfg.ConfigFile())
}

func TestConfigValidateBasic(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.ValidateBasic())

	cfg.Exchange.RequestTimeout = -10 * time.Second
	err := cfg.ValidateBasic()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "[exchange]")
}

func TestBaseConfigValidateBasic(t *testing.T) {
	cfg := TestBaseConfig()
	assert.NoError(t, cfg.ValidateBasic())

	// tamper with log format
	cfg.LogFormat = "invalid"
	assert.Error(t, cfg.ValidateBasic())

	cfg = TestBaseConfig()
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.ValidateBasic())
}

func TestExchangeConfigValidateBasic(t *testing.T) {
	cfg := TestExchangeConfig()
	assert.NoError(t, cfg.ValidateBasic())

	fieldsToTest := []string{
		"RequestTimeout",
		"TargetRTT",
		"MaxHeaderFetch",
		"MaxBodyFetch",
		"MaxReceiptFetch",
		"MaxNodeDataFetch",
	}

	for _, fieldName := range fieldsToTest {
		reflect.ValueOf(cfg).Elem().FieldByName(fieldName).SetInt(-1)
		assert.Error(t, cfg.ValidateBasic(), fieldName)
		reflect.ValueOf(cfg).Elem().FieldByName(fieldName).SetInt(0)
		assert.Error(t, cfg.ValidateBasic(), fieldName)
		cfg = TestExchangeConfig()
	}

	for _, impact := range []float64{0, -0.5, 1.5} {
		cfg.MeasurementImpact = impact
		assert.Error(t, cfg.ValidateBasic(), impact)
	}
	cfg.MeasurementImpact = 1
	assert.NoError(t, cfg.ValidateBasic())
}

func TestInstrumentationConfigValidateBasic(t *testing.T) {
	cfg := TestInstrumentationConfig()
	assert.NoError(t, cfg.ValidateBasic())

	cfg.Prometheus = true
	cfg.PrometheusListenAddr = ""
	assert.Error(t, cfg.ValidateBasic())
}
