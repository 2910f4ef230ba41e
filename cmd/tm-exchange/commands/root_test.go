package commands

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tm-exchange/config"
	"github.com/tendermint/tm-exchange/libs/cli"
	"github.com/tendermint/tm-exchange/libs/log"
	"github.com/tendermint/tm-exchange/version"
)

// writeConfigVals writes a toml file with the given values.
// It returns an error if writing was impossible.
func writeConfigVals(dir string, vals map[string]string) error {
	data := ""
	for k, v := range vals {
		data += fmt.Sprintf("%s = \"%s\"\n", k, v)
	}
	cfile := filepath.Join(dir, "config.toml")
	return os.WriteFile(cfile, []byte(data), 0600)
}

// clearConfig clears env vars, the given root dir, and resets viper.
func clearConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	require.NoError(t, os.Unsetenv("TMEXHOME"))
	require.NoError(t, os.Unsetenv("TMEX_HOME"))
	require.NoError(t, os.RemoveAll(dir))

	viper.Reset()
	conf := config.DefaultConfig()
	conf.SetRoot(dir)

	return conf
}

// prepare new rootCmd
func testRootCmd(t *testing.T, conf *config.Config) *cobra.Command {
	t.Helper()
	logger, err := log.NewLogger(io.Discard, config.LogFormatPlain, config.DefaultLogLevel)
	require.NoError(t, err)

	cmd := RootCommand(conf, logger)
	cmd.AddCommand(MakeInitCommand(conf, logger), MakeSimulateCommand(conf, logger), VersionCmd)
	var l string
	cmd.PersistentFlags().String("log", l, "Log")
	return cmd
}

// RunWithArgs executes the given command with the specified command line args
// and environmental variables set. It returns any error returned from cmd.Execute()
func RunWithArgs(ctx context.Context, cmd *cobra.Command, args []string, env map[string]string) error {
	oargs := os.Args
	oenv := map[string]*string{}
	// defer returns the environment back to normal
	defer func() {
		os.Args = oargs
		for k, v := range oenv {
			if v == nil {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, *v)
			}
		}
	}()

	// set the args and env how we want them
	os.Args = args
	for k, v := range env {
		// backup old value if there, to restore at end
		if old, ok := os.LookupEnv(k); ok {
			oenv[k] = &old
		} else {
			oenv[k] = nil
		}
		if err := os.Setenv(k, v); err != nil {
			return err
		}
	}

	// and finally run the command
	return cli.RunWithTrace(ctx, cmd)
}

func TestRootHome(t *testing.T) {
	base := t.TempDir()
	cases := []struct {
		args []string
		env  map[string]string
		root string
	}{
		{[]string{"init", "--home", filepath.Join(base, "flag")}, nil, filepath.Join(base, "flag")},
		{[]string{"init"}, map[string]string{"TMEXHOME": filepath.Join(base, "env")}, filepath.Join(base, "env")},
		{[]string{"init"}, map[string]string{"TMEX_HOME": filepath.Join(base, "env2")}, filepath.Join(base, "env2")},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t, tc.root)
			cmd := testRootCmd(t, conf)

			err := RunWithArgs(ctx, cmd, append([]string{cmd.Use}, tc.args...), tc.env)
			require.NoError(t, err)

			require.Equal(t, tc.root, conf.RootDir)
			require.FileExists(t, filepath.Join(tc.root, "config", "config.toml"))
		})
	}
}

func TestRootFlagsEnv(t *testing.T) {
	defaultDir := t.TempDir()
	defaultLogLvl := config.DefaultConfig().LogLevel

	cases := []struct {
		args     []string
		env      map[string]string
		logLevel string
	}{
		// wrong flag
		{[]string{"--log", "debug"}, nil, defaultLogLvl},
		{[]string{"--log-level", "debug"}, nil, "debug"},
		{nil, map[string]string{"TMEX_LOG_LEVEL": "debug"}, "debug"},
		{nil, map[string]string{"TMEXLOG_LEVEL": "error"}, "error"},
		// flag over rides env
		{[]string{"--log-level", "warn"}, map[string]string{"TMEX_LOG_LEVEL": "debug"}, "warn"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			t.Cleanup(func() {
				os.Unsetenv("TMEX_LOG_LEVEL")
			})
			conf := clearConfig(t, defaultDir)
			cmd := testRootCmd(t, conf)

			args := append([]string{cmd.Use, "init", "--home", defaultDir}, tc.args...)
			err := RunWithArgs(ctx, cmd, args, tc.env)
			require.NoError(t, err)

			assert.Equal(t, tc.logLevel, conf.LogLevel)
		})
	}
}

func TestRootConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// write non-default config
	nonDefaultLogLvl := "debug"
	cvals := map[string]string{
		"log-level": nonDefaultLogLvl,
	}

	cases := []struct {
		args   []string
		logLvl string
	}{
		{nil, nonDefaultLogLvl},                // should load config
		{[]string{"--log-level=info"}, "info"}, // flag over rides
	}

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			defaultRoot := t.TempDir()
			conf := clearConfig(t, defaultRoot)

			configFilePath := filepath.Join(defaultRoot, "config")
			require.NoError(t, os.MkdirAll(configFilePath, 0700))
			require.NoError(t, writeConfigVals(configFilePath, cvals))

			cmd := testRootCmd(t, conf)
			args := append([]string{cmd.Use, "init", "--home", defaultRoot}, tc.args...)
			require.NoError(t, RunWithArgs(ctx, cmd, args, nil))

			require.Equal(t, tc.logLvl, conf.LogLevel)
		})
	}
}

func TestRootInvalidConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	conf := clearConfig(t, root)
	cmd := testRootCmd(t, conf)

	args := []string{cmd.Use, "init", "--home", root, "--log-format", "xml"}
	err := RunWithArgs(ctx, cmd, args, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "error in config file")
}

func TestVersionCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := clearConfig(t, t.TempDir())
	cmd := testRootCmd(t, conf)
	out := new(bytes.Buffer)
	cmd.SetOut(out)

	require.NoError(t, RunWithArgs(ctx, cmd, []string{cmd.Use, "version"}, nil))
	require.Equal(t, version.Version+"\n", out.String())
}

func TestSimulateCommand(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	conf := clearConfig(t, root)
	cmd := testRootCmd(t, conf)
	out := new(bytes.Buffer)
	cmd.SetOut(out)

	args := []string{
		cmd.Use, "simulate", "--home", root,
		"--peers", "2", "--blocks", "16", "--faulty", "0",
		"--latency", "1ms", "--exchange.request-timeout", "5s",
	}
	require.NoError(t, RunWithArgs(ctx, cmd, args, nil))

	require.Contains(t, out.String(), "fetched 16 headers, 16 bodies, 16 receipt lists")
	require.Contains(t, out.String(), "block_headers")
	require.NotContains(t, out.String(), "banned")
	require.Equal(t, 5*time.Second, conf.Exchange.RequestTimeout)
}
