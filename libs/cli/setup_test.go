package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDemoCmd(value *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "demo",
		PersistentPreRunE: BindFlagsLoadViper,
		RunE: func(cmd *cobra.Command, args []string) error {
			*value = viper.GetString("foobar")
			return nil
		},
	}
	cmd.PersistentFlags().String(HomeFlag, "/qwerty/asdfgh", "home")
	cmd.Flags().String("foobar", "", "Some test value from config")
	return cmd
}

func TestSetupEnv(t *testing.T) {
	cases := []struct {
		args     []string
		env      map[string]string
		expected string
	}{
		{nil, nil, ""},
		{[]string{"--foobar", "bang!"}, nil, "bang!"},
		// test both variants of the prefix
		{nil, map[string]string{"DEMO_FOOBAR": "good"}, "good"},
		{nil, map[string]string{"DEMOFOOBAR": "silly"}, "silly"},
		// and that cli overrides env...
		{[]string{"--foobar", "important"}, map[string]string{"DEMO_FOOBAR": "ignored"}, "important"},
	}

	for _, tc := range cases {
		viper.Reset()
		for k, v := range tc.env {
			t.Setenv(k, v)
		}
		InitEnv("DEMO")

		var foo string
		cmd := newDemoCmd(&foo)
		cmd.SetArgs(tc.args)
		require.NoError(t, cmd.Execute())
		assert.Equal(t, tc.expected, foo, tc.args)

		for k := range tc.env {
			os.Unsetenv(k)
			os.Unsetenv("DEMO_FOOBAR")
		}
	}
}

func TestSetupConfigFile(t *testing.T) {
	viper.Reset()
	home := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(home, "config"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(home, "config", "config.toml"), []byte("foobar = \"from file\"\n"), 0600))

	var foo string
	cmd := newDemoCmd(&foo)
	cmd.SetArgs([]string{"--home", home})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "from file", foo)
}
