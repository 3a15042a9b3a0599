package commands

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/tpu/config"
	"github.com/tendermint/tpu/libs/cli"
	"github.com/tendermint/tpu/libs/log"
	tmos "github.com/tendermint/tpu/libs/os"
	"github.com/tendermint/tpu/types"
)

// clearConfig clears env vars and resets viper.
func clearConfig(t *testing.T) *config.Config {
	t.Helper()
	require.NoError(t, os.Unsetenv("TPUHOME"))
	require.NoError(t, os.Unsetenv("TPU_HOME"))

	viper.Reset()
	return config.DefaultConfig()
}

// prepare new rootCmd that runs its persistent hooks
func testRootCmd(conf *config.Config) *cobra.Command {
	logger := log.NewNopLogger()
	cmd := RootCommand(conf, &logger)
	cmd.RunE = func(*cobra.Command, []string) error { return nil }
	var l string
	cmd.PersistentFlags().String("log", l, "Log")
	return cmd
}

func TestRootHome(t *testing.T) {
	defaultRoot := t.TempDir()
	newRoot := filepath.Join(defaultRoot, "something-else")
	cases := []struct {
		args []string
		env  map[string]string
		root string
	}{
		{[]string{"--home", defaultRoot}, nil, defaultRoot},
		{[]string{"--home", newRoot}, nil, newRoot},
		{nil, map[string]string{"TPUHOME": newRoot}, newRoot},
		{nil, map[string]string{"TPU_HOME": defaultRoot}, defaultRoot},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t)
			cmd := testRootCmd(conf)

			err := RunWithArgs(ctx, cmd, append([]string{cmd.Use}, tc.args...), tc.env)
			require.NoError(t, err)

			require.Equal(t, tc.root, conf.RootDir)
			require.Equal(t, tc.root, conf.Tracer.RootDir)
			require.Equal(t, tc.root, conf.StakedNodes.RootDir)
			assert.True(t, tmos.FileExists(filepath.Join(tc.root, "data")))
		})
	}
}

func TestRootFlagsEnv(t *testing.T) {
	defaultLogLvl := config.DefaultConfig().LogLevel
	home := t.TempDir()

	cases := []struct {
		args     []string
		env      map[string]string
		logLevel string
	}{
		// wrong flag
		{[]string{"--log", "debug"}, nil, defaultLogLvl},
		// right flag
		{[]string{"--log-level", "debug"}, nil, "debug"},
		{nil, map[string]string{"TPU_LOG_LEVEL": "error"}, "error"},
		// flag over rides env
		{[]string{"--log-level", "debug"}, map[string]string{"TPU_LOG_LEVEL": "error"}, "debug"},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			conf := clearConfig(t)
			cmd := testRootCmd(conf)

			args := append([]string{cmd.Use, "--home", home}, tc.args...)
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
	cvals := map[string]string{
		"log-level": "debug",
		"moniker":   "from-file",
	}

	cases := []struct {
		args   []string
		logLvl string
	}{
		{nil, "debug"},                         // should load config
		{[]string{"--log-level=info"}, "info"}, // flag over rides
	}

	for i, tc := range cases {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			root := t.TempDir()
			conf := clearConfig(t)

			configDir := filepath.Join(root, "config")
			require.NoError(t, tmos.EnsureDir(configDir, 0700))
			require.NoError(t, WriteConfigVals(configDir, cvals))

			cmd := testRootCmd(conf)
			args := append([]string{cmd.Use, "--home", root}, tc.args...)
			require.NoError(t, RunWithArgs(ctx, cmd, args, nil))

			assert.Equal(t, tc.logLvl, conf.LogLevel)
			assert.Equal(t, "from-file", conf.Moniker)
		})
	}
}

func TestRootRejectsInvalidConfig(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	root := t.TempDir()
	configDir := filepath.Join(root, "config")
	require.NoError(t, tmos.EnsureDir(configDir, 0700))
	require.NoError(t, WriteConfigVals(configDir, map[string]string{"log-format": "xml"}))

	conf := clearConfig(t)
	cmd := testRootCmd(conf)
	err := RunWithArgs(ctx, cmd, []string{cmd.Use, "--home", root}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log-format")
}

func TestInitFiles(t *testing.T) {
	conf := config.TestConfig().SetRoot(t.TempDir())
	config.EnsureRoot(conf.RootDir)

	require.NoError(t, initFiles(conf, log.NewNopLogger()))
	assert.True(t, tmos.FileExists(conf.ConfigFile()))

	id, err := types.LoadIdentity(conf.IdentityKeyFile())
	require.NoError(t, err)

	// a second run keeps both files
	require.NoError(t, initFiles(conf, log.NewNopLogger()))
	id2, err := types.LoadIdentity(conf.IdentityKeyFile())
	require.NoError(t, err)
	assert.Equal(t, id.Pubkey, id2.Pubkey)
}

func TestShowCommands(t *testing.T) {
	conf := config.TestConfig().SetRoot(t.TempDir())
	config.EnsureRoot(conf.RootDir)
	require.NoError(t, initFiles(conf, log.NewNopLogger()))

	id, err := types.LoadIdentity(conf.IdentityKeyFile())
	require.NoError(t, err)

	var out bytes.Buffer
	cmd := NewShowIdentityCmd(conf)
	cmd.SetOut(&out)
	require.NoError(t, cmd.RunE(cmd, nil))
	assert.Equal(t, id.Pubkey.String()+"\n", out.String())

	conf.Tip.TipPaymentProgramID = id.Pubkey.String()
	out.Reset()
	cmd = NewShowBlacklistCmd(conf)
	cmd.SetOut(&out)
	require.NoError(t, cmd.RunE(cmd, nil))
	assert.Contains(t, strings.Split(out.String(), "\n"), id.Pubkey.String())
}

// WriteConfigVals writes a toml file with the given values.
// It returns an error if writing was impossible.
func WriteConfigVals(dir string, vals map[string]string) error {
	data := ""
	for k, v := range vals {
		data += fmt.Sprintf("%s = \"%s\"\n", k, v)
	}
	cfile := filepath.Join(dir, "config.toml")
	return os.WriteFile(cfile, []byte(data), 0600)
}

// RunWithArgs executes the given command with the specified command line args
// and environmental variables set. It returns any error returned from cmd.Execute()
func RunWithArgs(ctx context.Context, cmd *cobra.Command, args []string, env map[string]string) error {
	oargs := os.Args
	oenv := map[string]string{}
	// defer returns the environment back to normal
	defer func() {
		os.Args = oargs
		for k, v := range oenv {
			os.Setenv(k, v)
		}
	}()

	// set the args and env how we want them
	os.Args = args
	for k, v := range env {
		// backup old value if there, to restore at end
		oenv[k] = os.Getenv(k)
		err := os.Setenv(k, v)
		if err != nil {
			return err
		}
	}

	// and finally run the command
	cmd.SetErr(new(bytes.Buffer))
	return cli.RunWithTrace(ctx, cmd)
}
