package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	tmos "github.com/tendermint/tpu/libs/os"
)

// defaultDirPerm is the default permissions used when creating directories.
const defaultDirPerm = 0700

var configTemplate *template.Template

func init() {
	var err error
	tmpl := template.New("configFileTemplate").Funcs(template.FuncMap{
		"StringsJoin": strings.Join,
	})
	if configTemplate, err = tmpl.Parse(defaultConfigTemplate); err != nil {
		panic(err)
	}
}

/****** these are for production settings ***********/

// EnsureRoot creates the root, config, and data directories if they don't exist,
// and panics if it fails.
func EnsureRoot(rootDir string) {
	if err := tmos.EnsureDir(rootDir, defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		panic(err.Error())
	}
}

// WriteConfigFile renders config using the template and writes it to configFilePath.
// This function is called by cmd/tpu/commands/init.go
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

	return writeFile(path, buffer.Bytes(), 0644)
}

func writeDefaultConfigFileIfNone(rootDir string) error {
	configFilePath := filepath.Join(rootDir, defaultConfigFilePath)
	if !tmos.FileExists(configFilePath) {
		return WriteConfigFile(rootDir, DefaultConfig())
	}
	return nil
}

// Note: any changes to the comments/variables/mapstructure
// must be reflected in the appropriate struct in config/config.go
const defaultConfigTemplate = `# This is a TOML config file.
# For more information, see https://github.com/toml-lang/toml

# NOTE: Any path below can be absolute (e.g. "/var/tpu/data") or
# relative to the home directory (e.g. "data"). The home directory is
# "$HOME/.tpu" by default, but could be changed via $TPUHOME env variable
# or --home cmd flag.

#######################################################################
###                   Main Base Config Options                      ###
#######################################################################

# A custom human readable name for this node
moniker = "{{ .BaseConfig.Moniker }}"

# Output level for logging
log-level = "{{ .BaseConfig.LogLevel }}"

# Output format: 'plain' (colored text) or 'json'
log-format = "{{ .BaseConfig.LogFormat }}"

# Path to the file containing the node's ed25519 identity key
identity-key-file = "{{ js .BaseConfig.IdentityKey }}"

#######################################################
###          Ingress Configuration Options          ###
#######################################################
[tpu]

# UDP addresses for transactions, forwarded transactions and votes
laddr = "{{ .TPU.ListenAddress }}"
forward-laddr = "{{ .TPU.ForwardListenAddress }}"
vote-laddr = "{{ .TPU.VoteListenAddress }}"

# QUIC addresses. Leave empty to disable an endpoint.
quic-laddr = "{{ .TPU.QUICListenAddress }}"
quic-forward-laddr = "{{ .TPU.QUICForwardListenAddress }}"
quic-vote-laddr = "{{ .TPU.QUICVoteListenAddress }}"

# Address shreds are sent from
broadcast-laddr = "{{ .TPU.BroadcastAddress }}"

# Receive transactions and forwards over UDP. Votes are always received.
udp-enabled = {{ .TPU.UDPEnabled }}

# How long receivers wait to fill a batch
coalesce = "{{ .TPU.Coalesce }}"

# QUIC connection limits. Only the transaction endpoint admits unstaked peers.
max-connections-per-peer = {{ .TPU.MaxConnectionsPerPeer }}
max-staked-connections = {{ .TPU.MaxStakedConnections }}
max-unstaked-connections = {{ .TPU.MaxUnstakedConnections }}
max-connections-per-ip-per-minute = {{ .TPU.MaxConnectionsPerIPPerMinute }}

# Without a relayer heartbeat for this long, transactions are received
# directly again
heartbeat-timeout = "{{ .TPU.HeartbeatTimeout }}"

#######################################################
###          Banking Configuration Options          ###
#######################################################
[banking]

ticks-per-slot = {{ .Banking.TicksPerSlot }}
tick-duration = "{{ .Banking.TickDuration }}"

# Compute units a block may hold
block-cost-limit = {{ .Banking.BlockCostLimit }}

# Compute units held back for bundles during the first
# ticks-per-slot * reserved-ticks-numerator / reserved-ticks-denominator
# ticks of every slot
preallocated-bundle-cost = {{ .Banking.PreallocatedBundleCost }}
reserved-ticks-numerator = {{ .Banking.ReservedTicksNumerator }}
reserved-ticks-denominator = {{ .Banking.ReservedTicksDenominator }}

#######################################################
###          Relayer Configuration Options          ###
#######################################################
[relayer]

# Websocket URL of the relayer. Leave empty to disable.
url = "{{ .Relayer.URL }}"

expected-heartbeat-interval = "{{ .Relayer.ExpectedHeartbeatInterval }}"
oldest-allowed-heartbeat = "{{ .Relayer.OldestAllowedHeartbeat }}"

#######################################################
###        Block Engine Configuration Options       ###
#######################################################
[block-engine]

# Websocket URL of the block engine. Leave empty to disable.
url = "{{ .BlockEngine.URL }}"

#######################################################
###            Tip Configuration Options            ###
#######################################################
[tip]

tip-payment-program-id = "{{ .Tip.TipPaymentProgramID }}"
tip-distribution-program-id = "{{ .Tip.TipDistributionProgramID }}"

# Block builder and the percentage of tips it receives
block-builder = "{{ .Tip.BlockBuilder }}"
block-builder-commission = {{ .Tip.BlockBuilderCommission }}

#######################################################
###         Broadcast Configuration Options         ###
#######################################################
[broadcast]

# Addresses shreds are sent to
peers = [{{ range .Broadcast.Peers }}{{ printf "%q, " . }}{{end}}]

# Address that receives a copy of every shred. Leave empty to disable.
shred-receiver-address = "{{ .Broadcast.ShredReceiverAddress }}"

#######################################################
###           Tracer Configuration Options          ###
#######################################################
[tracer]

# Record every batch sent to the banking stage
enabled = {{ .Tracer.Enabled }}
path = "{{ js .Tracer.Path }}"

# Rotate the trace file at max-file-size bytes, keeping max-files old files
max-file-size = {{ .Tracer.MaxFileSize }}
max-files = {{ .Tracer.MaxFiles }}

#######################################################
###        Staked Nodes Configuration Options       ###
#######################################################
[staked-nodes]

# TOML file with a [staked_map_id] table of base58 pubkey = stake
overrides-file = "{{ js .StakedNodes.OverridesFile }}"

refresh-interval = "{{ .StakedNodes.RefreshInterval }}"

#######################################################
###       Instrumentation Configuration Options     ###
#######################################################
[instrumentation]

# When true, Prometheus metrics are served under /metrics on
# PrometheusListenAddr.
# Check out the documentation for the list of available metrics.
prometheus = {{ .Instrumentation.Prometheus }}

# Address to listen for Prometheus collector(s) connections
prometheus-listen-addr = "{{ .Instrumentation.PrometheusListenAddr }}"

# Instrumentation namespace
namespace = "{{ .Instrumentation.Namespace }}"
`

/****** these are for test settings ***********/

// ResetTestRoot creates a fresh root directory with a default config file
// and returns the test configuration rooted there.
func ResetTestRoot(dir, testName string) (*Config, error) {
	// create a unique, concurrency-safe test directory under dir
	rootDir, err := os.MkdirTemp(dir, fmt.Sprintf("%s_", testName))
	if err != nil {
		return nil, err
	}
	// ensure config and data subdirs are created
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultConfigDir), defaultDirPerm); err != nil {
		return nil, err
	}
	if err := tmos.EnsureDir(filepath.Join(rootDir, defaultDataDir), defaultDirPerm); err != nil {
		return nil, err
	}

	// Write default config file if missing.
	if err := writeDefaultConfigFileIfNone(rootDir); err != nil {
		return nil, err
	}

	config := TestConfig().SetRoot(rootDir)
	config.Instrumentation.Namespace = fmt.Sprintf("%s_%s", config.Instrumentation.Namespace, testName)
	return config, nil
}

func writeFile(filePath string, contents []byte, mode os.FileMode) error {
	if err := os.WriteFile(filePath, contents, mode); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
