package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tendermint/tpu/internal/cost"
	"github.com/tendermint/tpu/internal/streamer"
	"github.com/tendermint/tpu/types"
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
// NOTE: libs/cli must know to look in the config dir!
var (
	DefaultTPUDir    = ".tpu"
	defaultConfigDir = "config"
	defaultDataDir   = "data"

	defaultConfigFileName  = "config.toml"
	defaultIdentityKeyName = "identity.key"

	defaultConfigFilePath  = filepath.Join(defaultConfigDir, defaultConfigFileName)
	defaultIdentityKeyPath = filepath.Join(defaultConfigDir, defaultIdentityKeyName)
	defaultTracePath       = filepath.Join(defaultDataDir, "banking_trace.log")
	defaultOverridesPath   = filepath.Join(defaultConfigDir, "staked_overrides.toml")
)

// Config defines the top level configuration for a TPU node
type Config struct {
	// Top level options use an anonymous struct
	BaseConfig `mapstructure:",squash"`

	// Options for services
	TPU             *TPUConfig             `mapstructure:"tpu"`
	Banking         *BankingConfig         `mapstructure:"banking"`
	Relayer         *RelayerConfig         `mapstructure:"relayer"`
	BlockEngine     *BlockEngineConfig     `mapstructure:"block-engine"`
	Tip             *TipConfig             `mapstructure:"tip"`
	Broadcast       *BroadcastConfig       `mapstructure:"broadcast"`
	Tracer          *TracerConfig          `mapstructure:"tracer"`
	StakedNodes     *StakedNodesConfig     `mapstructure:"staked-nodes"`
	Instrumentation *InstrumentationConfig `mapstructure:"instrumentation"`
}

// DefaultConfig returns a default configuration for a TPU node
func DefaultConfig() *Config {
	return &Config{
		BaseConfig:      DefaultBaseConfig(),
		TPU:             DefaultTPUConfig(),
		Banking:         DefaultBankingConfig(),
		Relayer:         DefaultRelayerConfig(),
		BlockEngine:     DefaultBlockEngineConfig(),
		Tip:             DefaultTipConfig(),
		Broadcast:       DefaultBroadcastConfig(),
		Tracer:          DefaultTracerConfig(),
		StakedNodes:     DefaultStakedNodesConfig(),
		Instrumentation: DefaultInstrumentationConfig(),
	}
}

// TestConfig returns a configuration that can be used for testing
func TestConfig() *Config {
	return &Config{
		BaseConfig:      TestBaseConfig(),
		TPU:             TestTPUConfig(),
		Banking:         TestBankingConfig(),
		Relayer:         DefaultRelayerConfig(),
		BlockEngine:     DefaultBlockEngineConfig(),
		Tip:             DefaultTipConfig(),
		Broadcast:       DefaultBroadcastConfig(),
		Tracer:          DefaultTracerConfig(),
		StakedNodes:     DefaultStakedNodesConfig(),
		Instrumentation: TestInstrumentationConfig(),
	}
}

// SetRoot sets the RootDir for all Config structs
func (cfg *Config) SetRoot(root string) *Config {
	cfg.BaseConfig.RootDir = root
	cfg.Tracer.RootDir = root
	cfg.StakedNodes.RootDir = root
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *Config) ValidateBasic() error {
	if err := cfg.BaseConfig.ValidateBasic(); err != nil {
		return err
	}
	sections := []struct {
		name string
		err  error
	}{
		{"tpu", cfg.TPU.ValidateBasic()},
		{"banking", cfg.Banking.ValidateBasic()},
		{"relayer", cfg.Relayer.ValidateBasic()},
		{"block-engine", cfg.BlockEngine.ValidateBasic()},
		{"tip", cfg.Tip.ValidateBasic()},
		{"broadcast", cfg.Broadcast.ValidateBasic()},
		{"tracer", cfg.Tracer.ValidateBasic()},
		{"staked-nodes", cfg.StakedNodes.ValidateBasic()},
		{"instrumentation", cfg.Instrumentation.ValidateBasic()},
	}
	for _, s := range sections {
		if s.err != nil {
			return fmt.Errorf("error in [%s] section: %w", s.name, s.err)
		}
	}
	return nil
}

//-----------------------------------------------------------------------------
// BaseConfig

// BaseConfig defines the base configuration for a TPU node
type BaseConfig struct {
	// The root directory for all data.
	// This should be set in viper so it can unmarshal into this struct
	RootDir string `mapstructure:"home"`

	// A custom human readable name for this node
	Moniker string `mapstructure:"moniker"`

	// Output level for logging
	LogLevel string `mapstructure:"log-level"`

	// Output format: 'plain' (colored text) or 'json'
	LogFormat string `mapstructure:"log-format"`

	// Path to the file holding the node's ed25519 identity key, used for
	// the QUIC endpoints and to authenticate to the relayer and block engine
	IdentityKey string `mapstructure:"identity-key-file"`
}

// DefaultBaseConfig returns a default base configuration for a TPU node
func DefaultBaseConfig() BaseConfig {
	return BaseConfig{
		Moniker:     defaultMoniker,
		LogLevel:    DefaultLogLevel,
		LogFormat:   LogFormatPlain,
		IdentityKey: defaultIdentityKeyPath,
	}
}

// TestBaseConfig returns a base configuration for testing a TPU node
func TestBaseConfig() BaseConfig {
	cfg := DefaultBaseConfig()
	cfg.LogLevel = "debug"
	return cfg
}

// ConfigFile returns the full path to the config.toml file
func (cfg BaseConfig) ConfigFile() string {
	return rootify(defaultConfigFilePath, cfg.RootDir)
}

// IdentityKeyFile returns the full path to the identity key file
func (cfg BaseConfig) IdentityKeyFile() string {
	return rootify(cfg.IdentityKey, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg BaseConfig) ValidateBasic() error {
	switch cfg.LogFormat {
	case LogFormatPlain, LogFormatJSON:
	default:
		return errors.New("unknown log-format (must be 'plain' or 'json')")
	}
	if cfg.IdentityKey == "" {
		return errors.New("identity-key-file can't be empty")
	}
	return nil
}

// DefaultLogLevel defines a default log level as INFO.
const DefaultLogLevel = "info"

//-----------------------------------------------------------------------------
// TPUConfig

// TPUConfig defines the ingress sockets and connection limits
type TPUConfig struct {
	// UDP addresses transactions, forwarded transactions and votes are
	// received on
	ListenAddress        string `mapstructure:"laddr"`
	ForwardListenAddress string `mapstructure:"forward-laddr"`
	VoteListenAddress    string `mapstructure:"vote-laddr"`

	// QUIC addresses. An empty address disables the endpoint.
	QUICListenAddress        string `mapstructure:"quic-laddr"`
	QUICForwardListenAddress string `mapstructure:"quic-forward-laddr"`
	QUICVoteListenAddress    string `mapstructure:"quic-vote-laddr"`

	// Address the broadcast stage sends shreds from
	BroadcastAddress string `mapstructure:"broadcast-laddr"`

	// Receive transactions and forwards over UDP. Votes are always received.
	UDPEnabled bool `mapstructure:"udp-enabled"`

	// How long receivers wait to fill a batch
	Coalesce time.Duration `mapstructure:"coalesce"`

	MaxConnectionsPerPeer        int    `mapstructure:"max-connections-per-peer"`
	MaxStakedConnections         int    `mapstructure:"max-staked-connections"`
	MaxUnstakedConnections       int    `mapstructure:"max-unstaked-connections"`
	MaxConnectionsPerIPPerMinute uint64 `mapstructure:"max-connections-per-ip-per-minute"`

	// Without a relayer heartbeat for this long the node receives
	// transactions directly again
	HeartbeatTimeout time.Duration `mapstructure:"heartbeat-timeout"`
}

// DefaultTPUConfig returns a default configuration for the ingress sockets
func DefaultTPUConfig() *TPUConfig {
	return &TPUConfig{
		ListenAddress:                "0.0.0.0:8003",
		ForwardListenAddress:         "0.0.0.0:8004",
		VoteListenAddress:            "0.0.0.0:8005",
		QUICListenAddress:            "0.0.0.0:8009",
		QUICForwardListenAddress:     "0.0.0.0:8010",
		QUICVoteListenAddress:        "0.0.0.0:8011",
		BroadcastAddress:             "0.0.0.0:8006",
		UDPEnabled:                   true,
		Coalesce:                     streamer.DefaultCoalesce,
		MaxConnectionsPerPeer:        8,
		MaxStakedConnections:         streamer.MaxStakedConnections,
		MaxUnstakedConnections:       streamer.MaxUnstakedConnections,
		MaxConnectionsPerIPPerMinute: streamer.DefaultMaxConnectionsPerIPPerMinute,
		HeartbeatTimeout:             1500 * time.Millisecond,
	}
}

// TestTPUConfig returns a configuration binding ephemeral local ports
func TestTPUConfig() *TPUConfig {
	cfg := DefaultTPUConfig()
	cfg.ListenAddress = "127.0.0.1:0"
	cfg.ForwardListenAddress = "127.0.0.1:0"
	cfg.VoteListenAddress = "127.0.0.1:0"
	cfg.QUICListenAddress = ""
	cfg.QUICForwardListenAddress = ""
	cfg.QUICVoteListenAddress = ""
	cfg.BroadcastAddress = "127.0.0.1:0"
	cfg.Coalesce = time.Millisecond
	return cfg
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *TPUConfig) ValidateBasic() error {
	required := map[string]string{
		"laddr":           cfg.ListenAddress,
		"forward-laddr":   cfg.ForwardListenAddress,
		"vote-laddr":      cfg.VoteListenAddress,
		"broadcast-laddr": cfg.BroadcastAddress,
	}
	for name, addr := range required {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	optional := map[string]string{
		"quic-laddr":         cfg.QUICListenAddress,
		"quic-forward-laddr": cfg.QUICForwardListenAddress,
		"quic-vote-laddr":    cfg.QUICVoteListenAddress,
	}
	for name, addr := range optional {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	if cfg.Coalesce <= 0 {
		return errors.New("coalesce must be positive")
	}
	if cfg.MaxConnectionsPerPeer <= 0 {
		return errors.New("max-connections-per-peer must be positive")
	}
	if cfg.MaxStakedConnections < 0 || cfg.MaxUnstakedConnections < 0 {
		return errors.New("connection limits can't be negative")
	}
	if cfg.HeartbeatTimeout <= 0 {
		return errors.New("heartbeat-timeout must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// BankingConfig

// BankingConfig defines the slot clock and the block cost policy
type BankingConfig struct {
	TicksPerSlot uint64        `mapstructure:"ticks-per-slot"`
	TickDuration time.Duration `mapstructure:"tick-duration"`

	// Compute units a block may hold
	BlockCostLimit uint64 `mapstructure:"block-cost-limit"`

	// Compute units held back for bundles during the reserved part of
	// every slot
	PreallocatedBundleCost uint64 `mapstructure:"preallocated-bundle-cost"`

	// The reserved part of a slot is
	// ticks-per-slot * reserved-ticks-numerator / reserved-ticks-denominator
	ReservedTicksNumerator   uint64 `mapstructure:"reserved-ticks-numerator"`
	ReservedTicksDenominator uint64 `mapstructure:"reserved-ticks-denominator"`
}

// DefaultBankingConfig returns a default banking configuration
func DefaultBankingConfig() *BankingConfig {
	return &BankingConfig{
		TicksPerSlot:             64,
		TickDuration:             6250 * time.Microsecond,
		BlockCostLimit:           48_000_000,
		PreallocatedBundleCost:   3_000_000,
		ReservedTicksNumerator:   8,
		ReservedTicksDenominator: 10,
	}
}

// TestBankingConfig returns a banking configuration with short slots
func TestBankingConfig() *BankingConfig {
	cfg := DefaultBankingConfig()
	cfg.TicksPerSlot = 8
	cfg.TickDuration = 5 * time.Millisecond
	return cfg
}

// ReservedTicks returns the number of reserved ticks at the start of each
// slot.
func (cfg *BankingConfig) ReservedTicks() uint64 {
	return cost.ReservedTicks(cfg.TicksPerSlot, cfg.ReservedTicksNumerator, cfg.ReservedTicksDenominator)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *BankingConfig) ValidateBasic() error {
	if cfg.TicksPerSlot == 0 {
		return types.ConfigurationError{Param: "ticks-per-slot", Reason: "must be greater than zero"}
	}
	if cfg.TickDuration <= 0 {
		return types.ConfigurationError{Param: "tick-duration", Reason: "must be positive"}
	}
	if cfg.PreallocatedBundleCost > cfg.BlockCostLimit {
		return types.ConfigurationError{Param: "preallocated-bundle-cost", Reason: "exceeds block-cost-limit"}
	}
	if cfg.ReservedTicksDenominator == 0 && cfg.ReservedTicksNumerator != 0 {
		return types.ConfigurationError{Param: "reserved-ticks-denominator", Reason: "must be greater than zero"}
	}
	return nil
}

//-----------------------------------------------------------------------------
// RelayerConfig

// RelayerConfig defines the connection to the relayer
type RelayerConfig struct {
	// Websocket URL of the relayer. Empty disables the relayer.
	URL string `mapstructure:"url"`

	ExpectedHeartbeatInterval time.Duration `mapstructure:"expected-heartbeat-interval"`
	OldestAllowedHeartbeat    time.Duration `mapstructure:"oldest-allowed-heartbeat"`
}

// DefaultRelayerConfig returns a disabled relayer configuration
func DefaultRelayerConfig() *RelayerConfig {
	return &RelayerConfig{
		ExpectedHeartbeatInterval: 500 * time.Millisecond,
		OldestAllowedHeartbeat:    1500 * time.Millisecond,
	}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *RelayerConfig) ValidateBasic() error {
	if err := validateURL(cfg.URL); err != nil {
		return err
	}
	if cfg.ExpectedHeartbeatInterval < 0 || cfg.OldestAllowedHeartbeat < 0 {
		return errors.New("heartbeat durations can't be negative")
	}
	if cfg.OldestAllowedHeartbeat > 0 && cfg.OldestAllowedHeartbeat < cfg.ExpectedHeartbeatInterval {
		return errors.New("oldest-allowed-heartbeat must be at least expected-heartbeat-interval")
	}
	return nil
}

//-----------------------------------------------------------------------------
// BlockEngineConfig

// BlockEngineConfig defines the connection to the block engine
type BlockEngineConfig struct {
	// Websocket URL of the block engine. Empty disables the block engine.
	URL string `mapstructure:"url"`
}

// DefaultBlockEngineConfig returns a disabled block engine configuration
func DefaultBlockEngineConfig() *BlockEngineConfig {
	return &BlockEngineConfig{}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *BlockEngineConfig) ValidateBasic() error {
	return validateURL(cfg.URL)
}

//-----------------------------------------------------------------------------
// TipConfig

// TipConfig defines the tip programs and the block builder commission
type TipConfig struct {
	TipPaymentProgramID      string `mapstructure:"tip-payment-program-id"`
	TipDistributionProgramID string `mapstructure:"tip-distribution-program-id"`

	BlockBuilder           string `mapstructure:"block-builder"`
	BlockBuilderCommission uint64 `mapstructure:"block-builder-commission"`
}

// DefaultTipConfig returns an empty tip configuration
func DefaultTipConfig() *TipConfig {
	return &TipConfig{}
}

// Pubkeys decodes the configured accounts. Empty fields decode to the zero
// key.
func (cfg *TipConfig) Pubkeys() (payment, distribution, builder types.Pubkey, err error) {
	fields := []struct {
		name string
		val  string
		dst  *types.Pubkey
	}{
		{"tip-payment-program-id", cfg.TipPaymentProgramID, &payment},
		{"tip-distribution-program-id", cfg.TipDistributionProgramID, &distribution},
		{"block-builder", cfg.BlockBuilder, &builder},
	}
	for _, f := range fields {
		if f.val == "" {
			continue
		}
		pk, perr := types.PubkeyFromString(f.val)
		if perr != nil {
			return payment, distribution, builder, fmt.Errorf("invalid %s: %w", f.name, perr)
		}
		*f.dst = pk
	}
	return payment, distribution, builder, nil
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *TipConfig) ValidateBasic() error {
	if cfg.BlockBuilderCommission > 100 {
		return errors.New("block-builder-commission is a percentage and can't exceed 100")
	}
	_, _, _, err := cfg.Pubkeys()
	return err
}

//-----------------------------------------------------------------------------
// BroadcastConfig

// BroadcastConfig defines where shreds are sent
type BroadcastConfig struct {
	// Comma separated list of peer addresses
	Peers []string `mapstructure:"peers"`

	// Address that receives a copy of every shred. Empty disables it.
	ShredReceiverAddress string `mapstructure:"shred-receiver-address"`
}

// DefaultBroadcastConfig returns a broadcast configuration with no peers
func DefaultBroadcastConfig() *BroadcastConfig {
	return &BroadcastConfig{}
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *BroadcastConfig) ValidateBasic() error {
	for _, p := range cfg.Peers {
		if _, _, err := net.SplitHostPort(p); err != nil {
			return fmt.Errorf("invalid peer %q: %w", p, err)
		}
	}
	if cfg.ShredReceiverAddress != "" {
		if _, _, err := net.SplitHostPort(cfg.ShredReceiverAddress); err != nil {
			return fmt.Errorf("invalid shred-receiver-address: %w", err)
		}
	}
	return nil
}

//-----------------------------------------------------------------------------
// TracerConfig

// TracerConfig defines the banking trace file
type TracerConfig struct {
	RootDir string `mapstructure:"home"`

	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`

	// The trace file is rotated at max-file-size bytes and max-files old
	// files are kept
	MaxFileSize int64 `mapstructure:"max-file-size"`
	MaxFiles    int   `mapstructure:"max-files"`
}

// DefaultTracerConfig returns a disabled tracer configuration
func DefaultTracerConfig() *TracerConfig {
	return &TracerConfig{
		Path:        defaultTracePath,
		MaxFileSize: 64 << 20,
		MaxFiles:    4,
	}
}

// TraceFile returns the full path to the trace file
func (cfg *TracerConfig) TraceFile() string {
	return rootify(cfg.Path, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *TracerConfig) ValidateBasic() error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Path == "" {
		return errors.New("path can't be empty")
	}
	if cfg.MaxFileSize < 0 || cfg.MaxFiles < 0 {
		return errors.New("rotation limits can't be negative")
	}
	return nil
}

//-----------------------------------------------------------------------------
// StakedNodesConfig

// StakedNodesConfig defines where node stakes come from
type StakedNodesConfig struct {
	RootDir string `mapstructure:"home"`

	// TOML file with a [staked_map_id] table of base58 pubkey = stake
	OverridesFile string `mapstructure:"overrides-file"`

	RefreshInterval time.Duration `mapstructure:"refresh-interval"`
}

// DefaultStakedNodesConfig returns a default staked nodes configuration
func DefaultStakedNodesConfig() *StakedNodesConfig {
	return &StakedNodesConfig{
		OverridesFile:   defaultOverridesPath,
		RefreshInterval: 10 * time.Second,
	}
}

// OverridesPath returns the full path to the overrides file, or "" if none
// is configured.
func (cfg *StakedNodesConfig) OverridesPath() string {
	if cfg.OverridesFile == "" {
		return ""
	}
	return rootify(cfg.OverridesFile, cfg.RootDir)
}

// ValidateBasic performs basic validation (checking param bounds, etc.) and
// returns an error if any check fails.
func (cfg *StakedNodesConfig) ValidateBasic() error {
	if cfg.RefreshInterval <= 0 {
		return errors.New("refresh-interval must be positive")
	}
	return nil
}

//-----------------------------------------------------------------------------
// InstrumentationConfig

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics on
	// PrometheusListenAddr.
	// Check out the documentation for the list of available metrics.
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
		Namespace:            "tpu",
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

func validateURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("url %q must use the ws or wss scheme", raw)
	}
	return nil
}

//-----------------------------------------------------------------------------
// Moniker

var defaultMoniker = getDefaultMoniker()

// getDefaultMoniker returns a default moniker, which is the host name. If runtime
// fails to get the host name, "anonymous" will be returned.
func getDefaultMoniker() string {
	moniker, err := os.Hostname()
	if err != nil {
		moniker = "anonymous"
	}
	return moniker
}
