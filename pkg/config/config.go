package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the custody engine configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Secrets    SecretsConfig    `yaml:"secrets"`
	Chains     ChainsConfig     `yaml:"chains"`
	Deposit    DepositConfig    `yaml:"deposit"`
	TxMonitor  TxMonitorConfig  `yaml:"tx_monitor"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Treasury   TreasuryConfig   `yaml:"treasury"`
	Events     EventsConfig     `yaml:"events"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
}

// ServerConfig contains the operational HTTP server settings
type ServerConfig struct {
	Host string `yaml:"host" default:"0.0.0.0"`
	Port int    `yaml:"port" default:"8080" validate:"min=1,max=65535"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432" validate:"min=1,max=65535"`
	User     string `yaml:"user" validate:"required"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"custody" validate:"required"`
	SSLMode  string `yaml:"ssl_mode" default:"disable" validate:"oneof=disable require verify-ca verify-full"`
	// MaxOpenConns bounds the pool shared by the monitors and services.
	MaxOpenConns int `yaml:"max_open_conns" default:"20" validate:"min=0"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// SecretsConfig describes where the HD master mnemonic comes from.
//
// Provider "cipher" decrypts EncryptedMnemonic with the AES-256 key held in
// MasterKeyEnv. Provider "plain" reads the mnemonic from MnemonicEnv and is
// intended for development networks only.
type SecretsConfig struct {
	Provider          string `yaml:"provider" default:"cipher" validate:"oneof=cipher plain"`
	EncryptedMnemonic string `yaml:"encrypted_mnemonic" validate:"required_if=Provider cipher"`
	MasterKeyEnv      string `yaml:"master_key_env" default:"CUSTODY_MASTER_KEY"`
	MnemonicEnv       string `yaml:"mnemonic_env" default:"CUSTODY_MNEMONIC"`
	Passphrase        string `yaml:"passphrase"`
}

// ChainsConfig holds the per-chain adapter settings
type ChainsConfig struct {
	ETH EVMConfig     `yaml:"eth"`
	BSC EVMConfig     `yaml:"bsc"`
	BTC BitcoinConfig `yaml:"btc"`
	SOL SolanaConfig  `yaml:"sol"`
	XRP XRPConfig     `yaml:"xrp"`
}

// EVMConfig contains settings for one EVM-family chain
type EVMConfig struct {
	Enabled            bool          `yaml:"enabled"`
	RPCURL             string        `yaml:"rpc_url" validate:"required_if=Enabled true"`
	ChainID            int64         `yaml:"chain_id" validate:"required_if=Enabled true"`
	Symbol             string        `yaml:"symbol"`
	Confirmations      uint64        `yaml:"confirmations" default:"12"`
	GasLimit           uint64        `yaml:"gas_limit" default:"21000"`
	MaxBlocksPerPass   uint64        `yaml:"max_blocks_per_pass" default:"50"`
	LookbackBlocks     uint64        `yaml:"lookback_blocks" default:"200"`
	PostBroadcastDelay time.Duration `yaml:"post_broadcast_delay" default:"3s"`
	SweepDestination   string        `yaml:"sweep_destination"`
}

// BitcoinConfig contains settings for the UTXO adapter
type BitcoinConfig struct {
	Enabled          bool          `yaml:"enabled"`
	APIURL           string        `yaml:"api_url" validate:"required_if=Enabled true"`
	Network          string        `yaml:"network" default:"mainnet" validate:"oneof=mainnet testnet"`
	FeeSats          int64         `yaml:"fee_sats" default:"2000" validate:"min=1"`
	MinConfirmations uint64        `yaml:"min_confirmations" default:"3"`
	RequestTimeout   time.Duration `yaml:"request_timeout" default:"15s"`
	SweepDestination string        `yaml:"sweep_destination"`
}

// SolanaConfig contains settings for the Solana adapter
type SolanaConfig struct {
	Enabled            bool          `yaml:"enabled"`
	RPCURL             string        `yaml:"rpc_url" validate:"required_if=Enabled true"`
	SignaturesPerScan  int           `yaml:"signatures_per_scan" default:"10"`
	PostBroadcastDelay time.Duration `yaml:"post_broadcast_delay" default:"2s"`
	SweepDestination   string        `yaml:"sweep_destination"`
}

// XRPConfig contains settings for the shared-address XRP adapter
type XRPConfig struct {
	Enabled          bool          `yaml:"enabled"`
	RPCURL           string        `yaml:"rpc_url" validate:"required_if=Enabled true"`
	FeeDrops         int64         `yaml:"fee_drops" default:"12"`
	LedgerOffset     uint32        `yaml:"ledger_offset" default:"20"`
	RequestTimeout   time.Duration `yaml:"request_timeout" default:"15s"`
	SweepDestination string        `yaml:"sweep_destination"`
}

// DepositConfig contains deposit monitor timing
type DepositConfig struct {
	Pulse            time.Duration `yaml:"pulse" default:"30s"`
	InterChainDelay  time.Duration `yaml:"inter_chain_delay" default:"2s"`
	BalanceCallDelay time.Duration `yaml:"balance_call_delay" default:"200ms"`
	Cooldown         time.Duration `yaml:"cooldown" default:"60s"`
	PollingWindow    time.Duration `yaml:"polling_window" default:"5m"`
	UpgradeWindow    time.Duration `yaml:"upgrade_window" default:"10m"`
	ClockSkew        time.Duration `yaml:"clock_skew" default:"2m"`
	BaselineTimeout  time.Duration `yaml:"baseline_timeout" default:"5s"`
}

// TxMonitorConfig contains transaction status monitor timing
type TxMonitorConfig struct {
	Interval    time.Duration `yaml:"interval" default:"15s"`
	DropTimeout time.Duration `yaml:"drop_timeout" default:"30m"`
	BatchSize   int           `yaml:"batch_size" default:"100"`
}

// SweepConfig contains scheduled sweep settings
type SweepConfig struct {
	ScheduleEnabled bool          `yaml:"schedule_enabled"`
	Interval        time.Duration `yaml:"interval" default:"6h"`
	InitiatedBy     string        `yaml:"initiated_by" default:"scheduler"`
}

// TreasuryConfig contains treasury resync settings
type TreasuryConfig struct {
	SyncInterval time.Duration `yaml:"sync_interval" default:"5m"`
}

// EventsConfig contains the domain event publisher settings
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Stream  string `yaml:"stream" default:"CUSTODY_EVENTS"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

// Load loads configuration from a YAML file. ${VAR} references are expanded
// from the environment before parsing.
func Load(configPath string) (*Config, error) {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(raw)
}

// Parse decodes, defaults and validates a configuration document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}
	if !cfg.Chains.ETH.Enabled && !cfg.Chains.BSC.Enabled && !cfg.Chains.BTC.Enabled &&
		!cfg.Chains.SOL.Enabled && !cfg.Chains.XRP.Enabled {
		return errors.New("at least one chain must be enabled")
	}
	return nil
}
