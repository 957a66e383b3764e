// Package config loads the YAML configuration shared by the custody
// daemon and CLI: network selection, relay endpoints, chain-oracle
// connection, storage location, and default fee policy.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Network identifies the bitcoin network the core operates on.
type Network string

const (
	NetworkBitcoin  Network = "bitcoin"
	NetworkTestnet4 Network = "testnet4"
	NetworkSignet   Network = "signet"
	NetworkRegtest  Network = "regtest"
)

// MainnetElectrumServers, TestnetElectrumServers and SignetElectrumServers
// are the default chain-oracle server pools, carried over from the
// teacher plugin's public server list.
var (
	MainnetElectrumServers = []string{
		"ssl://electrum.blockstream.info:50002",
		"ssl://electrum.emzy.de:50002",
		"ssl://fortress.qtornado.com:50002",
	}
	TestnetElectrumServers = []string{
		"ssl://electrum.blockstream.info:60002",
	}
	SignetElectrumServers = []string{
		"ssl://signet-electrumx.wakiyamap.dev:50002",
	}
)

// Config is the root configuration object.
type Config struct {
	Network          Network       `yaml:"network"`
	Relays           []string      `yaml:"relays"`
	ElectrumURL      string        `yaml:"electrum_url"`
	MinConfirmations int           `yaml:"min_confirmations"`
	StoragePath      string        `yaml:"storage_path"`
	DefaultFeeRate   int64         `yaml:"default_fee_rate_sat_vb"`
	RelayTimeout     time.Duration `yaml:"relay_timeout"`
	ChainTimeout     time.Duration `yaml:"chain_timeout"`
}

// Default returns the configuration the daemon starts from absent a
// config file, mirroring the teacher plugin's defaults (mainnet, one
// confirmation, its public Electrum pool).
func Default() *Config {
	return &Config{
		Network:          NetworkBitcoin,
		Relays:           []string{"wss://relay.covault.example"},
		ElectrumURL:      MainnetElectrumServers[0],
		MinConfirmations: 1,
		StoragePath:      "./custody-data",
		DefaultFeeRate:   10,
		RelayTimeout:     60 * time.Second,
		ChainTimeout:     30 * time.Second,
	}
}

// Load reads and parses a YAML config file, filling unset fields from
// Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.RelayTimeout == 0 {
		cfg.RelayTimeout = 60 * time.Second
	}
	if cfg.ChainTimeout == 0 {
		cfg.ChainTimeout = 30 * time.Second
	}
	return cfg, nil
}

// ElectrumServerPool returns the default server pool for the configured
// network. It does not consult ElectrumURL.
func (c *Config) ElectrumServerPool() []string {
	switch c.Network {
	case NetworkTestnet4:
		return TestnetElectrumServers
	case NetworkSignet:
		return SignetElectrumServers
	default:
		return MainnetElectrumServers
	}
}
