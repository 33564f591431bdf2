// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: defined in genesis (program identity, rent, initial
//     ledger), fixed for the lifetime of a ledger
//   - Node settings: runtime configuration, can vary per node
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Storage backends.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`
	// Genesis file; empty uses the built-in genesis for Network.
	GenesisFile string `conf:"genesis"`

	// Storage
	Storage StorageConfig

	// RPC server
	RPC RPCConfig

	// Program identity and custody
	Program ProgramConfig

	// Logging
	Log LogConfig
}

// StorageConfig holds ledger storage settings.
type StorageConfig struct {
	Backend string `conf:"storage.backend"` // badger or memory
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// ProgramConfig holds the redemption program settings.
type ProgramConfig struct {
	// ID overrides nothing: when set it must equal the genesis program
	// id, which catches a node pointed at the wrong ledger.
	ID string `conf:"program.id"`
	// Custodian, when set, must co-sign every Return and Burn.
	Custodian string `conf:"program.custodian"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// CustodianAddress parses program.custodian. The zero address means
// no custodian is configured.
func (c *Config) CustodianAddress() (types.Address, error) {
	if c.Program.Custodian == "" {
		return types.Address{}, nil
	}
	addr, err := types.ParseAddress(c.Program.Custodian)
	if err != nil {
		return types.Address{}, fmt.Errorf("program.custodian: %w", err)
	}
	return addr, nil
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.klingnet-redemption
//	macOS:   ~/Library/Application Support/KlingnetRedemption
//	Windows: %APPDATA%\KlingnetRedemption
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".klingnet-redemption"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "KlingnetRedemption")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "KlingnetRedemption")
		}
		return filepath.Join(home, "AppData", "Roaming", "KlingnetRedemption")
	default:
		return filepath.Join(home, ".klingnet-redemption")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// LedgerDir returns the ledger database directory.
func (c *Config) LedgerDir() string {
	return filepath.Join(c.NetworkDataDir(), "ledger")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "redemption.conf")
}
