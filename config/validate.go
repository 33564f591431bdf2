package config

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}

	switch cfg.Storage.Backend {
	case "":
		cfg.Storage.Backend = BackendBadger
	case BackendBadger, BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be %q or %q", BackendBadger, BackendMemory)
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}

	if cfg.Program.ID != "" {
		if _, err := types.ParseAddress(cfg.Program.ID); err != nil {
			return fmt.Errorf("program.id: %w", err)
		}
	}
	if _, err := cfg.CustodianAddress(); err != nil {
		return err
	}
	return nil
}
