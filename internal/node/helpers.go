package node

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-redemption/config"
	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/pkg/types"
)

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// loadGenesis reads the configured genesis file, or the built-in genesis
// of the network, and validates it.
func loadGenesis(cfg *config.Config) (*config.Genesis, error) {
	var (
		g   *config.Genesis
		err error
	)
	if cfg.GenesisFile != "" {
		g, err = config.LoadGenesis(expandHome(cfg.GenesisFile))
		if err != nil {
			return nil, fmt.Errorf("load genesis %s: %w", cfg.GenesisFile, err)
		}
	} else {
		g = config.GenesisFor(cfg.Network)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("invalid genesis: %w", err)
	}
	return g, nil
}

// resolveProgram returns the genesis program id. A program.id in the
// node config must name the same program.
func resolveProgram(cfg *config.Config, g *config.Genesis) (types.Address, error) {
	programID, err := g.Program()
	if err != nil {
		return types.Address{}, err
	}
	if cfg.Program.ID == "" {
		return programID, nil
	}
	configured, err := types.ParseAddress(cfg.Program.ID)
	if err != nil {
		return types.Address{}, fmt.Errorf("program.id: %w", err)
	}
	if configured != programID {
		return types.Address{}, fmt.Errorf("program.id %s does not match genesis program %s", configured, programID)
	}
	return programID, nil
}

func storageBackend(cfg *config.Config) string {
	if cfg.Storage.Backend == "" {
		return config.BackendBadger
	}
	return cfg.Storage.Backend
}

// openStorage opens the root database for the configured backend.
func openStorage(cfg *config.Config) (storage.DB, error) {
	switch backend := storageBackend(cfg); backend {
	case config.BackendMemory:
		return storage.NewMemory(), nil
	case config.BackendBadger:
		db, err := storage.NewBadger(expandHome(cfg.LedgerDir()))
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", backend)
	}
}
