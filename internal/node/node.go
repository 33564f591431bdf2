// Package node provides a reusable redemption node that can be embedded
// in any binary (daemon, integration tests).
package node

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-redemption/config"
	"github.com/Klingon-tech/klingnet-redemption/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-redemption/internal/log"
	"github.com/Klingon-tech/klingnet-redemption/internal/redemption"
	"github.com/Klingon-tech/klingnet-redemption/internal/rpc"
	"github.com/Klingon-tech/klingnet-redemption/internal/storage"
	"github.com/Klingon-tech/klingnet-redemption/internal/token"
	"github.com/rs/zerolog"
)

// gcInterval is how often the badger value log is compacted.
const gcInterval = 10 * time.Minute

// ledgerPrefix namespaces the ledger inside the root database.
var ledgerPrefix = []byte("ledger/")

// Node is a fully-initialized redemption node.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	logger  zerolog.Logger

	// Core
	db         storage.DB
	ledger     *ledger.Ledger
	proc       *redemption.Processor
	tokenStore *token.Store

	// RPC
	rpcServer *rpc.Server

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node. It performs all setup steps
// (logger, genesis, storage, ledger, processor, RPC) but does NOT start
// background goroutines. Call Start() for that.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Init logger ──────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = filepath.Join(logsDir, "redemptiond.log")
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, expandHome(logFile)); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.Node

	// ── 2. Genesis ──────────────────────────────────────────────────
	genesis, err := loadGenesis(cfg)
	if err != nil {
		return nil, err
	}
	programID, err := resolveProgram(cfg, genesis)
	if err != nil {
		return nil, err
	}
	custodian, err := cfg.CustodianAddress()
	if err != nil {
		return nil, err
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("network", string(cfg.Network)).
		Str("program", programID.String()).
		Msg("Starting Klingnet Redemption Node")

	// ── 3. Open storage ─────────────────────────────────────────────
	db, err := openStorage(cfg)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("backend", storageBackend(cfg)).
		Str("path", cfg.LedgerDir()).
		Msg("Database opened")

	// ── 4. Ledger ───────────────────────────────────────────────────
	ledgerDB := storage.NewPrefixDB(db, ledgerPrefix)
	l := ledger.New(ledgerDB, genesis.Rent)

	applied, err := applyGenesis(context.Background(), l, genesis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("apply genesis: %w", err)
	}
	if applied {
		logger.Info().
			Int("alloc", len(genesis.Alloc)).
			Int("mints", len(genesis.Mints)).
			Msg("Ledger initialized from genesis")
	} else {
		logger.Info().Msg("Ledger resumed from database")
	}

	// ── 5. Processor ────────────────────────────────────────────────
	proc := redemption.NewProcessor(l, redemption.Config{
		ProgramID: programID,
		Custodian: custodian,
	})
	tokenStore := token.NewStore(ledgerDB)
	if !custodian.IsZero() {
		logger.Info().Str("custodian", custodian.String()).Msg("Custodian co-signature required")
	}

	// ── 6. RPC server ───────────────────────────────────────────────
	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcAddr := net.JoinHostPort(cfg.RPC.Addr, strconv.Itoa(cfg.RPC.Port))
		rpcServer = rpc.New(rpcAddr, proc, genesis, cfg.RPC)
		rpcServer.SetTokenStore(tokenStore)
		if err := rpcServer.Start(); err != nil {
			db.Close()
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		logger.Info().Str("addr", rpcServer.Addr()).Msg("RPC server started")
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		cfg:        cfg,
		genesis:    genesis,
		logger:     logger,
		db:         db,
		ledger:     l,
		proc:       proc,
		tokenStore: tokenStore,
		rpcServer:  rpcServer,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Start launches background goroutines.
func (n *Node) Start() error {
	if bdb, ok := n.db.(*storage.BadgerDB); ok {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runGC(bdb, gcInterval)
		}()
	}

	n.logger.Info().
		Str("program", n.proc.ProgramID().String()).
		Str("rpc", n.RPCAddr()).
		Msg("Node started successfully")
	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("Goodbye!")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Processor returns the redemption processor.
func (n *Node) Processor() *redemption.Processor { return n.proc }

// Ledger returns the account ledger.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Genesis returns the genesis the ledger was created from.
func (n *Node) Genesis() *config.Genesis { return n.genesis }

// TokenStore returns the mint metadata store.
func (n *Node) TokenStore() *token.Store { return n.tokenStore }

// runGC compacts the badger value log until the node stops.
func (n *Node) runGC(db *storage.BadgerDB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			rewritten, err := db.RunGC(0.5)
			if err != nil {
				klog.Storage.Warn().Err(err).Msg("Value log GC failed")
				continue
			}
			if rewritten > 0 {
				klog.Storage.Debug().Int("files", rewritten).Msg("Value log GC")
			}
		}
	}
}
