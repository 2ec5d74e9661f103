package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/kvdb"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lightninglabs/headerchain/chain"
	"github.com/lightninglabs/headerchain/chainindex"
	"github.com/lightninglabs/headerchain/config"
	"github.com/lightninglabs/headerchain/headerpool"
	"github.com/lightninglabs/headerchain/organize"
	"github.com/lightninglabs/headerchain/populate"
	"github.com/lightninglabs/headerchain/signal"
	"github.com/lightninglabs/headerchain/validate"
)

// indexDBName is the bbolt database file NewStore is opened against inside
// cfg.DataDir.
const indexDBName = "headerchain.db"

func main() {
	if err := run(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	logFile := filepath.Join(cfg.LogDir, "headerchaind.log")
	if err := initLogRotator(logFile, 10, 3); err != nil {
		return err
	}
	setLogLevels(cfg.DebugLevel)

	signal.Intercept()

	powLimitBits, err := cfg.PowLimitBits()
	if err != nil {
		return fmt.Errorf("invalid powlimit: %w", err)
	}

	checkpoints, err := cfg.ParseCheckpoints()
	if err != nil {
		return err
	}
	checkpointSet := make(validate.CheckpointSet, len(checkpoints))
	for _, cp := range checkpoints {
		checkpointSet[cp.Height] = *cp.Hash
	}

	genesisWire := chaincfg.MainNetParams.GenesisBlock.Header
	genesis := chain.New(genesisWire, cfg.Scrypt)

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	dbPath := filepath.Join(cfg.DataDir, indexDBName)
	backend, err := kvdb.Create(kvdb.BoltBackendName, dbPath, true)
	if err != nil {
		return fmt.Errorf("opening chain index database: %w", err)
	}
	defer backend.Close()

	index, err := chainindex.NewStore(backend, genesis, cfg.Scrypt)
	if err != nil {
		return fmt.Errorf("initializing chain index: %w", err)
	}

	pop := populate.New(index, populate.Config{
		RetargetInterval: cfg.RetargetInterval,
		MedianTimeBlocks: cfg.MedianTimeBlocks,
		VersionWindow:    cfg.VersionWindow,
		PowLimitBits:     powLimitBits,
		BaseForks:        chain.Forks(cfg.BaseForks),
		BIP34Threshold:   cfg.BIP34Threshold,
		BIP65Threshold:   cfg.BIP65Threshold,
		BIP66Threshold:   cfg.BIP66Threshold,
		Deployments:      cfg.ParseDeployments(),
		Retarget:         populate.DefaultRetarget,
	})

	val := validate.New(validate.Config{
		TimestampLimitSeconds: cfg.TimestampLimitSeconds,
		PowLimitBits:          powLimitBits,
		Scrypt:                cfg.Scrypt,
	}, pop)

	pool := headerpool.New(index, cfg.MaxPoolEntries)

	org := organize.New(organize.Config{
		Pool:             pool,
		Index:            index,
		Validator:        val,
		Checkpoints:      checkpointSet,
		Concurrency:      4,
		EvictionInterval: time.Duration(cfg.StaleSeconds/4) * time.Second,
		EvictionMaxAge:   time.Duration(cfg.StaleSeconds) * time.Second,
	})
	org.RegisterMetrics()

	if err := org.Start(); err != nil {
		return fmt.Errorf("starting organizer: %w", err)
	}
	defer org.Stop()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	hcndLog.Infof("headerchaind started, candidate tip at height %d",
		org.TopHeight())

	<-signal.ShutdownChannel()
	return nil
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		hcndLog.Errorf("metrics server stopped: %v", err)
	}
}
