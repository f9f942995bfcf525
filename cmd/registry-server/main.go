package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/nytdevansh/V-Face-sub001/cmd/flags"
	"github.com/nytdevansh/V-Face-sub001/consent"
	"github.com/nytdevansh/V-Face-sub001/cryptoutils"
	"github.com/nytdevansh/V-Face-sub001/httpserver"
	"github.com/nytdevansh/V-Face-sub001/index"
	"github.com/nytdevansh/V-Face-sub001/interfaces"
	"github.com/nytdevansh/V-Face-sub001/ledger"
	"github.com/nytdevansh/V-Face-sub001/registry"
	"github.com/nytdevansh/V-Face-sub001/storage"
)

const consentTokenKeyInfo = "vface/consent-token/v1"

func main() {
	app := &cli.App{
		Name:   "registry-server",
		Usage:  "Serve the biometric identity registry API",
		Flags:  flags.ServerFlags,
		Action: runServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runServer(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	seedHex := cCtx.String(flags.MasterSeedFlag.Name)
	if seedHex == "" {
		logger.Error("master-seed is required")
		return errors.New("master-seed is required")
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil || len(seed) != 32 {
		logger.Error("Invalid master-seed - must be 64 hex chars (32 bytes)", "err", err)
		return fmt.Errorf("invalid master-seed: %v", err)
	}

	cipher, err := cryptoutils.NewEmbeddingCipher(seed)
	if err != nil {
		logger.Error("Failed to create embedding cipher", "err", err)
		return err
	}
	signingKey, err := cryptoutils.DeriveKey(seed, consentTokenKeyInfo)
	if err != nil {
		logger.Error("Failed to derive token signing key", "err", err)
		return err
	}

	// Identity records and the chain journal share the data directory; with
	// no directory everything lives in memory and dies with the process.
	var (
		identityStore interfaces.IdentityStore
		chain         interfaces.Ledger
	)
	if dataDir := cCtx.String(flags.DataDirFlag.Name); dataDir != "" {
		logger.Info("Using file-backed storage", "dataDir", dataDir)
		fileStore, err := storage.NewFileIdentityStore(dataDir, logger)
		if err != nil {
			logger.Error("Failed to open identity store", "err", err)
			return err
		}
		fileChain, err := storage.OpenFileChain(dataDir, logger)
		if err != nil {
			logger.Error("Failed to open chain journal", "err", err)
			return err
		}
		defer fileChain.Close()
		identityStore, chain = fileStore, fileChain
	} else {
		logger.Info("Using in-memory storage")
		identityStore, chain = storage.NewMemoryIdentityStore(), ledger.NewMemoryChain()
	}

	var consentStore interfaces.ConsentStore
	if redisURL := cCtx.String(flags.RedisURLFlag.Name); redisURL != "" {
		logger.Info("Using redis consent store")
		client, err := storage.NewRedisClient(context.Background(), redisURL)
		if err != nil {
			logger.Error("Failed to connect to redis", "err", err)
			return err
		}
		defer client.Close()
		consentStore = storage.NewRedisConsentStore(client)
	} else {
		consentStore = storage.NewMemoryConsentStore()
	}

	regCfg := registry.DefaultConfig()
	regCfg.SybilThreshold = cCtx.Float64(flags.SybilThresholdFlag.Name)

	reg := registry.New(regCfg, identityStore, index.NewCosineIndex(regCfg.Dim), chain, cipher, cryptoutils.EthereumSignatureVerifier{}, logger)
	if err := reg.RebuildIndex(); err != nil {
		logger.Error("Failed to rebuild similarity index", "err", err)
		return err
	}

	consents := consent.NewManager(consentStore, reg, signingKey, logger)
	handler := httpserver.NewHandler(reg, consents, chain, logger)

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server")
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")

	return nil
}
