package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/nytdevansh/V-Face-sub001/api"
	"github.com/nytdevansh/V-Face-sub001/api/clients"
	"github.com/nytdevansh/V-Face-sub001/cryptoutils"
	"github.com/nytdevansh/V-Face-sub001/fingerprint"
)

var flagServerAddr = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "Registry server address to request",
}

var flagMasterSeed = &cli.StringFlag{
	Name:  "master-seed",
	Usage: "hex-encoded 32-byte seed shared with the server, used to encrypt embeddings",
}

var flagPrivateKey = &cli.StringFlag{
	Name:  "private-key",
	Usage: "hex-encoded secp256k1 private key of the identity owner",
}

var flagEmbeddingFile = &cli.StringFlag{
	Name:  "embedding-file",
	Usage: "path to a JSON array holding the embedding vector",
}

var flagSalt = &cli.StringFlag{
	Name:  "salt",
	Usage: "optional salt mixed into fingerprint derivation",
}

var flagFingerprint = &cli.StringFlag{
	Name:  "fingerprint",
	Usage: "64-hex-char identity fingerprint",
}

var flagThreshold = &cli.Float64Flag{
	Name:  "threshold",
	Value: 0.85,
	Usage: "minimum cosine similarity for search matches",
}

func main() {
	app := &cli.App{
		Name:  "registry-client",
		Usage: "Command-line client for the identity registry API",
		Flags: []cli.Flag{flagServerAddr},
		Commands: []*cli.Command{
			{
				Name:   "health",
				Usage:  "Fetch the service health document",
				Action: runHealth,
			},
			{
				Name:   "register",
				Usage:  "Derive a fingerprint from an embedding and register it",
				Flags:  []cli.Flag{flagMasterSeed, flagPrivateKey, flagEmbeddingFile, flagSalt},
				Action: runRegister,
			},
			{
				Name:   "check",
				Usage:  "Look up a fingerprint's registration state",
				Flags:  []cli.Flag{flagFingerprint},
				Action: runCheck,
			},
			{
				Name:   "search",
				Usage:  "Search registered identities by embedding similarity",
				Flags:  []cli.Flag{flagMasterSeed, flagEmbeddingFile, flagThreshold},
				Action: runSearch,
			},
			{
				Name:   "revoke",
				Usage:  "Sign a revocation challenge and revoke an identity",
				Flags:  []cli.Flag{flagPrivateKey, flagFingerprint},
				Action: runRevoke,
			},
			{
				Name:   "chain-verify",
				Usage:  "Verify the server's full hash chain",
				Action: runChainVerify,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) *clients.RegistryClient {
	return &clients.RegistryClient{ServerAddr: cCtx.String(flagServerAddr.Name)}
}

func newCipher(cCtx *cli.Context) (*cryptoutils.EmbeddingCipher, error) {
	seedHex := cCtx.String(flagMasterSeed.Name)
	if seedHex == "" {
		return nil, errors.New("master-seed is required")
	}
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return nil, fmt.Errorf("invalid master-seed: %w", err)
	}
	return cryptoutils.NewEmbeddingCipher(seed)
}

func loadEmbedding(cCtx *cli.Context) ([]float64, error) {
	path := cCtx.String(flagEmbeddingFile.Name)
	if path == "" {
		return nil, errors.New("embedding-file is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, fmt.Errorf("embedding file must hold a JSON array: %w", err)
	}
	return vec, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runHealth(cCtx *cli.Context) error {
	resp, err := newClient(cCtx).Health()
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runRegister(cCtx *cli.Context) error {
	cipher, err := newCipher(cCtx)
	if err != nil {
		return err
	}
	vec, err := loadEmbedding(cCtx)
	if err != nil {
		return err
	}
	priv, err := crypto.HexToECDSA(cCtx.String(flagPrivateKey.Name))
	if err != nil {
		return fmt.Errorf("invalid private-key: %w", err)
	}

	fp, err := fingerprint.Derive(vec, cCtx.String(flagSalt.Name))
	if err != nil {
		return err
	}
	envelope, err := cipher.Encrypt(vec)
	if err != nil {
		return err
	}

	resp, err := newClient(cCtx).Register(api.RegisterRequest{
		Fingerprint: fp.String(),
		PublicKey:   cryptoutils.AddressOf(priv),
		Embedding:   envelope,
	})
	if err != nil {
		return err
	}
	fmt.Println("fingerprint:", fp)
	return printJSON(resp)
}

func runCheck(cCtx *cli.Context) error {
	fp := cCtx.String(flagFingerprint.Name)
	if fp == "" {
		return errors.New("fingerprint is required")
	}
	resp, err := newClient(cCtx).Check(fp)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runSearch(cCtx *cli.Context) error {
	cipher, err := newCipher(cCtx)
	if err != nil {
		return err
	}
	vec, err := loadEmbedding(cCtx)
	if err != nil {
		return err
	}
	envelope, err := cipher.Encrypt(vec)
	if err != nil {
		return err
	}

	resp, err := newClient(cCtx).Search(api.SearchRequest{
		EncryptedEmbedding: envelope,
		Threshold:          cCtx.Float64(flagThreshold.Name),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runRevoke(cCtx *cli.Context) error {
	fp := cCtx.String(flagFingerprint.Name)
	if fp == "" {
		return errors.New("fingerprint is required")
	}
	priv, err := crypto.HexToECDSA(cCtx.String(flagPrivateKey.Name))
	if err != nil {
		return fmt.Errorf("invalid private-key: %w", err)
	}

	message, err := json.Marshal(map[string]any{
		"action":      "revoke",
		"fingerprint": fp,
		"timestamp":   time.Now().Unix(),
		"nonce":       uuid.New().String(),
	})
	if err != nil {
		return err
	}
	sig, err := cryptoutils.SignChallenge(priv, message)
	if err != nil {
		return err
	}

	resp, err := newClient(cCtx).Revoke(api.RevokeRequest{
		Fingerprint: fp,
		Signature:   hex.EncodeToString(sig),
		Message:     string(message),
	})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runChainVerify(cCtx *cli.Context) error {
	resp, err := newClient(cCtx).ChainVerify()
	if err != nil {
		return err
	}
	return printJSON(resp)
}
