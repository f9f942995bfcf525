package cryptoutils

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nytdevansh/V-Face-sub001/interfaces"
)

// EthereumSignatureVerifier verifies secp256k1 signatures over EIP-191
// personal-sign digests, matching what wallet clients produce. The stored
// public key is the owner's 20-byte address in hex.
type EthereumSignatureVerifier struct{}

// Verify recovers the signer address from the signature and compares it to
// the expected address. All failure modes report InvalidSignature.
func (EthereumSignatureVerifier) Verify(publicKey string, message []byte, signature []byte) error {
	if !ethcommon.IsHexAddress(publicKey) {
		return fmt.Errorf("%w: stored public key is not an address", interfaces.ErrInvalidSignature)
	}
	if len(signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d bytes", interfaces.ErrInvalidSignature, crypto.SignatureLength)
	}

	// Wallets emit V as 27/28; crypto.SigToPub expects 0/1.
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubkey, err := crypto.SigToPub(accounts.TextHash(message), sig)
	if err != nil {
		return fmt.Errorf("%w: %s", interfaces.ErrInvalidSignature, err)
	}

	if crypto.PubkeyToAddress(*pubkey) != ethcommon.HexToAddress(publicKey) {
		return fmt.Errorf("%w: signer does not match stored public key", interfaces.ErrInvalidSignature)
	}
	return nil
}

// SignChallenge signs a challenge message the way wallet clients do. Used
// by the CLI client and tests; the server only verifies.
func SignChallenge(priv *ecdsa.PrivateKey, message []byte) ([]byte, error) {
	return crypto.Sign(accounts.TextHash(message), priv)
}

// AddressOf returns the hex address for a secp256k1 private key.
func AddressOf(priv *ecdsa.PrivateKey) string {
	return crypto.PubkeyToAddress(priv.PublicKey).Hex()
}
