// Package wallet loads the user's signing key. This is the only key in the
// system: every ledger and registry operation signs as the connected wallet.
package wallet

import (
	"crypto/ecdsa"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

// Wallet wraps the user's private key and derived address.
type Wallet struct {
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
}

// Load reads a hex-encoded private key from a file.
func Load(path string) (*Wallet, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading wallet key file")
	}
	keyHex := strings.TrimSpace(string(bytes))
	keyHex = strings.TrimPrefix(keyHex, "0x")

	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, errors.Wrap(err, "parsing private key")
	}
	return &Wallet{
		PrivateKey: privateKey,
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
	}, nil
}
