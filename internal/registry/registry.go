// Package registry wraps the on-chain root-hash registry contract: an
// append-only per-owner list of backup content addresses.
package registry

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"

	"github.com/ogchat/ogchat/internal/wallet"
)

const registryABI = `[
  {"inputs":[{"internalType":"string","name":"rootHash","type":"string"}],"name":"addRootHash","outputs":[],"stateMutability":"nonpayable","type":"function"},
  {"inputs":[],"name":"getRootHashes","outputs":[{"internalType":"string[]","name":"","type":"string[]"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getRootHashesForUser","outputs":[{"internalType":"string[]","name":"","type":"string[]"}],"stateMutability":"view","type":"function"}
]`

// Registry is a bound root-hash registry contract.
type Registry struct {
	client   *ethclient.Client
	contract *bind.BoundContract
	parsed   abi.ABI
	wallet   *wallet.Wallet
	chainID  *big.Int
}

// New dials the chain and binds the registry contract. The wallet signs
// addRootHash transactions; view calls need no gas.
func New(rpcURL, contractAddress string, chainID int64, w *wallet.Wallet) (*Registry, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, errors.Wrap(err, "dialing chain rpc")
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, errors.Wrap(err, "parsing registry abi")
	}

	address := common.HexToAddress(contractAddress)
	contract := bind.NewBoundContract(address, parsed, client, client, client)
	return &Registry{
		client:   client,
		contract: contract,
		parsed:   parsed,
		wallet:   w,
		chainID:  big.NewInt(chainID),
	}, nil
}

// Owner returns the wallet address used for writes and per-user reads.
func (r *Registry) Owner() common.Address {
	return r.wallet.Address
}

// AddRootHash appends a content address to the caller's on-chain list and
// returns the transaction hash. The list is append-only: duplicates are not
// rejected here.
func (r *Registry) AddRootHash(ctx context.Context, rootHash string) (string, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(r.wallet.PrivateKey, r.chainID)
	if err != nil {
		return "", errors.Wrap(err, "building transactor")
	}
	auth.Context = ctx

	tx, err := r.contract.Transact(auth, "addRootHash", rootHash)
	if err != nil {
		return "", errors.Wrap(err, "submitting addRootHash")
	}
	return tx.Hash().Hex(), nil
}

// RootHashes returns every hash recorded in the registry.
func (r *Registry) RootHashes(ctx context.Context) ([]string, error) {
	var out []any
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getRootHashes"); err != nil {
		return nil, errors.Wrap(err, "calling getRootHashes")
	}
	return *abi.ConvertType(out[0], new([]string)).(*[]string), nil
}

// RootHashesForUser returns the hashes recorded for one owner. This is a view
// call, eventually consistent with the latest confirmed block.
func (r *Registry) RootHashesForUser(ctx context.Context, user common.Address) ([]string, error) {
	var out []any
	if err := r.contract.Call(&bind.CallOpts{Context: ctx}, &out, "getRootHashesForUser", user); err != nil {
		return nil, errors.Wrap(err, "calling getRootHashesForUser")
	}
	return *abi.ConvertType(out[0], new([]string)).(*[]string), nil
}

// Close releases the underlying rpc connection.
func (r *Registry) Close() {
	r.client.Close()
}
