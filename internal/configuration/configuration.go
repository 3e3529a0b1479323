package configuration

import (
	"encoding/json"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"github.com/pkg/errors"

	"github.com/ogchat/ogchat/internal/file"
)

var defaultConfig = Config{
	EvmRPC:          "https://evmrpc-testnet.0g.ai",
	IndexerRPC:      "https://indexer-storage-testnet-standard.0g.ai",
	BrokerURL:       "http://localhost:8547",
	RegistryAddress: "0x0460aA47b41a66694c0a73f667a1b795A5ED3556",
	ChainID:         16600,
	WalletKeyFile:   "~/.config/ogchat/wallet.key",
	ChatDirectory:   "~/.config/ogchat/chats",
	RequestTimeout:  30,

	Serve: &ServeConfig{
		Port: 3030,
	},
}

// Config holds configuration for the ogchat tool.
type Config struct {
	// EvmRPC is the JSON-RPC endpoint of the chain carrying the ledger and registry.
	EvmRPC string `json:"evm_rpc"`
	// IndexerRPC is the storage network indexer endpoint.
	IndexerRPC string `json:"indexer_rpc"`
	// BrokerURL is the serving-broker gateway that signs requests and settles fees.
	BrokerURL string `json:"broker_url"`
	// RegistryAddress is the root-hash registry contract.
	RegistryAddress string `json:"registry_address"`
	ChainID         int64  `json:"chain_id"`
	// WalletKeyFile holds the hex private key of the user's wallet. All signing
	// derives from this single key.
	WalletKeyFile string `json:"wallet_key_file"`
	// ChatDirectory is where the local chat database lives.
	ChatDirectory string `json:"chat_directory"`
	// RequestTimeout is the relay timeout in seconds.
	RequestTimeout int `json:"request_timeout"`

	Serve *ServeConfig `json:"serve"`
}

// ServeConfig holds configuration for ogchat serve.
type ServeConfig struct {
	Port int `json:"port"`
	// RedisAddr enables the content-addressed blob cache when set.
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`
}

// Parse a configuration file, initializing it with defaults if absent.
// Defaults are merged underneath whatever the file specifies.
func Parse(path string) (*Config, error) {
	path, err := file.ExpandPath(path)
	if err != nil {
		return nil, errors.Wrap(err, "expanding path")
	}

	if err := initializeIfNotPresent(path); err != nil {
		return nil, errors.Wrap(err, "initializing configuration")
	}
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading file")
	}

	config := &Config{}
	if err = json.Unmarshal(bytes, config); err != nil {
		return nil, errors.Wrap(err, "unmarshaling into config")
	}
	if err := mergo.Merge(config, defaultConfig); err != nil {
		return nil, errors.Wrap(err, "merging defaults")
	}

	expandedChatDirectory, err := file.ExpandPath(config.ChatDirectory)
	if err != nil {
		return nil, errors.Wrap(err, "expanding chat directory path")
	}
	config.ChatDirectory = expandedChatDirectory

	expandedWalletKeyFile, err := file.ExpandPath(config.WalletKeyFile)
	if err != nil {
		return nil, errors.Wrap(err, "expanding wallet key path")
	}
	config.WalletKeyFile = expandedWalletKeyFile
	return config, nil
}

// save a configuration file.
func (c *Config) save(path string) error {
	bytes, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling config")
	}

	if err := os.WriteFile(path, bytes, 0644); err != nil {
		return errors.Wrap(err, "writing file")
	}
	return nil
}

// initializeIfNotPresent initializes a config if it does not exist.
func initializeIfNotPresent(path string) error {
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		return nil
	}

	// Create the directories.
	dir, _ := filepath.Split(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "creating folders")
	}

	if err := defaultConfig.save(path); err != nil {
		return errors.Wrap(err, "saving default config")
	}
	return nil
}
