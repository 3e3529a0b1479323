// Package commands holds the ogchat CLI commands. Each command wires its own
// collaborators from the configuration inside Run, so that a missing wallet or
// unreachable endpoint only fails the command that needs it.
package commands

import (
	"time"

	"github.com/ogchat/ogchat/internal/broker"
	"github.com/ogchat/ogchat/internal/configuration"
	"github.com/ogchat/ogchat/internal/registry"
	"github.com/ogchat/ogchat/internal/relay"
	"github.com/ogchat/ogchat/internal/storage"
	"github.com/ogchat/ogchat/internal/wallet"
)

func requestTimeout(config *configuration.Config) time.Duration {
	return time.Duration(config.RequestTimeout) * time.Second
}

func newSession(config *configuration.Config, w *wallet.Wallet) *broker.Session {
	opts := &broker.Opts{
		BaseURL: config.BrokerURL,
		Timeout: requestTimeout(config),
	}
	return broker.NewSession(opts, w.Address.Hex())
}

func newRelay(config *configuration.Config) *relay.Client {
	return relay.New(requestTimeout(config))
}

func newStorage(config *configuration.Config) *storage.Client {
	opts := &storage.Opts{
		BaseURL: config.IndexerRPC,
		Timeout: requestTimeout(config),
	}
	return storage.New(opts)
}

func newRegistry(config *configuration.Config, w *wallet.Wallet) (*registry.Registry, error) {
	return registry.New(config.EvmRPC, config.RegistryAddress, config.ChainID, w)
}
