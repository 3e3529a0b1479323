package commands

import (
	"github.com/spf13/cobra"

	"github.com/ogchat/ogchat/internal/backup"
	"github.com/ogchat/ogchat/internal/configuration"
	"github.com/ogchat/ogchat/internal/metrics"
	"github.com/ogchat/ogchat/internal/server"
	"github.com/ogchat/ogchat/internal/wallet"
)

// NewServeCmd instantiates and returns the serve command.
func NewServeCmd(config *configuration.Config) *cobra.Command {
	var opts struct {
		Port int
	}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the web client API",
		Long:  "Serve the web client API",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			metrics.Init("ogchat")

			w, err := wallet.Load(config.WalletKeyFile)
			cobra.CheckErr(err)
			session := newSession(config, w)
			reg, err := newRegistry(config, w)
			cobra.CheckErr(err)
			defer reg.Close()

			// The blob cache is optional; content addressing makes it safe.
			var cache backup.BlobCache
			if config.Serve.RedisAddr != "" {
				cache = backup.NewRedisCache(config.Serve.RedisAddr, config.Serve.RedisPassword, config.Serve.RedisDB)
			}

			storageClient := newStorage(config)
			uploader := backup.NewUploader(storageClient, reg)
			retriever := backup.NewRetriever(storageClient, reg, cache)

			s, err := server.New(newRelay(config), session, uploader, retriever, w.Address)
			cobra.CheckErr(err)

			port := config.Serve.Port
			if opts.Port != 0 {
				port = opts.Port
			}
			cobra.CheckErr(s.Start(port))
		},
	}

	cmd.Flags().IntVarP(&opts.Port, "port", "p", 0, "Port to listen on (overrides configuration)")
	return cmd
}
