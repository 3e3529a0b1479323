package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/ogchat/ogchat/internal/cli"
	"github.com/ogchat/ogchat/internal/configuration"
	"github.com/ogchat/ogchat/internal/directory"
	"github.com/ogchat/ogchat/internal/wallet"
)

// NewServicesCmd instantiates and returns the services command.
func NewServicesCmd(config *configuration.Config) *cobra.Command {
	var opts struct {
		Refresh bool
	}
	cmd := &cobra.Command{
		Use:   "services",
		Short: "List the marketplace's serving providers",
		Long:  "List the marketplace's serving providers",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			w, err := wallet.Load(config.WalletKeyFile)
			cobra.CheckErr(err)
			services := directory.New(newSession(config, w))

			ctx := context.Background()
			if opts.Refresh {
				cobra.CheckErr(services.Refresh(ctx))
			}
			listed, err := services.List(ctx)
			cobra.CheckErr(err)

			cli.Title("OGCHAT SERVICES")
			if len(listed) == 0 {
				cli.UserInput("No services available.\n")
				return
			}
			for _, service := range listed {
				cli.AIOutput("%s [%s]\n", service.DisplayName, service.ModelID)
				cli.UserInput("  provider: %s\n", service.ProviderID)
				cli.UserInput("  endpoint: %s\n", service.EndpointURL)
				cli.CostInfo("  price:    %s A0GI per request\n", service.PricePerRequest())
			}
		},
	}

	cmd.Flags().BoolVarP(&opts.Refresh, "refresh", "r", false, "Re-query the marketplace instead of the session cache")
	return cmd
}
