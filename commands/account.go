package commands

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ogchat/ogchat/internal/broker"
	"github.com/ogchat/ogchat/internal/cli"
	"github.com/ogchat/ogchat/internal/configuration"
	"github.com/ogchat/ogchat/internal/wallet"
)

// NewAccountCmd instantiates and returns the account command.
func NewAccountCmd(config *configuration.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage the prepaid account held with a provider",
		Long:  "Manage the prepaid account held with a provider",
	}
	cmd.AddCommand(newAccountBalanceCmd(config))
	cmd.AddCommand(newAccountCreateCmd(config))
	cmd.AddCommand(newAccountDepositCmd(config))
	return cmd
}

func newAccountBalanceCmd(config *configuration.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "balance [provider]",
		Short: "Show the account held with a provider",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			w, err := wallet.Load(config.WalletKeyFile)
			cobra.CheckErr(err)
			session := newSession(config, w)

			account, err := session.GetAccount(context.Background(), args[0])
			if broker.IsAccountNotFound(err) {
				cli.Error("No account held with provider %s. Create one with `ogchat account create`.\n", args[0])
				return
			}
			cobra.CheckErr(err)

			cli.Title("ACCOUNT [%s]", args[0])
			cli.UserInput("balance:        %s\n", account.Balance)
			cli.UserInput("locked:         %s\n", account.LockedBalance)
			cli.UserInput("available:      %s\n", account.Available())
			cli.UserInput("pending refund: %s\n", account.PendingRefund)
		},
	}
}

func newAccountCreateCmd(config *configuration.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "create [provider] [amount]",
		Short: "Create an account with a provider, funded with an initial balance",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			amount, err := decimal.NewFromString(args[1])
			cobra.CheckErr(err)

			w, err := wallet.Load(config.WalletKeyFile)
			cobra.CheckErr(err)
			session := newSession(config, w)

			cobra.CheckErr(session.AddAccount(context.Background(), args[0], amount))
			cli.Success("Created account with provider %s, funded with %s A0GI\n", args[0], amount)
		},
	}
}

func newAccountDepositCmd(config *configuration.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "deposit [provider] [amount]",
		Short: "Deposit into the account held with a provider",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			amount, err := decimal.NewFromString(args[1])
			cobra.CheckErr(err)

			w, err := wallet.Load(config.WalletKeyFile)
			cobra.CheckErr(err)
			session := newSession(config, w)

			cobra.CheckErr(session.Deposit(context.Background(), args[0], amount))
			cli.Success("Deposited %s A0GI with provider %s\n", amount, args[0])
		},
	}
}
