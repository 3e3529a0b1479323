package main

import (
	"github.com/spf13/cobra"

	"github.com/ogchat/ogchat/commands"
	"github.com/ogchat/ogchat/internal/configuration"
)

const configFilepath = "~/.config/ogchat/config.json"

var rootCmd = &cobra.Command{
	Use:   "ogchat",
	Short: "A CLI for the 0G compute marketplace",
}

func main() {
	config, err := configuration.Parse(configFilepath)
	if err != nil {
		panic(err)
	}

	rootCmd.AddCommand(commands.NewChatCmd(config))
	rootCmd.AddCommand(commands.NewServeCmd(config))
	rootCmd.AddCommand(commands.NewBackupCmd(config))
	rootCmd.AddCommand(commands.NewRestoreCmd(config))
	rootCmd.AddCommand(commands.NewAccountCmd(config))
	rootCmd.AddCommand(commands.NewServicesCmd(config))
	rootCmd.Execute()
}
