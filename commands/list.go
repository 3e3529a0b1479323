package commands

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/ogchat/ogchat/internal/cli"
	"github.com/ogchat/ogchat/internal/configuration"
	"github.com/ogchat/ogchat/internal/store"
	"github.com/ogchat/ogchat/internal/types"
)

// newListCmd instantiates and returns the chat list command.
func newListCmd(config *configuration.Config) *cobra.Command {
	var opts struct {
		PageSize int
	}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all chats",
		Long:  "List all chats",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := store.New(config.ChatDirectory)
			cobra.CheckErr(err)
			defer s.Close()

			cli.Title("OGCHAT LIST")

			chats, err := s.List(opts.PageSize)
			cobra.CheckErr(err)
			for _, chat := range chats {
				cli.AIOutput("chat (%s) - %s\n", chat.ID, time.UnixMicro(chat.UpdateTimestamp).String())
				description := ""
				for i := 0; i < 10 && i < len(chat.Transcript); i++ {
					if chat.Transcript[i].Role == types.RoleUser {
						description += "> " + chat.Transcript[i].Content + "\n"
					}
				}
				cli.UserInput(description)
			}
		},
	}

	cmd.Flags().IntVarP(&opts.PageSize, "page-size", "p", 50, "Page size")
	return cmd
}
