package commands

import (
	"context"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ogchat/ogchat/internal/backup"
	"github.com/ogchat/ogchat/internal/cli"
	"github.com/ogchat/ogchat/internal/configuration"
	"github.com/ogchat/ogchat/internal/store"
	"github.com/ogchat/ogchat/internal/wallet"
)

// NewBackupCmd instantiates and returns the backup command.
func NewBackupCmd(config *configuration.Config) *cobra.Command {
	var opts struct {
		Title string
	}
	cmd := &cobra.Command{
		Use:   "backup [chat-id]",
		Short: "Back a chat up to the storage network",
		Long:  "Back a chat up to the storage network and record its root hash on-chain",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			s, err := store.New(config.ChatDirectory)
			cobra.CheckErr(err)
			defer s.Close()

			chat, err := s.Get(args[0])
			cobra.CheckErr(err)
			if len(chat.Transcript) == 0 {
				cobra.CheckErr(errors.Errorf("chat (%s) has no messages", args[0]))
			}

			w, err := wallet.Load(config.WalletKeyFile)
			cobra.CheckErr(err)
			reg, err := newRegistry(config, w)
			cobra.CheckErr(err)
			defer reg.Close()

			title := opts.Title
			if title == "" {
				title = chat.Title
			}
			if title == "" {
				title = chat.ID
			}

			uploader := backup.NewUploader(newStorage(config), reg)
			rootHash, err := uploader.Backup(context.Background(), title, chat.Transcript)
			if err != nil {
				notRecorded := &backup.NotRecordedError{}
				if errors.As(err, &notRecorded) {
					cli.Error("Backup saved (root hash %s) but not recorded on-chain: %v\n", notRecorded.RootHash, notRecorded.Err)
					return
				}
				cobra.CheckErr(err)
			}
			cli.Success("Backed up chat (%s) as %s\n", chat.ID, rootHash)
		},
	}

	cmd.Flags().StringVarP(&opts.Title, "title", "t", "", "Title recorded with the backup (defaults to the chat's title)")
	return cmd
}
