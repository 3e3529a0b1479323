package commands

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ogchat/ogchat/internal/backup"
	"github.com/ogchat/ogchat/internal/cli"
	"github.com/ogchat/ogchat/internal/configuration"
	"github.com/ogchat/ogchat/internal/store"
	"github.com/ogchat/ogchat/internal/types"
	"github.com/ogchat/ogchat/internal/wallet"
)

// NewRestoreCmd instantiates and returns the restore command.
func NewRestoreCmd(config *configuration.Config) *cobra.Command {
	var opts struct {
		RootHash string
		Save     bool
	}
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore backed up chats",
		Long:  "List the wallet's recorded backups, or restore one by root hash",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			w, err := wallet.Load(config.WalletKeyFile)
			cobra.CheckErr(err)
			reg, err := newRegistry(config, w)
			cobra.CheckErr(err)
			defer reg.Close()

			retriever := backup.NewRetriever(newStorage(config), reg, nil)
			ctx := context.Background()

			if opts.RootHash != "" {
				record, err := retriever.Fetch(ctx, opts.RootHash)
				cobra.CheckErr(err)
				printBackup(record)
				if opts.Save {
					chatID, err := saveBackup(config, record)
					cobra.CheckErr(err)
					cli.Success("Restored as chat (%s)\n", chatID)
				}
				return
			}

			cli.Title("OGCHAT BACKUPS [%s]", w.Address.Hex())
			hashes, err := retriever.List(ctx, w.Address)
			cobra.CheckErr(err)
			if len(hashes) == 0 {
				cli.UserInput("No backups recorded for this wallet.\n")
				return
			}
			records := retriever.FetchAll(ctx, hashes)
			for _, record := range records {
				cli.AIOutput("%s - %s (%d messages)\n", record.RootHash, record.Title, len(record.Transcript))
			}
			if len(records) < len(hashes) {
				cli.Error("%d backup(s) could not be fetched\n", len(hashes)-len(records))
			}
		},
	}

	cmd.Flags().StringVar(&opts.RootHash, "hash", "", "Root hash of a single backup to restore")
	cmd.Flags().BoolVar(&opts.Save, "save", false, "Save the restored backup as a new local chat")
	return cmd
}

func printBackup(record *types.BackupRecord) {
	cli.Title("BACKUP [%s]", record.Title)
	for _, message := range record.Transcript {
		switch message.Role {
		case types.RoleUser:
			cli.UserInput("> %s\n", message.Content)
		case types.RoleAssistant:
			cli.AIOutput(strings.ReplaceAll(message.Content, "%", "%%") + "\n")
		}
	}
}

func saveBackup(config *configuration.Config, record *types.BackupRecord) (string, error) {
	s, err := store.New(config.ChatDirectory)
	if err != nil {
		return "", err
	}
	defer s.Close()

	chat := store.NewChat(uuid.New().String()[:8])
	chat.Title = record.Title
	chat.Transcript = record.Transcript
	if err := s.Write(chat); err != nil {
		return "", errors.Wrap(err, "saving restored chat")
	}
	return chat.ID, nil
}
