package commands

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/ogchat/ogchat/internal/backup"
	"github.com/ogchat/ogchat/internal/cli"
	"github.com/ogchat/ogchat/internal/configuration"
	"github.com/ogchat/ogchat/internal/directory"
	"github.com/ogchat/ogchat/internal/metering"
	"github.com/ogchat/ogchat/internal/store"
	"github.com/ogchat/ogchat/internal/types"
	"github.com/ogchat/ogchat/internal/wallet"
)

// NewChatCmd instantiates and returns the chat command.
func NewChatCmd(config *configuration.Config) *cobra.Command {
	var opts struct {
		ChatID   string
		Provider string
		ShowCost bool
	}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Back and forth chat with a marketplace provider",
		Long:  "Back and forth chat with a marketplace provider",
		Args:  cobra.ExactArgs(0),
		Run: func(cmd *cobra.Command, args []string) {
			// Instantiate store.
			s, err := store.New(config.ChatDirectory)
			cobra.CheckErr(err)
			defer s.Close()

			// Parse a chat if relevant.
			var chat *store.Chat
			if opts.ChatID != "" {
				chat, err = s.Get(opts.ChatID)
				cobra.CheckErr(err)
			} else {
				opts.ChatID = uuid.New().String()[:8]
			}
			if chat == nil {
				chat = store.NewChat(opts.ChatID)
			}

			// Wire the broker session and relay.
			w, err := wallet.Load(config.WalletKeyFile)
			cobra.CheckErr(err)
			session := newSession(config, w)
			services := directory.New(session)
			meter := metering.New(session, newRelay(config))

			ctx := context.Background()
			service, err := resolveService(ctx, services, opts.Provider)
			cobra.CheckErr(err)
			cobra.CheckErr(services.AcknowledgeProvider(ctx, service.ProviderID))

			// Headers.
			cli.Title("OGCHAT [%s](%s)", service.ModelID, opts.ChatID)
			if opts.ShowCost {
				cli.CostInfo("Provider %s charges %s A0GI per request\n", service.ProviderID, service.PricePerRequest())
			}

			// Print history.
			for _, message := range chat.Transcript {
				if message.Role == types.RoleUser {
					cli.UserInput("> %s\n", message.Content)
				}
				if message.Role == types.RoleAssistant {
					cli.AIOutput(strings.ReplaceAll(message.Content, "%", "%%") + "\n")
				}
			}

			for {
				// Query user for prompt.
				text, err := cli.PromptUser()
				cobra.CheckErr(err)
				text = strings.TrimSpace(text)
				if text == "" {
					continue
				}
				if text == "/backup" {
					backupChat(ctx, config, w, chat)
					continue
				}

				// Quick feedback so user knows query has been submitted.
				cli.AIOutput("OGCHAT: ")

				sendCtx, cancel := context.WithTimeout(ctx, time.Duration(config.RequestTimeout)*time.Second)
				result, err := meter.SendWithSettlement(sendCtx, service, chat.Transcript.Prompt(text), confirmSettlement)
				cancel()
				if err != nil {
					reportSendError(err)
					continue
				}

				cli.AIOutput(strings.ReplaceAll(result.Content, "%", "%%") + "\n")
				if result.Verified != nil && *result.Verified {
					cli.Success("✓ response verified\n")
				}

				// Append the exchange to our history and save.
				chat.Transcript = chat.Transcript.Append(types.NewUserMessage(text))
				chat.Transcript = chat.Transcript.Append(types.NewAssistantMessage(result.Content, result.Verified))
				cobra.CheckErr(s.Write(chat))
			}
		},
	}

	cmd.AddCommand(newListCmd(config))
	cmd.Flags().StringVarP(&opts.ChatID, "chat-id", "c", "", "Continue a previous chat")
	cmd.Flags().StringVarP(&opts.Provider, "provider", "P", "", "Provider address to chat with (defaults to the first listed service)")
	cmd.Flags().BoolVar(&opts.ShowCost, "show-cost", false, "Display the provider's per-request price")
	return cmd
}

// resolveService picks the provider's descriptor, or the first listed service
// when no provider is given.
func resolveService(ctx context.Context, services *directory.Directory, providerID string) (*types.ServiceDescriptor, error) {
	if providerID != "" {
		return services.Resolve(ctx, providerID)
	}
	listed, err := services.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(listed) == 0 {
		return nil, errors.New("no services available on the marketplace")
	}
	return listed[0], nil
}

func confirmSettlement(quote *types.FeeQuote) bool {
	cli.CostInfo("Provider requires a fee of %s A0GI before serving this request.\n", quote.RequiredAmount)
	return cli.QueryUser("Settle the fee and retry?")
}

func reportSendError(err error) {
	feeRequired := &metering.FeeRequiredError{}
	settlement := &metering.SettlementError{}
	switch {
	case errors.As(err, &settlement):
		cli.Error("\nCould not settle the fee of %s A0GI: %v\n", settlement.Quote.RequiredAmount, settlement.Err)
		cli.Error("Your message was not sent. Settle the fee and try again.\n")
	case errors.As(err, &feeRequired):
		cli.Error("\nFee of %s A0GI declined. Your message was not sent.\n", feeRequired.Quote.RequiredAmount)
	default:
		cli.Error("\n%v\n", err)
	}
}

// backupChat runs the in-session /backup command.
func backupChat(ctx context.Context, config *configuration.Config, w *wallet.Wallet, chat *store.Chat) {
	if len(chat.Transcript) == 0 {
		cli.Error("Nothing to back up yet.\n")
		return
	}
	reg, err := newRegistry(config, w)
	if err != nil {
		cli.Error("Could not reach the registry: %v\n", err)
		return
	}
	defer reg.Close()

	title := chat.Title
	if title == "" {
		title = chat.ID
	}
	uploader := backup.NewUploader(newStorage(config), reg)
	rootHash, err := uploader.Backup(ctx, title, chat.Transcript)
	if err != nil {
		notRecorded := &backup.NotRecordedError{}
		if errors.As(err, &notRecorded) {
			cli.Error("Backup saved (root hash %s) but not recorded on-chain: %v\n", notRecorded.RootHash, notRecorded.Err)
			return
		}
		cli.Error("Backup failed: %v\n", err)
		return
	}
	cli.Success("Backed up as %s\n", rootHash)
}
