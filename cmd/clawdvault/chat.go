package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inavhq/clawdvault-sdk/pkg/api"
)

func newChatCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Read and post in a token's chat room",
	}
	cmd.AddCommand(newChatReadCmd(a), newChatSendCmd(a), newChatReactCmd(a))
	return cmd
}

func newChatReadCmd(a *app) *cobra.Command {
	p := api.ChatHistoryParams{}
	cmd := &cobra.Command{
		Use:   "read <mint>",
		Short: "Show recent messages, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Mint = args[0]
			page, err := a.client.GetChat(cmd.Context(), p)
			if err != nil {
				return err
			}
			return a.output(cmd, page, func() error {
				rows := make([][]any, 0, len(page.Messages))
				for _, m := range page.Messages {
					from := m.Username
					if from == "" {
						from = m.Sender
					}
					rows = append(rows, []any{m.CreatedAt.Local().Format("01-02 15:04:05"), m.ID, from, m.Message})
				}
				if err := table(cmd, "TIME\tID\tFROM\tMESSAGE", rows); err != nil {
					return err
				}
				if page.HasMore && len(page.Messages) > 0 {
					_, err := fmt.Fprintf(cmd.OutOrStdout(), "more: --before %s\n", page.Messages[len(page.Messages)-1].ID)
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&p.Limit, "limit", 50, "messages to show")
	cmd.Flags().StringVar(&p.Before, "before", "", "show messages older than this message ID")
	return cmd
}

func newChatSendCmd(a *app) *cobra.Command {
	var replyTo string
	cmd := &cobra.Command{
		Use:   "send <mint> <message>",
		Short: "Post a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := a.client.SendChat(cmd.Context(), api.SendChatParams{Mint: args[0], Message: args[1], ReplyTo: replyTo})
			if err != nil {
				return err
			}
			return a.output(cmd, msg, func() error {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "sent %s\n", msg.ID)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&replyTo, "reply-to", "", "message ID to reply to")
	return cmd
}

func newChatReactCmd(a *app) *cobra.Command {
	var remove bool
	cmd := &cobra.Command{
		Use:   "react <message-id> <emoji>",
		Short: "React to a message",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if remove {
				return a.client.RemoveReaction(cmd.Context(), args[0], args[1])
			}
			return a.client.AddReaction(cmd.Context(), args[0], args[1])
		},
	}
	cmd.Flags().BoolVar(&remove, "remove", false, "withdraw the reaction instead")
	return cmd
}
