package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thereayou/ligabpi/internal/feed"
	"github.com/thereayou/ligabpi/internal/league"
)

func (a *app) chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Read and write the fan chat",
	}

	var limit int
	var follow bool
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Print the latest messages, optionally following new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client(cmd)
			log := a.logger(cmd)
			syncer := feed.New(c, log, feed.WithPageSize(limit))

			out := cmd.OutOrStdout()
			printed := make(map[string]bool)
			page, err := syncer.LoadInitial(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printMessages(out, page, printed)
			if !follow {
				return nil
			}

			return syncer.Follow(cmd.Context(), func(u feed.Update) {
				if u.Disconnected {
					fmt.Fprintln(cmd.ErrOrStderr(), "connection lost, reconnecting...")
					return
				}
				printMessages(out, u.Messages, printed)
			})
		},
	}
	tail.Flags().IntVarP(&limit, "limit", "n", feed.DefaultPageSize, "messages to load")
	tail.Flags().BoolVarP(&follow, "follow", "f", false, "keep printing new messages")

	send := &cobra.Command{
		Use:   "send <text>",
		Short: "Post a message as the signed-in user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client(cmd)
			user, err := a.signedIn(cmd, c)
			if err != nil {
				return err
			}
			return feed.New(c, a.logger(cmd)).SendMessage(cmd.Context(), strings.Join(args, " "), user)
		},
	}

	cmd.AddCommand(tail, send)
	return cmd
}

// printMessages prints messages not printed before, in feed order.
func printMessages(w io.Writer, msgs []league.ChatMessage, printed map[string]bool) {
	for _, m := range msgs {
		if printed[m.ID] {
			continue
		}
		printed[m.ID] = true
		fmt.Fprintf(w, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), m.AuthorName, m.Text)
	}
}
