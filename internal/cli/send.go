package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"chat-widget/internal/chat"
	"chat-widget/internal/logging"

	"github.com/spf13/cobra"
)

func newSendCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <message>",
		Short: "Send one message and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.SetupConsole(a.cfg.LogLevel)

			ctrl, cleanup, err := a.newController()
			if err != nil {
				return err
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return sendOnce(ctx, ctrl, strings.Join(args, " "), cmd.OutOrStdout())
		},
	}
}

func sendOnce(ctx context.Context, ctrl *chat.Controller, text string, out io.Writer) error {
	ctrl.SetDraft(text)
	msg, err := ctrl.Submit(ctx)
	if errors.Is(err, chat.ErrEmptyDraft) {
		return errors.New("message is empty")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, msg.Text)
	return err
}
