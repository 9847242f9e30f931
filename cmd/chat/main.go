package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/private-chat/internal/client"
	"github.com/zhouzirui/private-chat/internal/config"
	"github.com/zhouzirui/private-chat/internal/observability"
)

const quitCommand = "/quit"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chat: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		token   string
		backend string
	)

	cmd := &cobra.Command{
		Use:          "chat",
		Short:        "Talk to the private AI chat backend from the terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if backend != "" {
				cfg.Client.BackendURL = backend
			}
			if token == "" {
				token = cfg.Client.IDToken
			}
			if strings.TrimSpace(token) == "" {
				return errors.New("an identity token is required (--token or CHAT_ID_TOKEN)")
			}

			logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			defer logger.Sync()

			c, err := client.New(client.Options{Config: cfg.Client, Logger: logger})
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.LoginWithCredential(token); err != nil {
				return fmt.Errorf("login: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, c, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&token, "token", "", "identity token (defaults to CHAT_ID_TOKEN)")
	flags.StringVar(&backend, "backend", "", "backend base URL (defaults to CHAT_BACKEND_URL)")

	return cmd
}

// chatClient is the part of client.Client the terminal drives.
type chatClient interface {
	SendText(text string) error
	Logout()
	Snapshot() client.Snapshot
	Changes() <-chan struct{}
}

// run renders c to out and feeds lines from in into SendText until the user
// quits or the input ends.
func run(ctx context.Context, c chatClient, in io.Reader, out, errOut io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	v := &view{out: out}
	v.render(c.Snapshot())

	for {
		select {
		case <-ctx.Done():
			c.Logout()
			return nil
		case <-c.Changes():
			v.render(c.Snapshot())
		case line, ok := <-lines:
			if !ok || strings.TrimSpace(line) == quitCommand {
				c.Logout()
				v.render(c.Snapshot())
				return nil
			}
			if err := c.SendText(line); err != nil {
				fmt.Fprintf(errOut, "not sent: %v\n", err)
			}
		}
	}
}
