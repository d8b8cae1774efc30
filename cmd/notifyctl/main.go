package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/planboard/notify/internal/client"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	apiURL  string
	token   string
	userID  string
	verbose bool
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "notifyctl",
		Short:         "Inspect and drive the notification service from a terminal",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(*cobra.Command, []string) {
			level := slog.LevelWarn
			if opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("NOTIFY_API_URL", "http://localhost:3000"), "notification API base URL")
	cmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("NOTIFY_TOKEN"), "bearer token")
	cmd.PersistentFlags().StringVar(&opts.userID, "user", os.Getenv("NOTIFY_USER"), "user id the token belongs to")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(
		newTokenCmd(),
		newListCmd(opts),
		newReadCmd(opts),
		newMuteCmd(opts),
		newWatchCmd(opts),
		newSubscribeCmd(opts),
		newUnsubscribeCmd(opts),
		newSendCmd(opts),
	)
	return cmd
}

func (o *rootOptions) client() (*client.Client, error) {
	if o.token == "" {
		return nil, fmt.Errorf("--token or NOTIFY_TOKEN is required")
	}
	return client.New(o.apiURL, o.token)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
