package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/planboard/notify/internal/application/dispatch"
	"github.com/planboard/notify/internal/application/inbox"
	"github.com/planboard/notify/internal/application/pushworker"
	"github.com/planboard/notify/internal/config"
	"github.com/planboard/notify/internal/domain"
	jwtinfra "github.com/planboard/notify/internal/infrastructure/jwt"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	var userID, role string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token with the local JWT key pair",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := jwtinfra.NewProvider(config.Load())
			if err != nil {
				return err
			}
			tok, err := p.Sign(userID, role)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "for", "", "user id to put in the token")
	cmd.Flags().StringVar(&role, "role", domain.RoleUser, "role claim")
	_ = cmd.MarkFlagRequired("for")
	return cmd
}

func newListCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recent notifications, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			summary, err := c.Summary(cmd.Context())
			if err != nil {
				return err
			}
			list, err := c.ListRecent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d unread, muted=%t\n", summary.UnreadCount, summary.IsMuted)
			now := time.Now()
			for _, n := range list {
				printNotification(cmd, n, now)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", inbox.ListCap, "number of notifications")
	return cmd
}

func printNotification(cmd *cobra.Command, n domain.Notification, now time.Time) {
	mark := "*"
	if n.IsRead() {
		mark = " "
	}
	line := fmt.Sprintf("%s %6d  %-10s  %s", mark, n.ID, inbox.TimeAgo(now, n.CreatedAt), n.Title)
	if link, ok := n.Link(); ok {
		line += "  " + link
	}
	fmt.Fprintln(cmd.OutOrStdout(), line)
}

func newReadCmd(opts *rootOptions) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "read [id]",
		Short: "Mark one notification, or all of them, read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			if all {
				return c.MarkAllRead(cmd.Context())
			}
			if len(args) != 1 {
				return fmt.Errorf("an id or --all is required")
			}
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q", args[0])
			}
			return c.MarkRead(cmd.Context(), id)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "mark every notification read")
	return cmd
}

func newMuteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mute",
		Short: "Toggle the mute preference",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			summary, err := c.Summary(cmd.Context())
			if err != nil {
				return err
			}
			ctrl := inbox.New(c, c.Feed(), inbox.Seed{UnreadCount: summary.UnreadCount, IsMuted: summary.IsMuted}, opts.userID)
			if err := ctrl.ToggleMute(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "muted=%t\n", ctrl.View().IsMuted)
			return nil
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	var origin string
	var lifetime time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow the change feed and render inserts as push notifications",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.userID == "" {
				return fmt.Errorf("--user or NOTIFY_USER is required")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			summary, err := c.Summary(cmd.Context())
			if err != nil {
				return err
			}
			worker := pushworker.New(&terminalPlatform{out: cmd.OutOrStdout(), origin: origin}, lifetime)
			if err := worker.Dispatch(cmd.Context(), pushworker.Event{Kind: pushworker.EventInstall}); err != nil {
				return err
			}
			if err := worker.Dispatch(cmd.Context(), pushworker.Event{Kind: pushworker.EventActivate}); err != nil {
				return err
			}

			var ctrl *inbox.Controller
			show := func(n domain.Notification) {
				if ctrl.View().IsMuted {
					return
				}
				data, err := json.Marshal(dispatch.BuildPayload(n))
				if err != nil {
					return
				}
				_ = worker.Dispatch(cmd.Context(), pushworker.Event{Kind: pushworker.EventPush, Data: data})
			}
			ctrl = inbox.New(c, &teeFeed{inner: c.Feed(), after: show},
				inbox.Seed{UnreadCount: summary.UnreadCount, IsMuted: summary.IsMuted}, opts.userID)
			if err := ctrl.Mount(cmd.Context()); err != nil {
				return err
			}
			defer ctrl.Unmount()

			fmt.Fprintf(cmd.OutOrStdout(), "watching as %s: %d unread, muted=%t\n", opts.userID, summary.UnreadCount, summary.IsMuted)
			<-cmd.Context().Done()
			fmt.Fprintf(cmd.OutOrStdout(), "%d unread\n", ctrl.View().UnreadCount)
			return nil
		},
	}
	cmd.Flags().StringVar(&origin, "origin", envOr("APP_ORIGIN", "http://localhost:5173"), "origin deep links resolve against")
	cmd.Flags().DurationVar(&lifetime, "lifetime", 30*time.Second, "deadline for each rendered event")
	return cmd
}

func newSubscribeCmd(opts *rootOptions) *cobra.Command {
	var sub staticPushManager
	cmd := &cobra.Command{
		Use:   "subscribe",
		Short: "Register a push endpoint for the current user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctrl := inbox.New(c, c.Feed(), inbox.Seed{}, opts.userID, inbox.WithRegistry(c))
			if err := ctrl.EnablePush(cmd.Context(), &sub); err != nil {
				return err
			}
			if notice := ctrl.View().Notice; notice != "" {
				fmt.Fprintln(cmd.OutOrStdout(), notice)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "subscribed")
			return nil
		},
	}
	cmd.Flags().StringVar(&sub.endpoint, "endpoint", "", "push endpoint URL or SNS endpoint ARN")
	cmd.Flags().StringVar(&sub.p256dh, "p256dh", "", "client public key")
	cmd.Flags().StringVar(&sub.auth, "auth", "", "client auth secret")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

func newUnsubscribeCmd(opts *rootOptions) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "unsubscribe",
		Short: "Remove a push endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			ctrl := inbox.New(c, c.Feed(), inbox.Seed{}, opts.userID, inbox.WithRegistry(c))
			return ctrl.DisablePush(cmd.Context(), endpoint)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "push endpoint to remove")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

func newSendCmd(opts *rootOptions) *cobra.Command {
	var req domain.CreateNotificationRequest
	var entityType, entityID, commentID string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Create a notification (admin token required)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			req.EntityType = optional(entityType)
			req.EntityID = optional(entityID)
			req.CommentID = optional(commentID)
			n, err := c.Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			printNotification(cmd, *n, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&req.RecipientID, "to", "", "recipient user id")
	cmd.Flags().StringVar(&req.Title, "title", "", "title")
	cmd.Flags().StringVar(&req.Body, "body", "", "body")
	cmd.Flags().StringVar(&entityType, "entity-type", "", "entity type, e.g. content_item")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&commentID, "comment-id", "", "comment id")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
