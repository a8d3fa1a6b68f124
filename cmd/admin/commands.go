package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"campusconnect/backend/internal/auth"
	"campusconnect/backend/internal/models"

	"github.com/spf13/cobra"
)

// tokenCmd mints a development token. It needs no database.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a bearer token for a user (development only).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ttl, _ := cmd.Flags().GetDuration("ttl")
		token, err := auth.NewTokenIssuer(cfg.JWTSecret).IssueToken(args[0], ttl)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var onlineCmd = &cobra.Command{
	Use:   "online",
	Short: "List users currently marked online.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		s, closeFn, err := openStorage(ctx, true)
		if err != nil {
			return err
		}
		defer closeFn()
		return listOnline(ctx, s, cmd.OutOrStdout())
	},
}

var resetPresenceCmd = &cobra.Command{
	Use:   "reset-presence",
	Short: "Mark every user offline, e.g. after a crash.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		s, closeFn, err := openStorage(ctx, true)
		if err != nil {
			return err
		}
		defer closeFn()
		return resetPresence(ctx, s, cmd.OutOrStdout())
	},
}

var banCmd = &cobra.Command{
	Use:   "ban <user-id>",
	Short: "Block a user from connecting.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hours, _ := cmd.Flags().GetInt("hours")
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		s, closeFn, err := openStorage(ctx, true)
		if err != nil {
			return err
		}
		defer closeFn()
		return banUser(ctx, s, args[0], hours, cmd.OutOrStdout())
	},
}

var unbanCmd = &cobra.Command{
	Use:   "unban <user-id>",
	Short: "Lift a ban.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), commandTimeout)
		defer cancel()
		s, closeFn, err := openStorage(ctx, true)
		if err != nil {
			return err
		}
		defer closeFn()
		return unbanUser(ctx, s, args[0], cmd.OutOrStdout())
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream presence changes published by every backend instance.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, closeFn, err := openStorage(ctx, true)
		if err != nil {
			return err
		}
		defer closeFn()

		events, stop, err := s.SubscribePresence(ctx)
		if err != nil {
			return err
		}
		defer stop()
		printPresence(events, cmd.OutOrStdout())
		return nil
	},
}

func init() {
	tokenCmd.Flags().Duration("ttl", auth.DefaultTokenTTL, "token lifetime")
	banCmd.Flags().Int("hours", 0, "ban duration in hours (0 = permanent)")

	rootCmd.AddCommand(tokenCmd, onlineCmd, resetPresenceCmd, banCmd, unbanCmd, watchCmd)
}

type onlineLister interface {
	ListOnlineUserIDs(ctx context.Context) ([]string, error)
}

func listOnline(ctx context.Context, s onlineLister, w io.Writer) error {
	ids, err := s.ListOnlineUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list online users: %w", err)
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	fmt.Fprintf(w, "%d user(s) online\n", len(ids))
	return nil
}

type presenceResetter interface {
	ResetPresence(ctx context.Context) (int64, error)
}

func resetPresence(ctx context.Context, s presenceResetter, w io.Writer) error {
	n, err := s.ResetPresence(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Marked %d user(s) offline.\n", n)
	return nil
}

type banStore interface {
	BanUser(ctx context.Context, userID string, d time.Duration) error
	UnbanUser(ctx context.Context, userID string) error
}

func banUser(ctx context.Context, s banStore, userID string, hours int, w io.Writer) error {
	if hours < 0 {
		return fmt.Errorf("hours must not be negative")
	}
	if err := s.BanUser(ctx, userID, time.Duration(hours)*time.Hour); err != nil {
		return fmt.Errorf("ban %s: %w", userID, err)
	}
	if hours == 0 {
		fmt.Fprintf(w, "User %s has been banned.\n", userID)
	} else {
		fmt.Fprintf(w, "User %s has been banned for %d hour(s).\n", userID, hours)
	}
	return nil
}

func unbanUser(ctx context.Context, s banStore, userID string, w io.Writer) error {
	if err := s.UnbanUser(ctx, userID); err != nil {
		return fmt.Errorf("unban %s: %w", userID, err)
	}
	fmt.Fprintf(w, "User %s has been unbanned.\n", userID)
	return nil
}

func printPresence(events <-chan models.PresenceEvent, w io.Writer) {
	for e := range events {
		state := "offline"
		if e.Online {
			state = "online"
		}
		fmt.Fprintf(w, "%s %s %s\n", e.At.Format(time.RFC3339), e.UserID, state)
	}
}
