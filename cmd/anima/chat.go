package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/thesecretlab-dev/anima-dashboard/internal/chat"
	"github.com/thesecretlab-dev/anima-dashboard/internal/client"
	"github.com/thesecretlab-dev/anima-dashboard/internal/observability"
)

func newChatCmd() *cobra.Command {
	var (
		url        string
		token      string
		sessionKey string
		scope      string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := observability.NewLogger("warn", "text")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			conn, err := client.Dial(ctx, url, client.Options{Token: token, Logger: logger})
			cancel()
			if err != nil {
				return err
			}
			defer conn.Close()

			session := chat.NewSession(conn, sessionKey, chat.Options{Scope: scope, Logger: logger})
			defer session.Close()

			session.Load(context.Background())
			snap := waitFor(session, func(s chat.Snapshot) bool { return s.Loaded })
			if snap.ErrorText != "" {
				fmt.Fprintln(os.Stderr, "warning:", snap.ErrorText)
			}
			printTranscript(snap)
			if len(snap.Choices) > 1 {
				fmt.Println("sessions:", strings.Join(snap.Choices, ", "))
			}

			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("> ")
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":

				case line == "/quit":
					return nil

				case line == "/abort":
					if err := session.Abort(context.Background()); err != nil {
						fmt.Fprintln(os.Stderr, "abort:", err)
					}

				default:
					before := len(snap.Messages)
					if _, err := session.Send(context.Background(), line); err != nil {
						fmt.Fprintln(os.Stderr, "send:", err)
						break
					}
					snap = waitFor(session, func(s chat.Snapshot) bool {
						return s.PendingRunCount == 0 && len(s.Messages) > before
					})
					if snap.ErrorText != "" {
						fmt.Fprintln(os.Stderr, "error:", snap.ErrorText)
					}
					for _, msg := range snap.Messages[before:] {
						printMessage(msg)
					}
				}
				fmt.Print("> ")
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&url, "url", "ws://127.0.0.1:8787/ws", "gateway socket URL")
	cmd.Flags().StringVar(&token, "token", os.Getenv("ANIMA_TOKEN"), "auth token")
	cmd.Flags().StringVar(&sessionKey, "session", "main", "session display key")
	cmd.Flags().StringVar(&scope, "scope", "local", "session scope")
	return cmd
}

func waitFor(session *chat.Session, cond func(chat.Snapshot) bool) chat.Snapshot {
	deadline := time.Now().Add(2 * time.Minute)
	var snap chat.Snapshot
	for time.Now().Before(deadline) {
		snap = session.Snapshot()
		if cond(snap) {
			return snap
		}
		time.Sleep(50 * time.Millisecond)
	}
	return snap
}

func printTranscript(snap chat.Snapshot) {
	for _, msg := range snap.Messages {
		printMessage(msg)
	}
}

func printMessage(msg chat.DisplayMessage) {
	fmt.Printf("[%s] %s\n", msg.Role, msg.FirstText())
}
