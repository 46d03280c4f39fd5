package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configDir      = ".config/hidectl"
	defaultAPIURL  = "http://localhost:8000"
	defaultTimeout = 10 * time.Second
)

type card struct {
	ID              string    `json:"id"`
	ConversationKey string    `json:"conversation_key"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Urgency         string    `json:"urgency"`
	CreatedAt       time.Time `json:"created_at"`
}

// newRootCmd builds the CLI. Settings resolve flag > HIDECTL_* env > config file > default.
func newRootCmd() *cobra.Command {
	v := viper.New()
	var client *apiClient

	root := &cobra.Command{
		Use:           "hidectl",
		Short:         "Operator CLI for the hide notification service",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadConfig(v); err != nil {
				return err
			}
			client = newAPIClient(v.GetString("api"), v.GetDuration("timeout"))
			return nil
		},
	}
	root.PersistentFlags().StringP("api", "a", defaultAPIURL, "hide service base URL")
	root.PersistentFlags().Duration("timeout", defaultTimeout, "request timeout")
	_ = v.BindPFlag("api", root.PersistentFlags().Lookup("api"))
	_ = v.BindPFlag("timeout", root.PersistentFlags().Lookup("timeout"))

	api := func() *apiClient { return client }
	root.AddCommand(
		newListCmd(api),
		newDeleteCmd(api),
		newReplyCmd(api),
		newMuteCmd(api),
		newUnmuteCmd(api),
		newMutesCmd(api),
		newEventCmd(api),
		newStreamCmd(api),
	)
	return root
}

func loadConfig(v *viper.Viper) error {
	v.SetEnvPrefix("HIDECTL")
	v.AutomaticEnv()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, configDir))
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config file: %w", err)
		}
	}
	return nil
}

func newListCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending cards, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var cards []card
			if _, err := api().call(cmd.Context(), http.MethodGet, "/api/notifications", nil, &cards, http.StatusOK); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(cards) == 0 {
				fmt.Fprintln(out, "no pending cards")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCONVERSATION\tURGENCY\tTITLE\tSUMMARY\tAGE")
			for _, c := range cards {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					c.ID, c.ConversationKey, c.Urgency, c.Title, oneLine(c.Summary, 60),
					time.Since(c.CreatedAt).Round(time.Second))
			}
			return tw.Flush()
		},
	}
}

func newDeleteCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <card-id>",
		Short: "Dismiss a card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := api().call(cmd.Context(), http.MethodDelete, "/api/notifications/"+url.PathEscape(args[0]), nil, nil,
				http.StatusOK, http.StatusNotFound)
			if err != nil {
				return err
			}
			if code == http.StatusNotFound {
				return fmt.Errorf("card %s not found", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	}
}

func newReplyCmd(api func() *apiClient) *cobra.Command {
	var cardID string
	cmd := &cobra.Command{
		Use:   "reply <conversation-key> <text>...",
		Short: "Send a reply; each text argument is sent as its own message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{
				"conversation_key": args[0],
				"text":             args[1:],
				"meta":             map[string]any{"is_custom": true},
			}
			if cardID != "" {
				body["card_id"] = cardID
			}
			if _, err := api().call(cmd.Context(), http.MethodPost, "/api/reply", body, nil, http.StatusAccepted); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reply to %s queued\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&cardID, "card", "", "card the reply answers")
	return cmd
}

func newMuteCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "mute <conversation-key>",
		Short: "Stop creating cards for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"conversation_key": args[0]}
			if _, err := api().call(cmd.Context(), http.MethodPost, "/api/mute", body, nil, http.StatusAccepted); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mute of %s queued\n", args[0])
			return nil
		},
	}
}

func newUnmuteCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "unmute <conversation-key>",
		Short: "Resume card creation for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := api().call(cmd.Context(), http.MethodDelete, "/api/mutes/"+url.PathEscape(args[0]), nil, nil,
				http.StatusOK, http.StatusNotFound)
			if err != nil {
				return err
			}
			if code == http.StatusNotFound {
				fmt.Fprintf(cmd.OutOrStdout(), "%s was not muted\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unmuted %s\n", args[0])
			return nil
		},
	}
}

func newMutesCmd(api func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "mutes",
		Short: "List muted conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var resp struct {
				Mutes []string `json:"mutes"`
			}
			if _, err := api().call(cmd.Context(), http.MethodGet, "/api/mutes", nil, &resp, http.StatusOK); err != nil {
				return err
			}
			for _, k := range resp.Mutes {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func newEventCmd(api func() *apiClient) *cobra.Command {
	var (
		title, at, kind, cardID string
		duration                int
	)
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Add a calendar event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body := map[string]any{"title": title, "datetime": at}
			if cmd.Flags().Changed("duration") {
				body["duration"] = duration
			}
			if kind != "" {
				body["event_type"] = kind
			}
			if cardID != "" {
				body["card_id"] = cardID
			}
			if _, err := api().call(cmd.Context(), http.MethodPost, "/api/add_event", body, nil, http.StatusAccepted); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "event %q queued\n", title)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "event title (required)")
	cmd.Flags().StringVar(&at, "at", "", "start, RFC3339 or \"2006-01-02 15:04\" in the service timezone (required)")
	cmd.Flags().IntVar(&duration, "duration", 60, "duration in minutes")
	cmd.Flags().StringVar(&kind, "type", "", "event category")
	cmd.Flags().StringVar(&cardID, "card", "", "card the event was taken from")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newStreamCmd(api func() *apiClient) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Follow card events live until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt)
			defer stop()
			return api().stream(ctx, cmd.OutOrStdout(), count)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after n events (0 follows forever)")
	return cmd
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > limit {
		return string(r[:limit-1]) + "…"
	}
	return s
}
