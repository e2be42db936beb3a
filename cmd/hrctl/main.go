package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardio-live/cardiolive/internal/aggregate"
	"github.com/cardio-live/cardiolive/internal/apiclient"
	"github.com/cardio-live/cardiolive/internal/config"
	"github.com/cardio-live/cardiolive/internal/session"
	"github.com/cardio-live/cardiolive/internal/ws"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globals struct {
	server  string
	token   string
	envPath string
	asJSON  bool
}

func (g *globals) client() (*apiclient.Client, error) {
	if err := config.LoadDotEnv(g.envPath); err != nil {
		return nil, err
	}
	token := g.token
	if token == "" {
		token = os.Getenv("CARDIOLIVE_AUTH_TOKEN")
	}
	return apiclient.New(g.server, token), nil
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	root := &cobra.Command{
		Use:           "hrctl",
		Short:         "Coach console for the cardiolive server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.server, "server", "http://127.0.0.1:8080", "cardiolive server URL")
	root.PersistentFlags().StringVar(&g.token, "token", "", "auth token (default $CARDIOLIVE_AUTH_TOKEN)")
	root.PersistentFlags().StringVar(&g.envPath, "env", ".env", "dotenv file")
	root.PersistentFlags().BoolVar(&g.asJSON, "json", false, "print JSON")

	root.AddCommand(newSessionsCmd(g))
	root.AddCommand(newHandoffCmd(g))
	root.AddCommand(newViewCmd(g))
	root.AddCommand(newSendCmd(g))
	root.AddCommand(newHealthCmd(g))
	return root
}

func newSessionsCmd(g *globals) *cobra.Command {
	sessions := &cobra.Command{Use: "sessions", Short: "Session lifecycle"}

	sessions.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			list, err := c.Sessions()
			if err != nil {
				return err
			}
			if g.asJSON {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no sessions")
				return nil
			}
			for _, s := range list {
				printSessionLine(cmd.OutOrStdout(), s)
			}
			return nil
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "get <id>",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			s, err := c.Session(args[0])
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), g, s)
		},
	})

	var name string
	var roster []string
	var display bool
	create := &cobra.Command{
		Use:   "create --name <name>",
		Short: "Create and activate a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(name) == "" {
				return fmt.Errorf("--name is required")
			}
			c, err := g.client()
			if err != nil {
				return err
			}
			s, err := c.CreateSession(name, roster, display)
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), g, s)
		},
	}
	create.Flags().StringVar(&name, "name", "", "session name")
	create.Flags().StringSliceVar(&roster, "roster", nil, "participant ids")
	create.Flags().BoolVar(&display, "display", false, "also send the session to the live display")
	sessions.AddCommand(create)

	var members []string
	rosterCmd := &cobra.Command{
		Use:   "roster <id> --set <ids>",
		Short: "Replace a session's roster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			s, err := c.SetRoster(args[0], members)
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), g, s)
		},
	}
	rosterCmd.Flags().StringSliceVar(&members, "set", nil, "participant ids (empty clears the roster)")
	sessions.AddCommand(rosterCmd)

	sessions.AddCommand(&cobra.Command{
		Use:   "end <id>",
		Short: "End a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			s, err := c.EndSession(args[0])
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), g, s)
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			if err := c.DeleteSession(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		},
	})

	sessions.AddCommand(&cobra.Command{
		Use:   "display <id>",
		Short: "Send a session to the live display",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			tok, err := c.PublishHandoff(args[0])
			if err != nil {
				return err
			}
			if g.asJSON {
				return writeJSON(cmd.OutOrStdout(), tok)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "display -> %s at %s\n", tok.SessionID, tok.PublishedAt.Format(time.RFC3339))
			return nil
		},
	})
	return sessions
}

func newHandoffCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "handoff",
		Short: "Show the session on the live display",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			tok, ok, err := c.ReadHandoff()
			if err != nil {
				return err
			}
			if !ok {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "no live session")
				return nil
			}
			if g.asJSON {
				return writeJSON(cmd.OutOrStdout(), tok)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "session: %s\npublished: %s\n", tok.SessionID, tok.PublishedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func newViewCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Print the latest broadcast view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			v, err := c.View()
			if err != nil {
				return err
			}
			if g.asJSON {
				return writeJSON(cmd.OutOrStdout(), v)
			}
			printView(cmd.OutOrStdout(), v)
			return nil
		},
	}
}

func newSendCmd(g *globals) *cobra.Command {
	send := &cobra.Command{Use: "send", Short: "Inject device events"}

	var participant, source string
	var heartRate int
	sample := &cobra.Command{
		Use:   "sample --participant <id> --hr <bpm>",
		Short: "Send one heart-rate sample",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			n, err := c.SendSamples(ws.SampleRequest{
				ParticipantID: participant,
				HeartRate:     heartRate,
				Source:        source,
				ObservedAt:    time.Now(),
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "accepted %d\n", n)
			return nil
		},
	}
	sample.Flags().StringVar(&participant, "participant", "", "participant id")
	sample.Flags().IntVar(&heartRate, "hr", 0, "heart rate in bpm")
	sample.Flags().StringVar(&source, "source", "bluetooth", "device source")

	disconnect := &cobra.Command{
		Use:   "disconnect --participant <id>",
		Short: "Report a device disconnect",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			if err := c.Disconnect(participant); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "disconnected %s\n", participant)
			return nil
		},
	}
	disconnect.Flags().StringVar(&participant, "participant", "", "participant id")

	send.AddCommand(sample, disconnect)
	return send
}

func newHealthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show server health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := g.client()
			if err != nil {
				return err
			}
			h, err := c.Health()
			if err != nil {
				return err
			}
			if g.asJSON {
				return writeJSON(cmd.OutOrStdout(), h)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "status: %s\nparticipants: %d\nclients: %d view, %d feed\nticks: %d\nfeed: %d accepted, %d rejected, %d evicted\n",
				h.Status, h.Participants, h.ViewClients, h.FeedClients, h.Ticks, h.Feed.Accepted, h.Feed.Rejected, h.Feed.Evicted)
			return nil
		},
	}
}

func printSession(w io.Writer, g *globals, s session.Session) error {
	if g.asJSON {
		return writeJSON(w, s)
	}
	state := "ended"
	if s.Active {
		state = "active"
	}
	_, _ = fmt.Fprintf(w, "id: %s\nname: %s\nstate: %s\ncreated: %s\nroster: %s\n",
		s.ID, s.Name, state, s.CreatedAt.Format(time.RFC3339), strings.Join(s.Roster, ","))
	return nil
}

func printSessionLine(w io.Writer, s session.Session) {
	state := "ended"
	if s.Active {
		state = "active"
	}
	_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d riders\n", s.ID, state, s.Name, len(s.Roster))
}

func printView(w io.Writer, v aggregate.View) {
	if v.RosterFiltered {
		_, _ = fmt.Fprintf(w, "session: %s\n", v.SessionName)
	}
	agg := v.Aggregate
	if !agg.Available() {
		_, _ = fmt.Fprintln(w, "no participants")
		return
	}
	_, _ = fmt.Fprintf(w, "count: %d avg: %d min: %d max: %d\n", agg.Count, *agg.Avg, *agg.Min, *agg.Max)
	for _, r := range v.Samples {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d bpm\tZ%d %s\t%d%%\t%s\n", r.ParticipantID, r.Name, r.HeartRate, r.Zone, r.ZoneLabel, r.PercentMax, r.Source)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
