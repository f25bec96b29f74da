package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"customer-care/internal/analytics"
	"customer-care/internal/config"
	"customer-care/internal/fallback"
	"customer-care/internal/storage"
	"customer-care/internal/tracker"
)

type storeFlags struct {
	backend string
	path    string
	workers int
}

func (f *storeFlags) open() (storage.Store, error) {
	return storage.Open(f.backend, f.path)
}

func buildRootCommand() *cobra.Command {
	flags := &storeFlags{}
	if cfg, err := config.Load(); err == nil {
		flags.backend = cfg.TrackerStoreBackend
		flags.path = cfg.TrackerStorePath
		flags.workers = cfg.Workers
	} else {
		flags.backend = storage.BackendFile
		flags.path = "data/rasa_conversations.json"
		flags.workers = 4
	}

	root := &cobra.Command{
		Use:   "trackerctl",
		Short: "Inspect, analyze and export stored customer conversations",
		Long: strings.TrimSpace(`trackerctl reads the conversation tracker store used by the support bot.

It only uses the store's Keys and Retrieve operations and never modifies
stored sessions.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&flags.backend, "backend", flags.backend, "Tracker store backend: file or sqlite")
	root.PersistentFlags().StringVar(&flags.path, "path", flags.path, "Tracker store path")
	root.PersistentFlags().IntVar(&flags.workers, "workers", flags.workers, "Parallel session loads")

	root.AddCommand(newKeysCommand(flags))
	root.AddCommand(newShowCommand(flags))
	root.AddCommand(newStatsCommand(flags))
	root.AddCommand(newExportCommand(flags))
	return root
}

func newKeysCommand(flags *storeFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List stored session ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()
			keys, err := store.Keys()
			if err != nil {
				return err
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func newShowCommand(flags *storeFlags) *cobra.Command {
	var raw bool
	show := &cobra.Command{
		Use:     "show <session_id>",
		Short:   "Print the transcript and slots of one session",
		Args:    cobra.ExactArgs(1),
		Example: "  trackerctl show 123456789",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()
			t, found, err := store.Retrieve(args[0])
			if err != nil {
				return err
			}
			if !found {
				return fmt.Errorf("session %s not found", args[0])
			}
			out := cmd.OutOrStdout()
			if raw {
				doc, err := tracker.Encode(t)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(doc)
			}
			printSession(out, t)
			return nil
		},
	}
	show.Flags().BoolVar(&raw, "raw", false, "Print the stored document instead of the transcript")
	return show
}

func printSession(w io.Writer, t *tracker.Tracker) {
	fmt.Fprintf(w, "Session %s (%d events)\n", t.SessionID, t.Len())
	fmt.Fprintf(w, "Fallbacks: %d, escalated: %v\n", fallback.Count(t), fallback.Escalated(t))
	slots := t.Slots()
	names := make([]string, 0, len(slots))
	for name := range slots {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  slot %s = %v\n", name, slots[name])
	}
	fmt.Fprintln(w)
	for _, turn := range t.Transcript() {
		who := "bot "
		if turn.FromUser {
			who = "user"
		}
		fmt.Fprintf(w, "%s> %s\n", who, turn.Text)
	}
}

func newStatsCommand(flags *storeFlags) *cobra.Command {
	var (
		asJSON bool
		day    string
	)
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Print the conversation analysis report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var win analytics.Window
			if day != "" {
				d, err := time.Parse(time.DateOnly, day)
				if err != nil {
					return fmt.Errorf("--day must be YYYY-MM-DD: %w", err)
				}
				win = analytics.Day(d)
			}
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()
			st, err := analytics.Build(cmd.Context(), store, win, flags.workers)
			if err != nil {
				return err
			}
			if asJSON {
				js, err := st.ToJSON()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), js)
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), st.GenerateReportSummary())
			return nil
		},
	}
	stats.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of markdown")
	stats.Flags().StringVar(&day, "day", "", "Only count events of this UTC day (YYYY-MM-DD)")
	return stats
}

func newExportCommand(flags *storeFlags) *cobra.Command {
	var out string
	export := &cobra.Command{
		Use:     "export",
		Short:   "Write every stored session as one JSON document per line",
		Args:    cobra.NoArgs,
		Example: "  trackerctl export --out conversations.jsonl",
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			store, err := flags.open()
			if err != nil {
				return err
			}
			defer store.Close()
			c, err := analytics.Load(cmd.Context(), store, flags.workers)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil && err == nil {
						err = fmt.Errorf("close export file: %w", cerr)
					}
				}()
				w = f
			}
			n, err := writeExport(w, c.Trackers)
			if err != nil {
				return err
			}
			if len(c.Skipped) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "⚠️ Skipped %d undecodable sessions: %s\n", len(c.Skipped), strings.Join(c.Skipped, ", "))
			}
			if out != "" && out != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "✅ Exported %d sessions to %s\n", n, out)
			}
			return nil
		},
	}
	export.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	return export
}

// writeExport writes one encoded tracker document per line.
func writeExport(w io.Writer, trackers []*tracker.Tracker) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0
	for _, t := range trackers {
		doc, err := tracker.Encode(t)
		if err != nil {
			return n, err
		}
		line, err := json.Marshal(doc)
		if err != nil {
			return n, fmt.Errorf("marshal %s: %w", t.SessionID, err)
		}
		bw.Write(line)
		bw.WriteByte('\n')
		n++
	}
	return n, bw.Flush()
}
