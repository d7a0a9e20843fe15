package cmd

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/studia-app/engine/internal/engine"
	"github.com/studia-app/engine/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show mastery levels, open gaps and recent gap activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		dbPath, err := resolveDBPath(cmd)
		if err != nil {
			return fmt.Errorf("resolve DB path: %w", err)
		}
		st, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()

		eng, err := engine.New(ctx, engine.DefaultConfig(), engine.Options{Store: st})
		if err != nil {
			return fmt.Errorf("build engine: %w", err)
		}

		records := eng.MasteryRecords()
		if len(records) == 0 {
			fmt.Println("No mastery data yet.")
			return nil
		}
		sort.Slice(records, func(i, j int) bool {
			return records[i].Concept < records[j].Concept
		})

		audit := st.AuditRepo()
		fmt.Println("Mastery:")
		for _, rec := range records {
			accuracy, count, err := audit.ConceptAccuracy(ctx, rec.Concept)
			if err != nil {
				return fmt.Errorf("concept accuracy: %w", err)
			}
			fmt.Printf("  %-24s level %.2f  samples %-4d accuracy %3.0f%% (%d answers)\n",
				rec.Concept, rec.Level, rec.Samples, accuracy*100, count)
		}

		open := eng.OpenGaps()
		fmt.Printf("\nOpen gaps: %d\n", len(open))
		for _, g := range open {
			fmt.Printf("  %-24s %-8s since %s\n",
				g.Concept, g.Severity, g.DetectedAt.Format("2006-01-02 15:04"))
		}

		if states := eng.ReviewStates(); len(states) > 0 {
			fmt.Println("\nSpaced review:")
			now := time.Now().UTC()
			for _, st := range states {
				status := "scheduled"
				switch {
				case st.Rusty:
					status = "rusty"
				case st.Due(now):
					status = "due"
				case st.Graduated:
					status = "graduated"
				}
				fmt.Printf("  %-24s stage %-2d next %s  %s\n",
					st.Concept, st.Stage, st.NextReview.Format("2006-01-02"), status)
			}
		}

		recent, err := audit.RecentGapEvents(ctx, 10)
		if err != nil {
			return fmt.Errorf("recent gap events: %w", err)
		}
		if len(recent) > 0 {
			fmt.Println("\nRecent gap activity:")
			for _, ev := range recent {
				fmt.Printf("  %s  %-24s %-10s %s\n",
					ev.Timestamp.Format("2006-01-02 15:04"), ev.Concept, ev.Action, ev.Severity)
			}
		}

		return nil
	},
}
