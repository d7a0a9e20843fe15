package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/studia-app/engine/internal/events"
	"github.com/studia-app/engine/internal/live"
)

// liveCmd attaches to a tutoring backend over websocket and prints the
// inbound event stream until interrupted.
var liveCmd = &cobra.Command{
	Use:   "live",
	Short: "Connect to a live tutoring backend and stream its events",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")
		learner, _ := cmd.Flags().GetString("learner")
		lessonID, _ := cmd.Flags().GetString("lesson")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		bus := events.NewBus()
		session := live.NewSession(live.NewWebSocketTransport(endpoint), bus, live.DefaultConfig())

		kinds := []events.Kind{
			events.KindGapDetected,
			events.KindGapResolved,
			events.KindConceptMastered,
			events.KindStruggleDetected,
			events.KindSuggestedActions,
			events.KindTutorAnswer,
			events.KindConnectionLost,
		}
		merged := make(chan events.Event, 64)
		for _, k := range kinds {
			ch, cancel := bus.Subscribe(k)
			defer cancel()
			go func() {
				for ev := range ch {
					select {
					case merged <- ev:
					case <-ctx.Done():
						return
					}
				}
			}()
		}

		if lessonID != "" {
			if err := session.SetCurrentLesson(lessonID); err != nil {
				return err
			}
		}
		if err := session.Connect(ctx, learner); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer session.Disconnect()
		fmt.Printf("Connected as %s. Ctrl-C to stop.\n", learner)

		for {
			select {
			case <-ctx.Done():
				return nil
			case ev := <-merged:
				if _, lost := ev.(events.ConnectionLost); lost {
					fmt.Println("Connection lost.")
					return nil
				}
				fmt.Printf("%#v\n", ev)
			}
		}
	},
}

func init() {
	liveCmd.Flags().String("endpoint", "", "Websocket endpoint of the tutoring backend")
	liveCmd.Flags().String("learner", "local", "Learner identifier")
	liveCmd.Flags().String("lesson", "", "Lesson to announce after connecting")
	_ = liveCmd.MarkFlagRequired("endpoint")
}
