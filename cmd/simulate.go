package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/studia-app/engine/internal/engine"
	"github.com/studia-app/engine/internal/events"
	"github.com/studia-app/engine/internal/grader"
	"github.com/studia-app/engine/internal/quiz"
)

// simulateCmd runs a scripted learner through detection and remediation
// so the full pipeline can be observed without a client.
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a scripted learner through gap detection and remediation",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		opts := engine.Options{}
		if g, err := grader.NewFromEnv(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "Grading backend not configured:", err)
			fmt.Fprintln(os.Stderr, "Free-response questions will be marked ungraded.")
		} else {
			opts.Grader = g
		}

		eng, err := engine.New(ctx, engine.DefaultConfig(), opts)
		if err != nil {
			return fmt.Errorf("build engine: %w", err)
		}
		defer eng.Close(ctx)

		gapCh, cancelGap := eng.Events().Subscribe(events.KindGapDetected)
		defer cancelGap()
		resolvedCh, cancelRes := eng.Events().Subscribe(events.KindGapResolved)
		defer cancelRes()

		banked := seedDemoBank(eng.Bank())

		fmt.Println("Learner fails a fractions quiz...")
		failed := &quiz.Quiz{ID: "demo-1", Questions: banked}
		wrong := make(map[string]string, len(banked))
		for _, q := range banked {
			wrong[q.ID] = "wrong"
		}
		result, err := eng.SubmitQuiz(ctx, failed, wrong)
		if err != nil {
			return err
		}
		fmt.Printf("  score %.0f%%, mastery %.2f\n", result.Score*100, eng.MasteryLevel("fractions"))
		drainGapEvents(gapCh)

		lesson := quiz.Lesson{ID: "demo-lesson", Concepts: []string{"fractions"}}
		for round := 1; ; round++ {
			qz := eng.GenerateQuiz(lesson)
			if qz == nil {
				break
			}
			answers := make(map[string]string, len(qz.Questions))
			for _, q := range qz.Questions {
				answers[q.ID] = q.Answer
			}
			if _, err := eng.SubmitQuiz(ctx, qz, answers); err != nil {
				return err
			}
			fmt.Printf("Remediation round %d: %d questions, mastery %.2f\n",
				round, len(qz.Questions), eng.MasteryLevel("fractions"))
		}

		select {
		case <-resolvedCh:
			fmt.Println("Gap resolved.")
		default:
			fmt.Println("Gap still open.")
		}
		return nil
	},
}

func seedDemoBank(bank *quiz.Bank) []quiz.Question {
	qs := []quiz.Question{
		{Concept: "fractions", Prompt: "1/2 + 1/4 = ?", Options: []string{"3/4", "2/6", "1/8"}, Answer: "3/4", Difficulty: "easy"},
		{Concept: "fractions", Prompt: "Which is larger, 2/3 or 3/5?", Options: []string{"2/3", "3/5"}, Answer: "2/3", Difficulty: "easy"},
		{Concept: "fractions", Prompt: "Simplify 6/8.", Options: []string{"3/4", "2/3", "6/8"}, Answer: "3/4", Difficulty: "easy"},
		{Concept: "fractions", Prompt: "1/3 of 18 = ?", Options: []string{"6", "9", "3"}, Answer: "6", Difficulty: "medium"},
	}
	out := make([]quiz.Question, len(qs))
	for i, q := range qs {
		out[i] = bank.Add(q)
	}
	return out
}

func drainGapEvents(ch <-chan events.Event) {
	for {
		select {
		case ev := <-ch:
			if gap, ok := ev.(events.GapDetected); ok {
				fmt.Printf("  gap detected: %s (%s)\n", gap.Concept, gap.Severity)
			}
		default:
			return
		}
	}
}
