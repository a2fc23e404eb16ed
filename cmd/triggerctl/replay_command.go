package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trigger-guard/internal/decision"
	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
	"github.com/danielpatrickdp/trigger-guard/internal/replay"
)

func newReplayCommand(ctx *commandContext) *cobra.Command {
	var fixturePath string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a fixture through the pipeline and check its expectations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			f, err := replay.LoadFixture(fixturePath)
			if err != nil {
				return err
			}
			plugins, err := cfg.Plugins()
			if err != nil {
				return err
			}

			results, session, err := replay.Replay(cmd.Context(), f, replay.Options{
				Config:    cfg.PipelineConfig(),
				Threshold: cfg.ThresholdConfig(),
				Plugins:   plugins,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color := shouldColorize(out)
			mismatches := replay.Verify(f, results, session)
			printReplay(out, f, results, mismatches, color)
			printSummary(out, replay.Summarize(results, session), cfg.Learner.Default)

			if len(mismatches) > 0 {
				for _, m := range mismatches {
					fmt.Fprintln(out, colorize(m.String(), text.FgRed, color))
				}
				return fmt.Errorf("%d expectation(s) not met", len(mismatches))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&fixturePath, "fixture", "f", "", "Path to a fixture JSON file")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

func printReplay(out io.Writer, f *replay.Fixture, results []replay.StepResult, mismatches []replay.Mismatch, color bool) {
	failed := make(map[int]bool, len(mismatches))
	for _, m := range mismatches {
		failed[m.Index] = true
	}

	rows := make([][]string, 0, len(results))
	for _, r := range results {
		category, at := "", ""
		if ev := f.Steps[r.Index].Event; ev.Detection != nil {
			category = displayCategory(ev.Detection.Category)
			at = strconv.FormatFloat(ev.Detection.Timestamp, 'f', 1, 64)
		}
		expected, match := "", ""
		if exp := f.Steps[r.Index].Expect; exp != nil {
			expected = exp.Action
			match = colorize("OK", text.FgGreen, color)
			if failed[r.Index] {
				match = colorize("DIFF", text.FgRed, color)
			}
		}
		confidence := ""
		if r.Kind == orchestrator.EventDetection && r.Action != replay.ActionRejected {
			confidence = fmt.Sprintf("%.2f / %.2f", r.Confidence, r.Threshold)
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Index), string(r.Kind), category, at,
			r.Action, r.Reason, confidence, expected, match,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]column{numCol("#"), textCol("Kind"), textCol("Category"), numCol("At"), textCol("Action"), textCol("Reason"), numCol("Conf / Thr"), textCol("Expected"), textCol("Match")},
		rows,
	))
}

func printSummary(out io.Writer, sum replay.Summary, base float64) {
	fmt.Fprintf(out, "\nSteps: %d | detections: %d | emitted: %d | merged: %d | suppressed: %d | rejected: %d | feedback: %d | resets: %d\n",
		sum.Steps, sum.Detections, sum.Emits, sum.Merges, sum.Suppressed, sum.Rejected, sum.Feedback, sum.Resets)

	if len(sum.Suppressions) > 0 {
		reasons := make([]decision.Reason, 0, len(sum.Suppressions))
		for r := range sum.Suppressions {
			reasons = append(reasons, r)
		}
		sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
		fmt.Fprint(out, "Suppressions:")
		for _, r := range reasons {
			fmt.Fprintf(out, " %s=%d", r, sum.Suppressions[r])
		}
		fmt.Fprintln(out)
	}

	changed := make([]detection.Category, 0)
	for c, v := range sum.Thresholds {
		if v != base {
			changed = append(changed, c)
		}
	}
	sort.Slice(changed, func(i, j int) bool { return changed[i] < changed[j] })
	for _, c := range changed {
		fmt.Fprintf(out, "Threshold %s: %.2f\n", displayCategory(c), sum.Thresholds[c])
	}
}
