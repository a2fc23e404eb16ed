package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/orchestrator"
)

func newThresholdsCommand(ctx *commandContext) *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "thresholds",
		Short: "Show, export and import learned thresholds",
	}
	cmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "User whose thresholds to use")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(newThresholdsShowCommand(ctx, &userID))
	cmd.AddCommand(newThresholdsExportCommand(ctx, &userID))
	cmd.AddCommand(newThresholdsImportCommand(ctx, &userID))
	return cmd
}

func newThresholdsShowCommand(ctx *commandContext, userID *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored thresholds of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withStore(cmd.Context(), func(store thresholdStore) error {
				records, err := store.LoadThresholds(cmd.Context(), *userID)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(records) == 0 {
					fmt.Fprintf(out, "No learned thresholds for %s; every category uses the default\n", *userID)
					return nil
				}
				sort.Slice(records, func(i, j int) bool { return records[i].Category < records[j].Category })
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{
						displayCategory(r.Category),
						strconv.FormatFloat(r.Current, 'f', 2, 64),
						strconv.FormatFloat(r.Default, 'f', 2, 64),
						strconv.Itoa(r.LearningCount),
						yesNo(r.Converged),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{textCol("Category"), numCol("Current"), numCol("Default"), numCol("Updates"), textCol("Converged")},
					rows,
				))
				return nil
			})
		},
	}
}

func newThresholdsExportCommand(ctx *commandContext, userID *string) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every category threshold of a user as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withManager(cmd.Context(), func(m *orchestrator.Manager) error {
				data, err := json.MarshalIndent(m.ExportThresholds(cmd.Context(), *userID), "", "  ")
				if err != nil {
					return err
				}
				data = append(data, '\n')
				if outPath == "" || outPath == "-" {
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				return os.WriteFile(outPath, data, 0o644)
			})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination file (stdout when empty)")
	return cmd
}

func newThresholdsImportCommand(ctx *commandContext, userID *string) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Apply a JSON threshold snapshot to a user",
		Long:  "Values are clamped to the learner bounds. Unknown categories are reported; known ones are still applied.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}
			var snapshot map[detection.Category]float64
			if err := json.Unmarshal(data, &snapshot); err != nil {
				return fmt.Errorf("parse snapshot: %w", err)
			}
			return ctx.withManager(cmd.Context(), func(m *orchestrator.Manager) error {
				importErr := m.ImportThresholds(cmd.Context(), *userID, snapshot)
				applied := m.ExportThresholds(cmd.Context(), *userID)
				out := cmd.OutOrStdout()
				count := 0
				for c := range snapshot {
					if v, ok := applied[c]; ok {
						count++
						if v != snapshot[c] {
							fmt.Fprintf(out, "%s clamped to %.2f\n", displayCategory(c), v)
						}
					}
				}
				fmt.Fprintf(out, "Imported %d threshold(s) for %s\n", count, *userID)
				if importErr != nil && count == 0 {
					return importErr
				}
				if importErr != nil {
					return errors.Join(errors.New("some categories were not imported"), importErr)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&inPath, "in", "i", "", "Snapshot file to import")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}
