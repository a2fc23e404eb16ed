package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trigger-guard/internal/state"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var userID string
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent threshold adjustments of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}
			return ctx.withStore(cmd.Context(), func(store thresholdStore) error {
				adjustments, err := store.ListAdjustments(cmd.Context(), userID, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(adjustments) == 0 {
					fmt.Fprintf(out, "No adjustments recorded for %s\n", userID)
					return nil
				}
				rows := make([][]string, 0, len(adjustments))
				for _, a := range adjustments {
					rows = append(rows, []string{
						a.At.Local().Format(time.DateTime),
						displayCategory(a.Category),
						string(a.Feedback),
						strconv.FormatFloat(a.Old, 'f', 2, 64),
						strconv.FormatFloat(a.New, 'f', 2, 64),
						yesNo(a.Converged),
						a.Reasoning,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{textCol("When"), textCol("Category"), textCol("Feedback"), numCol("Old"), numCol("New"), textCol("Converged"), wideCol("Reasoning")},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User whose history to list")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newSessionsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var sessionID string

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List journaled sessions, or the decisions of one session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withJournal(func(store *state.Store) error {
				out := cmd.OutOrStdout()
				if sessionID != "" {
					return printDecisions(cmd, store, sessionID)
				}
				sessions, err := store.ListSessions(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(sessions) == 0 {
					fmt.Fprintln(out, "No sessions in the journal")
					return nil
				}
				rows := make([][]string, 0, len(sessions))
				for _, s := range sessions {
					rows = append(rows, []string{
						s.SessionID,
						strconv.Itoa(s.Events),
						s.FirstAt.Local().Format(time.DateTime),
						s.LastAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{textCol("Session"), numCol("Events"), textCol("First"), textCol("Last")},
					rows,
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Show the decision log of this session")
	return cmd
}

func printDecisions(cmd *cobra.Command, store *state.Store, sessionID string) error {
	decisions, err := store.Decisions(cmd.Context(), sessionID)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(decisions) == 0 {
		fmt.Fprintf(out, "No decisions recorded for session %s\n", sessionID)
		return nil
	}
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		rows = append(rows, []string{
			strconv.FormatUint(d.Epoch, 10),
			strconv.FormatFloat(d.Timestamp, 'f', 1, 64),
			d.Category,
			strconv.FormatFloat(d.Confidence, 'f', 2, 64),
			strconv.FormatFloat(d.Threshold, 'f', 2, 64),
			d.Action,
			d.Reason,
			d.WarningID,
		})
	}
	fmt.Fprintln(out, renderTable(
		[]column{numCol("Epoch"), numCol("At"), textCol("Category"), numCol("Confidence"), numCol("Threshold"), textCol("Action"), textCol("Reason"), textCol("Warning")},
		rows,
	))
	return nil
}
