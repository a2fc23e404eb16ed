package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/trigger-guard/internal/replay"
	"github.com/danielpatrickdp/trigger-guard/internal/state"
)

func newFixtureCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixture",
		Short: "Build and check replay fixtures",
	}
	cmd.AddCommand(newFixtureExportCommand(ctx))
	cmd.AddCommand(newFixtureValidateCommand())
	return cmd
}

func newFixtureExportCommand(ctx *commandContext) *cobra.Command {
	var sessionID, userID, description, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Turn a journaled session into a replay fixture",
		Long:  "The fixture carries the recorded events only. Add expectations by hand before using it as a regression test.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return ctx.withJournal(func(store *state.Store) error {
				records, err := store.JournalEvents(cmd.Context(), sessionID)
				if err != nil {
					return err
				}
				desc := description
				if desc == "" {
					desc = "exported from session " + sessionID
				}
				f, err := replay.FromJournal(desc, userID, records)
				if err != nil {
					return err
				}
				if err := replay.WriteFixture(outPath, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d step(s) to %s\n", len(f.Steps), outPath)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session to export")
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User ID recorded in the fixture")
	cmd.Flags().StringVarP(&description, "description", "d", "", "Fixture description")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Destination file")
	_ = cmd.MarkFlagRequired("session")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newFixtureValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "validate FILE...",
		Short:       "Check fixtures against the fixture schema",
		Args:        cobra.MinimumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			failed := 0
			for _, path := range args {
				if _, err := replay.LoadFixture(path); err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d fixture(s) invalid", failed)
			}
			return nil
		},
	}
}
