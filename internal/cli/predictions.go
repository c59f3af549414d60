package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/thereayou/ligabpi/internal/league"
	"github.com/thereayou/ligabpi/internal/predictions"
)

func (a *app) matchesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "matches",
		Short: "List matches still open for predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			guard := predictions.NewGuard(a.client(cmd), a.logger(cmd))
			matches, err := guard.ListEligibleMatches(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			if len(matches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches open for predictions")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tKICK-OFF\tMATCH")
			for _, m := range matches {
				fmt.Fprintf(tw, "%s\t%s\t%s vs %s\n", m.ID, m.Scheduled.Local().Format("Mon 02 Jan 15:04"), m.Home.Name, m.Away.Name)
			}
			return tw.Flush()
		},
	}
}

func (a *app) predictCmd() *cobra.Command {
	var scorer string
	cmd := &cobra.Command{
		Use:   "predict <match-id> <home|draw|away>",
		Short: "Submit your prediction for a match",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client(cmd)
			user, err := a.signedIn(cmd, c)
			if err != nil {
				return err
			}
			guard := predictions.NewGuard(c, a.logger(cmd))
			p, err := guard.Submit(cmd.Context(), predictions.SubmitRequest{
				UserID:        user.ID,
				MatchID:       args[0],
				Outcome:       league.Outcome(args[1]),
				FirstScorerID: scorer,
			})
			var dup *league.DuplicatePredictionError
			if errors.As(err, &dup) {
				return fmt.Errorf("you already predicted match %s", dup.MatchID)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "prediction saved: %s on %s\n", p.Outcome, p.MatchID)
			return nil
		},
	}
	cmd.Flags().StringVar(&scorer, "scorer", "", "player id of the first scorer")
	return cmd
}

func (a *app) predictionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predictions",
		Short: "List your predictions",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client(cmd)
			user, err := a.signedIn(cmd, c)
			if err != nil {
				return err
			}
			preds, err := predictions.NewGuard(c, a.logger(cmd)).ForUser(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MATCH\tOUTCOME\tFIRST SCORER\tSUBMITTED")
			for _, p := range preds {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.MatchID, p.Outcome, dash(p.FirstScorerID), p.SubmittedAt.Local().Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
