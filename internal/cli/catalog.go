package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/thereayou/ligabpi/internal/catalog"
)

func (a *app) newsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "news",
		Short: "Show the latest news",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := catalog.New(a.client(cmd)).News(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, n := range items {
				fmt.Fprintf(out, "%s  %s\n", n.CreatedAt.Local().Format("2006-01-02"), n.Title)
				if n.Body != "" {
					fmt.Fprintf(out, "    %s\n", n.Body)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 5, "items to show")
	return cmd
}

func (a *app) standingsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "standings",
		Short: "Show the league table",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := catalog.New(a.client(cmd)).Standings(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "#\tCLUB\tP\tW\tD\tL\tGF\tGA\tPTS\t")
			for i, s := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t\n",
					i+1, s.ClubName, s.Played, s.Wins, s.Draws, s.Losses, s.GoalsFor, s.GoalsAgainst, s.Points)
			}
			return tw.Flush()
		},
	}
}

func (a *app) clubsCmd() *cobra.Command {
	var f catalog.ClubFilter
	cmd := &cobra.Command{
		Use:   "clubs",
		Short: "List clubs",
		RunE: func(cmd *cobra.Command, args []string) error {
			clubs, err := catalog.New(a.client(cmd)).Clubs(cmd.Context(), f)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tCATEGORY")
			for _, c := range clubs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", c.ID, c.Name, dash(c.Category))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&f.Query, "search", "s", "", "filter by name")
	cmd.Flags().StringVar(&f.Category, "category", "all", "filter by category")
	return cmd
}

func (a *app) playersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "players <club-id>",
		Short: "List the roster of a club",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			players, err := catalog.New(a.client(cmd)).Players(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tPOSITION")
			for _, p := range players {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, dash(p.Position))
			}
			return tw.Flush()
		},
	}
}

func (a *app) scorersCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "scorers",
		Short: "Show the top scorers",
		RunE: func(cmd *cobra.Command, args []string) error {
			scorers, err := catalog.New(a.client(cmd)).TopScorers(cmd.Context(), limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PLAYER\tCLUB\tGOALS")
			for _, s := range scorers {
				fmt.Fprintf(tw, "%s\t%s\t%d\n", s.PlayerName, dash(s.ClubName), s.Goals)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "scorers to show")
	return cmd
}

func (a *app) profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your fan profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.client(cmd)
			user, err := a.signedIn(cmd, c)
			if err != nil {
				return err
			}
			cat := catalog.New(c)
			p, err := cat.Profile(cmd.Context(), user)
			if err != nil {
				return err
			}

			var u catalog.ProfileUpdate
			flags := cmd.Flags()
			for name, dst := range map[string]**string{
				"name":          &u.Name,
				"avatar":        &u.Avatar,
				"favorite-club": &u.FavoriteClub,
				"bio":           &u.Bio,
			} {
				if flags.Changed(name) {
					v, _ := flags.GetString(name)
					*dst = &v
				}
			}
			if u != (catalog.ProfileUpdate{}) {
				if p, err = cat.UpdateProfile(cmd.Context(), user.ID, u); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:          %s\n", p.Name)
			fmt.Fprintf(out, "email:         %s\n", p.Email)
			fmt.Fprintf(out, "favorite club: %s\n", dash(p.FavoriteClub))
			fmt.Fprintf(out, "bio:           %s\n", dash(p.Bio))
			return nil
		},
	}
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("avatar", "", "avatar URL")
	cmd.Flags().String("favorite-club", "", "club id")
	cmd.Flags().String("bio", "", "short bio")
	return cmd
}
