package cli

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/gitviz/internal/api"
	"github.com/sakif/gitviz/internal/chart"
	"github.com/sakif/gitviz/internal/model"
	"github.com/sakif/gitviz/internal/server"
	"github.com/sakif/gitviz/internal/session"
)

// Environment fallbacks for the token flags, so tokens stay out of shell history.
const (
	envAccessToken  = "GITVIZ_ACCESS_TOKEN"
	envRefreshToken = "GITVIZ_REFRESH_TOKEN"
)

var errNoTokens = errors.New("an access or refresh token is required (--access-token, --refresh-token or " + envAccessToken + "/" + envRefreshToken + ")")

func newStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print committer statistics for a branch",
		Long: `Signs in with the given token pair, fetches stats, committers and commits
of one branch concurrently, and prints them as tables.

With only a refresh token, a new pair is requested first.`,
		Args: cobra.NoArgs,
		RunE: runStats,
	}

	cmd.Flags().Int64P("repo", "r", 0, "repository ID (required)")
	cmd.Flags().StringP("branch", "b", "", "branch name (required)")
	cmd.Flags().Bool("mapped", true, "group committers by assignment")
	cmd.Flags().String("access-token", "", "access token (default $"+envAccessToken+")")
	cmd.Flags().String("refresh-token", "", "refresh token (default $"+envRefreshToken+")")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("branch")
	return cmd
}

func runStats(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cmd.ErrOrStderr(), cfg)

	repoID, _ := cmd.Flags().GetInt64("repo")
	branchName, _ := cmd.Flags().GetString("branch")
	mapped, _ := cmd.Flags().GetBool("mapped")
	pair := model.TokenPair{
		AccessToken:  flagOrEnv(cmd, "access-token", envAccessToken),
		RefreshToken: flagOrEnv(cmd, "refresh-token", envRefreshToken),
	}
	if pair.AccessToken == "" && pair.RefreshToken == "" {
		return errNoTokens
	}

	client, err := server.NewClient(cfg.API, logger, nil)
	if err != nil {
		return fmt.Errorf("creating API client: %w", err)
	}

	if pair.AccessToken == "" {
		if pair, err = client.Refresh(ctx, pair.RefreshToken); err != nil {
			return fmt.Errorf("refreshing tokens: %w", err)
		}
	}

	store := session.New(client, client, logger, session.Config{
		RenewalSkew:    cfg.Session.RenewalSkew,
		RefreshTimeout: cfg.Session.RefreshTimeout,
	})
	defer store.Close()

	if err := store.Acquire(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		return fmt.Errorf("signing in: %w", err)
	}

	b := api.Branch{RepositoryID: repoID, Name: branchName, Mapped: mapped}
	rep, err := fetchReport(ctx, client, store, b)
	if err != nil {
		return err
	}

	renderReport(cmd.OutOrStdout(), rep)
	return nil
}

func flagOrEnv(cmd *cobra.Command, flag, env string) string {
	if v, _ := cmd.Flags().GetString(flag); v != "" {
		return v
	}
	return os.Getenv(env)
}

// report is everything the stats command prints.
type report struct {
	Branch     api.Branch
	Stats      []model.Stat
	Committers []model.Committer
	Commits    []model.Commit
}

// fetchReport loads the three resources concurrently. The token is read
// from the store by each call, so a renewal mid-flight is picked up.
func fetchReport(ctx context.Context, client *api.Client, store *session.Store, b api.Branch) (report, error) {
	rep := report{Branch: b}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var err error
		rep.Stats, err = client.Stats(egCtx, store.AccessToken(), b)
		return err
	})

	eg.Go(func() error {
		var err error
		rep.Committers, err = client.Committers(egCtx, store.AccessToken(), b)
		return err
	})

	eg.Go(func() error {
		var err error
		rep.Commits, err = client.Commits(egCtx, store.AccessToken(), b)
		return err
	})

	if err := eg.Wait(); err != nil {
		return report{}, fmt.Errorf("fetching branch data: %w", err)
	}
	return rep, nil
}

func renderReport(w io.Writer, rep report) {
	fmt.Fprintf(w, "Repository %d, branch %s\n\n", rep.Branch.RepositoryID, rep.Branch.Name)
	fmt.Fprintln(w, committerTable(rep.Stats))
	fmt.Fprintln(w)
	fmt.Fprintln(w, summaryTable(rep))
}

// committerTable lists stats rows by commit count, highest first, with
// each committer's share of all commits.
func committerTable(stats []model.Stat) string {
	rows := slices.Clone(stats)
	slices.SortStableFunc(rows, func(a, b model.Stat) int {
		return cmp.Compare(b.NumberOfCommits, a.NumberOfCommits)
	})

	var total model.Stat
	for _, s := range rows {
		total.NumberOfCommits += s.NumberOfCommits
		total.NumberOfAdditions += s.NumberOfAdditions
		total.NumberOfDeletions += s.NumberOfDeletions
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Footer = text.FormatDefault
	tbl.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	tbl.AppendHeader(table.Row{"Committer", "Commits", "Additions", "Deletions", "Share"})

	for _, s := range rows {
		share := 0.0
		if total.NumberOfCommits > 0 {
			share = 100 * float64(s.NumberOfCommits) / float64(total.NumberOfCommits)
		}
		tbl.AppendRow(table.Row{
			s.Committer,
			humanize.Comma(int64(s.NumberOfCommits)),
			humanize.Comma(int64(s.NumberOfAdditions)),
			humanize.Comma(int64(s.NumberOfDeletions)),
			fmt.Sprintf("%.1f%%", share),
		})
	}

	tbl.AppendFooter(table.Row{
		fmt.Sprintf("Total: %d committers", len(rows)),
		humanize.Comma(int64(total.NumberOfCommits)),
		humanize.Comma(int64(total.NumberOfAdditions)),
		humanize.Comma(int64(total.NumberOfDeletions)),
		"",
	})
	return tbl.Render()
}

func summaryTable(rep report) string {
	sum := chart.Summarize(rep.Commits)

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.AppendHeader(table.Row{"Metric", "Value"})
	tbl.AppendRows([]table.Row{
		{"Commits", humanize.Comma(int64(sum.Commits))},
		{"Merge commits", humanize.Comma(int64(sum.MergeCommits))},
		{"Authors", humanize.Comma(int64(sum.Authors))},
		{"Committers", humanize.Comma(int64(len(rep.Committers)))},
		{"Additions", humanize.Comma(int64(sum.Additions))},
		{"Deletions", humanize.Comma(int64(sum.Deletions))},
		{"Net change", humanize.Comma(int64(sum.NetChange))},
		{"Mean churn", humanize.FormatFloat("#,###.##", sum.MeanChurn)},
		{"Median churn", humanize.FormatFloat("#,###.##", sum.MedianChurn)},
		{"P90 churn", humanize.FormatFloat("#,###.##", sum.P90Churn)},
	})

	if len(rep.Commits) > 0 {
		sorted := chart.SortCommits(rep.Commits)
		tbl.AppendRow(table.Row{"First commit", humanize.Time(sorted[0].Timestamp)})
		tbl.AppendRow(table.Row{"Last commit", humanize.Time(sorted[len(sorted)-1].Timestamp)})
	}
	return tbl.Render()
}
