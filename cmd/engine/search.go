package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"jobscout-engine/internal/domain"
	"jobscout-engine/internal/orchestrator"
)

type searchOptions struct {
	location string
	sources  []string
	filters  map[string]string
	max      int
	refresh  bool
	stream   bool
	asJSON   bool
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	so := &searchOptions{}
	cmd := &cobra.Command{
		Use:   "search [keywords...]",
		Short: "Search every enabled source once and print the merged jobs",
		Example: `  engine search "backend engineer" --location remote
  engine search golang --source lever --source greenhouse --json
  engine search sre --stream`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := newApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close()
			a.start(ctx)

			q := domain.Query{
				Keywords:     args,
				Location:     so.location,
				Filters:      so.filters,
				Sources:      so.sources,
				MaxResults:   so.max,
				ForceRefresh: so.refresh,
			}
			out := cmd.OutOrStdout()

			if so.stream {
				return streamSearch(ctx, a.orch, q, so, out)
			}
			res, err := a.orch.Search(ctx, q)
			if err != nil {
				return err
			}
			if so.asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			printJobs(out, res.Jobs)
			fmt.Fprintf(out, "\n%d jobs (showing %d) in %dms, cached=%t\n", res.TotalFound, len(res.Jobs), res.DurationMS, res.Cached)
			printSources(out, res.SourcesSucceeded, res.SourcesPartial, res.SourcesFailed)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&so.location, "location", "l", "", `location, or "remote"`)
	f.StringSliceVarP(&so.sources, "source", "s", nil, "only these sources (repeatable)")
	f.StringToStringVar(&so.filters, "filter", nil, "extra filters, e.g. --filter experience=senior")
	f.IntVarP(&so.max, "max", "n", 0, "maximum jobs to return (0 for all)")
	f.BoolVar(&so.refresh, "refresh", false, "skip the result cache")
	f.BoolVar(&so.stream, "stream", false, "print jobs as sources produce them")
	f.BoolVar(&so.asJSON, "json", false, "print JSON")
	return cmd
}

func streamSearch(ctx context.Context, orch *orchestrator.Orchestrator, q domain.Query, so *searchOptions, out io.Writer) error {
	jobs, summary := orch.Stream(ctx, q)
	enc := json.NewEncoder(out)
	n := 0
	for j := range jobs {
		if so.max > 0 && n >= so.max {
			continue
		}
		n++
		if so.asJSON {
			if err := enc.Encode(j); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "[%s] %s @ %s (%s)\n    %s\n", j.Source, j.Title, j.CompanyName, orDash(j.Location), j.URL)
	}
	s, ok := <-summary
	if !ok {
		return ctx.Err()
	}
	if so.asJSON {
		return enc.Encode(s)
	}
	fmt.Fprintf(out, "\n%d jobs in %dms\n", s.TotalFound, s.DurationMS)
	printSources(out, s.SourcesSucceeded, s.SourcesPartial, s.SourcesFailed)
	return ctx.Err()
}

func printJobs(w io.Writer, jobs []domain.Job) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tTITLE\tCOMPANY\tLOCATION\tPOSTED\tURL")
	for _, j := range jobs {
		posted := "-"
		if j.HasPostedDate() {
			posted = j.PostedDate.Format("2006-01-02")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", j.Source, clip(j.Title, 48), clip(j.CompanyName, 24), clip(orDash(j.Location), 24), posted, j.URL)
	}
	_ = tw.Flush()
}

func printSources(w io.Writer, succeeded, partial, failed []string) {
	fmt.Fprintf(w, "succeeded: %s\n", orDash(strings.Join(succeeded, ", ")))
	if len(partial) > 0 {
		fmt.Fprintf(w, "partial:   %s\n", strings.Join(partial, ", "))
	}
	if len(failed) > 0 {
		fmt.Fprintf(w, "failed:    %s\n", strings.Join(failed, ", "))
	}
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
