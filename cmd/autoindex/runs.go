package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"

	"autoindex/internal/report"
	"autoindex/internal/store"
)

type runsCmd struct {
	strategy string
	limit    int
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "list backtest runs recorded by the server" }
func (*runsCmd) Usage() string {
	return "autoindex runs [-strategy name] [-limit n]\n"
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.strategy, "strategy", "", "Only list runs of this strategy")
	f.IntVar(&c.limit, "limit", 20, "Maximum number of runs")
}

func (c *runsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	runs, err := newClient().ListRuns(ctx, c.strategy, c.limit)
	if err != nil {
		return fail(err)
	}
	printMarkdown(runsTable(runs))
	return subcommands.ExitSuccess
}

// runsTable renders run summaries newest first, as the server returns them.
func runsTable(runs []store.RunSummary) string {
	var b strings.Builder
	b.WriteString("# Runs\n\n")
	if len(runs) == 0 {
		b.WriteString("No runs recorded.\n")
		return b.String()
	}
	b.WriteString("| Run | Strategy | Started | Status | Final value | Total return | Sharpe |\n")
	b.WriteString("|---|---|---|---|---:|---:|---:|\n")
	for _, r := range runs {
		status := string(r.Status)
		if r.Incomplete {
			status += " (incomplete)"
		}
		value, err := report.FormatMoney(r.FinalValue, report.DefaultCurrency)
		if err != nil {
			value = fmt.Sprintf("%.2f", r.FinalValue)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %.2f%% | %.3f |\n",
			r.ID, r.Strategy, r.StartedAt.Format("2006-01-02 15:04"), status,
			value, r.Report.TotalReturn*100, r.Report.SharpeRatio)
	}
	return b.String()
}

type reportCmd struct {
	htmlPath  string
	chartPath string
}

func (*reportCmd) Name() string     { return "report" }
func (*reportCmd) Synopsis() string { return "print the report of a recorded run" }
func (*reportCmd) Usage() string {
	return `autoindex report [-html out.html] [-chart out.png] <run-id>
`
}

func (c *reportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.htmlPath, "html", "", "Also write the report as an HTML page")
	f.StringVar(&c.chartPath, "chart", "", "Also write the equity curve as a PNG")
}

func (c *reportCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		return usageError("report needs one run id")
	}
	id := f.Arg(0)
	client := newClient()

	md, err := client.RunReport(ctx, id)
	if err != nil {
		return fail(err)
	}
	printMarkdown(md)

	if c.htmlPath != "" {
		body, err := report.HTML(md)
		if err != nil {
			return fail(err)
		}
		if err := writeFile(c.htmlPath, []byte(report.Page("Backtest "+id, body))); err != nil {
			return fail(err)
		}
	}
	if c.chartPath != "" {
		png, err := client.RunChart(ctx, id)
		if err != nil {
			return fail(err)
		}
		if err := writeFile(c.chartPath, png); err != nil {
			return fail(err)
		}
	}
	return subcommands.ExitSuccess
}
