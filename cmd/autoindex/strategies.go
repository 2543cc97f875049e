package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/google/subcommands"
	"gopkg.in/yaml.v3"

	"autoindex/internal/domain"
	"autoindex/internal/store"
	"autoindex/internal/strategy"
	"autoindex/pkg/autoindex"
)

type strategyCmd struct{}

func (*strategyCmd) Name() string     { return "strategy" }
func (*strategyCmd) Synopsis() string { return "list, show, version and save strategies on the server" }
func (*strategyCmd) Usage() string {
	return `autoindex strategy list
autoindex strategy show <name>
autoindex strategy versions <name>
autoindex strategy save <strategies.yaml>

  save validates every strategy in the file locally, then stores each one
  as a new version on the server.
`
}

func (*strategyCmd) SetFlags(*flag.FlagSet) {}

func (*strategyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) == 0 {
		args = []string{"list"}
	}
	client := newClient()

	switch verb := args[0]; {
	case verb == "list" && len(args) == 1:
		all, err := client.ListStrategies(ctx)
		if err != nil {
			return fail(err)
		}
		printMarkdown(strategiesTable(all))

	case verb == "show" && len(args) == 2:
		cfg, err := client.GetStrategy(ctx, args[1])
		if err != nil {
			return fail(err)
		}
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fail(err)
		}
		fmt.Print(string(out))

	case verb == "versions" && len(args) == 2:
		versions, err := client.StrategyVersions(ctx, args[1])
		if err != nil {
			return fail(err)
		}
		printMarkdown(versionsTable(args[1], versions))

	case verb == "save" && len(args) == 2:
		return saveStrategies(ctx, client, args[1])

	default:
		return usageError("unknown strategy invocation %q", strings.Join(args, " "))
	}
	return subcommands.ExitSuccess
}

func saveStrategies(ctx context.Context, client *autoindex.Client, path string) subcommands.ExitStatus {
	cfgs, err := strategy.LoadFile(path)
	if err != nil {
		return fail(err)
	}
	for _, cfg := range cfgs {
		saved, err := client.SaveStrategy(ctx, cfg)
		if err != nil {
			return fail(fmt.Errorf("saving %s: %w", cfg.Name, err))
		}
		fmt.Printf("saved %s version %d\n", saved.Name, saved.Version)
	}
	return subcommands.ExitSuccess
}

func strategiesTable(all []domain.StrategyConfig) string {
	var b strings.Builder
	b.WriteString("# Strategies\n\n| Name | Rebalance | Lookback | Blend | Weight bounds |\n|---|---|---:|---|---|\n")
	for _, s := range all {
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %.2f to %.2f |\n",
			s.Name, s.Rebalance, s.LookbackPeriod, blend(s.Blend), s.MinWeight, s.MaxWeight)
	}
	return b.String()
}

func versionsTable(name string, versions []store.StrategyVersion) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n| Version | Updated | Rebalance | Lookback | Blend |\n|---:|---|---|---:|---|\n", name)
	for _, v := range versions {
		fmt.Fprintf(&b, "| %d | %s | %s | %d | %s |\n", v.Version,
			v.UpdatedAt.Format("2006-01-02 15:04"), v.Config.Rebalance, v.Config.LookbackPeriod, blend(v.Config.Blend))
	}
	return b.String()
}

func blend(b domain.SignalBlend) string {
	return fmt.Sprintf("momentum %.2f, market cap %.2f, risk parity %.2f", b.Momentum, b.MarketCap, b.RiskParity)
}
