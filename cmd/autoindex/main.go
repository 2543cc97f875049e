// Command autoindex is the command-line client of the analytics engine.
// Price imports and ad-hoc metrics run locally; backtests, optimization,
// strategies and stored runs go through an autoindex-server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"strings"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"autoindex/internal/config"
	"autoindex/internal/report"
	"autoindex/internal/util"
	"autoindex/pkg/autoindex"
)

const version = "0.1.0"

// As a short-lived CLI it keeps its global options in package variables.
var (
	configPath = flag.String("config", config.Path(), "Path to the YAML configuration file")
	serverURL  = flag.String("server", envOr("AUTOINDEX_SERVER", "http://localhost:8080"), "Base URL of autoindex-server")
	style      = flag.String("style", "notty", "Glamour style for terminal output (notty, dark, light, ascii)")
	width      = flag.Int("width", 100, "Word-wrap width for terminal output")
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	register(commander)

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(int(commander.Execute(ctx)))
}

// register adds every subcommand to c.
func register(c *subcommands.Commander) {
	c.Register(c.HelpCommand(), "")
	c.Register(c.FlagsCommand(), "")
	c.Register(&versionCmd{}, "")

	c.Register(&importCmd{}, "data")
	c.Register(&symbolsCmd{}, "data")
	c.Register(&metricsCmd{}, "data")
	c.Register(&weightsCmd{}, "analysis")

	c.Register(&backtestCmd{}, "analysis")
	c.Register(&optimizeCmd{}, "analysis")

	c.Register(&strategyCmd{}, "strategies")

	c.Register(&runsCmd{}, "runs")
	c.Register(&reportCmd{}, "runs")
}

type versionCmd struct{}

func (*versionCmd) Name() string           { return "version" }
func (*versionCmd) Synopsis() string       { return "print the CLI version" }
func (*versionCmd) Usage() string          { return "autoindex version\n" }
func (*versionCmd) SetFlags(*flag.FlagSet) {}
func (*versionCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	fmt.Printf("autoindex %s\n", version)
	return subcommands.ExitSuccess
}

// ---------------------------------------------------------------------------
// Shared helpers
// ---------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	return cfg, nil
}

func newClient() *autoindex.Client {
	return autoindex.NewClient(*serverURL)
}

// printMarkdown renders md for the terminal, falling back to the raw text.
func printMarkdown(md string) {
	out, err := report.Terminal(md, *style, *width)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return subcommands.ExitFailure
}

func usageError(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	return subcommands.ExitUsageError
}

// splitList splits a comma separated flag value, dropping empty items.
func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseDate parses an optional YYYY-MM-DD flag value.
func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

// writeFile writes data to path unless path is empty.
func writeFile(path string, data []byte) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}
