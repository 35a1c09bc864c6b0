// Package main provides the coderun binary entry point.
// Coderun walks a source tree and emits a reproducible run artifact
// bundle: manifest, delta report, context bundles, knowledge graph,
// diagrams, metrics and gate reports, explain cards, and a Markdown
// summary.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	// Register language extractors via init()
	_ "github.com/c360studio/codetrail/internal/extract/docs"
	_ "github.com/c360studio/codetrail/internal/extract/golang"
	_ "github.com/c360studio/codetrail/internal/extract/java"
	_ "github.com/c360studio/codetrail/internal/extract/javascript"
	_ "github.com/c360studio/codetrail/internal/extract/python"

	"github.com/spf13/cobra"

	"github.com/c360studio/codetrail/internal/config"
	"github.com/c360studio/codetrail/internal/digest"
	"github.com/c360studio/codetrail/internal/orchestrate"
	"github.com/c360studio/codetrail/internal/runerr"
)

const (
	Version = "0.1.0"
	appName = "coderun"
)

func main() {
	code, err := execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(code)
}

func execute() (int, error) {
	var exitCode int
	cmd := rootCmd(&exitCode)
	if err := cmd.Execute(); err != nil {
		var classified *runerr.Error
		if errors.As(err, &classified) {
			return classified.Class.ExitCode(), err
		}
		return 1, err
	}
	return exitCode, nil
}

type flagSet struct {
	configPath string
	logLevel   string

	input        string
	outputDir    string
	cacheDir     string
	presets      []string
	include      []string
	ignore       []string
	metricsFiles []string

	forceRebuild  bool
	noIncremental bool
	allowNetwork  bool

	minCoverage      float64
	maxFailedTests   int
	maxLintWarnings  int
	maxCriticalVulns int

	noGraph     bool
	graphScope  string
	graphDiff   bool
	noGraphDiff bool

	noDiagrams         bool
	diagramPresets     []string
	diagramFormat      string
	diagramTheme       string
	diagramConcurrency int
}

func rootCmd(exitCode *int) *cobra.Command {
	var f flagSet

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Deterministic local-first code-analysis runs",
		Long: `Coderun analyzes a source tree into a timestamped, reproducible run
directory: manifest, delta report, context bundles, knowledge graph with
inter-run diff, diagrams, normalized metrics with quality gates, explain
cards, and a Markdown summary. Runs are local-first: no network access
of any kind.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, &f, exitCode)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Config file path (YAML)")
	flags.StringVar(&f.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	flags.StringVar(&f.input, "input", "", "Scan root (required unless set in config)")
	flags.StringVar(&f.outputDir, "output-dir", "", "Directory run directories are created under")
	flags.StringVar(&f.cacheDir, "cache-dir", "", "Content-addressed cache directory")
	flags.StringArrayVar(&f.presets, "preset", nil, "Bundle preset (repeatable: all, api, tests, dependencies)")
	flags.StringArrayVar(&f.include, "include", nil, "Include glob (repeatable)")
	flags.StringArrayVar(&f.ignore, "ignore", nil, "Ignore glob (repeatable, wins over include)")
	flags.StringArrayVar(&f.metricsFiles, "metrics", nil, "Normalized metrics input file (repeatable)")

	flags.BoolVar(&f.forceRebuild, "force-rebuild", false, "Ignore the cache and reprocess every file")
	flags.BoolVar(&f.noIncremental, "no-incremental", false, "Disable incremental reuse for this run")
	flags.BoolVar(&f.allowNetwork, "allow-network", false, "Reserved; runs never open network sockets")

	flags.Float64Var(&f.minCoverage, "min-coverage", 0, "Minimum line coverage percentage gate")
	flags.IntVar(&f.maxFailedTests, "max-failed-tests", 0, "Maximum failed tests gate")
	flags.IntVar(&f.maxLintWarnings, "max-lint-warnings", 0, "Maximum lint warnings gate")
	flags.IntVar(&f.maxCriticalVulns, "max-critical-vulns", 0, "Maximum critical vulnerabilities gate")

	flags.BoolVar(&f.noGraph, "no-graph", false, "Skip knowledge-graph construction")
	flags.StringVar(&f.graphScope, "graph-scope", "", "Graph scope (full, code, dependencies, tests)")
	flags.BoolVar(&f.graphDiff, "graph-diff", false, "Diff the graph against the prior run")
	flags.BoolVar(&f.noGraphDiff, "no-graph-diff", false, "Skip the inter-run graph diff")

	flags.BoolVar(&f.noDiagrams, "no-diagrams", false, "Skip diagram generation")
	flags.StringArrayVar(&f.diagramPresets, "diagram-preset", nil, "Diagram preset (repeatable: architecture, dependencies, tests)")
	flags.StringVar(&f.diagramFormat, "diagram-format", "", "Diagram format (mermaid, plantuml, graphviz)")
	flags.StringVar(&f.diagramTheme, "diagram-theme", "", "Diagram theme (light, dark, auto)")
	flags.IntVar(&f.diagramConcurrency, "diagram-concurrency", 0, "Diagram rendering worker count")

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s\n", appName, Version)
		},
	})

	return cmd
}

func run(cmd *cobra.Command, f *flagSet, exitCode *int) error {
	logger, err := buildLogger(f.logLevel)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	cfg, err := resolveConfig(cmd, f)
	if err != nil {
		return err
	}

	resolved, err := json.Marshal(cfg)
	if err != nil {
		return runerr.Config("E_CONFIG_ENCODE", "failed to encode resolved config", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcome, err := orchestrate.Run(ctx, orchestrate.Options{
		Config:       cfg,
		ConfigDigest: digest.Bytes(resolved),
		ToolVersion:  Version,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	*exitCode = outcome.ExitCode
	fmt.Printf("run %s complete: %s\n", outcome.RunID, outcome.RunDir)
	return nil
}

func buildLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, runerr.Config("E_CONFIG_LOG_LEVEL", fmt.Sprintf("unknown log level %q", level), nil)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
}

// resolveConfig loads the config file (or defaults) and overlays every
// flag the user explicitly set. Flag values never override file values
// unless the flag was present on the command line.
func resolveConfig(cmd *cobra.Command, f *flagSet) (*config.Config, error) {
	var cfg *config.Config
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
	}

	flags := cmd.Flags()
	changed := flags.Changed

	if changed("input") {
		cfg.Input = f.input
	}
	if changed("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if changed("cache-dir") {
		cfg.CacheDir = f.cacheDir
	}
	if changed("preset") {
		cfg.Bundle.Presets = f.presets
	}
	if changed("include") {
		cfg.Include = append(cfg.Include, f.include...)
	}
	if changed("ignore") {
		cfg.Ignore = append(cfg.Ignore, f.ignore...)
	}
	if changed("metrics") {
		cfg.MetricsFiles = append(cfg.MetricsFiles, f.metricsFiles...)
	}
	if changed("force-rebuild") {
		cfg.ForceRebuild = f.forceRebuild
	}
	if changed("no-incremental") {
		cfg.NoIncremental = f.noIncremental
	}
	if changed("allow-network") {
		cfg.AllowNetwork = f.allowNetwork
	}

	if changed("min-coverage") {
		v := f.minCoverage
		cfg.Thresholds.MinCoverage = &v
	}
	if changed("max-failed-tests") {
		v := f.maxFailedTests
		cfg.Thresholds.MaxFailedTests = &v
	}
	if changed("max-lint-warnings") {
		v := f.maxLintWarnings
		cfg.Thresholds.MaxLintWarnings = &v
	}
	if changed("max-critical-vulns") {
		v := f.maxCriticalVulns
		cfg.Thresholds.MaxCriticalVulns = &v
	}

	if changed("no-graph") {
		cfg.Graph.Enabled = !f.noGraph
	}
	if changed("graph-scope") {
		cfg.Graph.Scope = f.graphScope
	}
	if changed("graph-diff") && changed("no-graph-diff") {
		return nil, runerr.Config("E_CONFIG_FLAGS", "--graph-diff and --no-graph-diff are mutually exclusive", nil)
	}
	if changed("graph-diff") {
		cfg.Graph.Diff = f.graphDiff
	}
	if changed("no-graph-diff") {
		cfg.Graph.Diff = !f.noGraphDiff
	}

	if changed("no-diagrams") {
		cfg.Diagram.Enabled = !f.noDiagrams
	}
	if changed("diagram-preset") {
		cfg.Diagram.Presets = f.diagramPresets
	}
	if changed("diagram-format") {
		cfg.Diagram.Format = f.diagramFormat
	}
	if changed("diagram-theme") {
		cfg.Diagram.Theme = f.diagramTheme
	}
	if changed("diagram-concurrency") {
		cfg.Diagram.Concurrency = f.diagramConcurrency
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
