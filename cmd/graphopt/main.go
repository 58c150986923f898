package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ravi-parthasarathy/graphopt/pkg/config"
	"github.com/ravi-parthasarathy/graphopt/pkg/graph"
	"github.com/ravi-parthasarathy/graphopt/pkg/rewrite"
	"github.com/ravi-parthasarathy/graphopt/pkg/rewrite/passes"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globals holds the persistent flags and the configuration they produce.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        *config.Config
}

func rootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:   "graphopt",
		Short: "graphopt: pattern-based rewriting of dataflow graphs",
		Long: `graphopt reads dataflow graphs described in DOT and rewrites them with
pattern-matching passes such as per-consumer duplication of quantize nodes and
Identity insertion in front of partition outputs.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Default()
			if g.configPath != "" {
				var err error
				if cfg, err = config.Load(g.configPath); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = g.logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = g.logFormat
			}
			g.cfg = cfg
			return initLogger(cfg.Log.Level, cfg.Log.Format)
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "path to a YAML configuration file")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(runCmd(g))
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(passesCmd(g))
	return root
}

// initLogger installs the default slog logger on stderr.
func initLogger(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// ─── run ──────────────────────────────────────────────────────────────────────

func runCmd(g *globals) *cobra.Command {
	var (
		passNames  []string
		fixpoint   bool
		maxRounds  int
		jobs       int
		outDir     string
		reportPath string
	)

	cmd := &cobra.Command{
		Use:   "run <graph.dot>...",
		Short: "Optimize one or more graphs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := g.cfg
			flags := cmd.Flags()
			if flags.Changed("passes") {
				cfg.Passes = passNames
			}
			if flags.Changed("fixpoint") {
				cfg.FixedPoint = fixpoint
			}
			if flags.Changed("max-rounds") {
				cfg.MaxRounds = maxRounds
			}
			if flags.Changed("jobs") {
				cfg.Jobs = jobs
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := signalContext(cmd.Context())
			reports, err := optimizeFiles(ctx, cfg, args, outDir, cmd.OutOrStdout())
			if reportPath != "" {
				reports = slices.DeleteFunc(reports, func(r *rewrite.Report) bool { return r == nil })
				if saveErr := rewrite.SaveReports(reportPath, reports); saveErr != nil && err == nil {
					err = saveErr
				}
			}
			return err
		},
	}

	cmd.Flags().StringSliceVar(&passNames, "passes", nil, "comma separated pass names, in order (overrides config)")
	cmd.Flags().BoolVar(&fixpoint, "fixpoint", false, "repeat the passes until nothing changes")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", rewrite.DefaultMaxRounds, "maximum rounds with --fixpoint")
	cmd.Flags().IntVar(&jobs, "jobs", 4, "number of graphs optimized concurrently")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "directory for optimized graphs (required for several inputs)")
	cmd.Flags().StringVar(&reportPath, "report", "", "path to write the JSON run report (optional)")
	return cmd
}

// optimizeFiles runs the configured passes over every file, cfg.Jobs graphs at
// a time. Results are written only when every graph succeeded. The returned
// slice holds one report per file; entries for graphs that never ran are nil.
func optimizeFiles(ctx context.Context, cfg *config.Config, files []string, outDir string, stdout io.Writer) ([]*rewrite.Report, error) {
	if len(files) > 1 && outDir == "" {
		return nil, fmt.Errorf("--out-dir is required when optimizing %d graphs", len(files))
	}
	targets := make([]string, len(files))
	if outDir != "" {
		seen := map[string]string{}
		for i, f := range files {
			base := filepath.Base(f)
			if prev, ok := seen[base]; ok {
				return nil, fmt.Errorf("%s and %s would both be written to %s", prev, f, base)
			}
			seen[base] = f
			targets[i] = filepath.Join(outDir, base)
		}
	}

	opt, err := rewrite.NewOptimizer(passes.Builtin(cfg.PassOptions), cfg.Passes, rewrite.OptimizerOptions{
		FixedPoint: cfg.FixedPoint,
		MaxRounds:  cfg.MaxRounds,
	})
	if err != nil {
		return nil, err
	}

	reports := make([]*rewrite.Report, len(files))
	results := make([]string, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(cfg.Jobs)
	for i, path := range files {
		i, path := i, path
		eg.Go(func() error {
			gr, err := readGraph(path)
			if err != nil {
				return err
			}
			report, err := opt.Run(egCtx, gr)
			reports[i] = report
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = graph.FormatDOT(gr)
			slog.Debug("graph optimized", "file", path, "nodes_before", report.NodesBefore, "nodes_after", report.NodesAfter)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return reports, err
	}

	if outDir == "" {
		_, err := io.WriteString(stdout, results[0])
		return reports, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return reports, fmt.Errorf("create output directory: %w", err)
	}
	for i, target := range targets {
		if err := os.WriteFile(target, []byte(results[i]), 0o644); err != nil {
			return reports, fmt.Errorf("write %s: %w", target, err)
		}
	}
	return reports, nil
}

func readGraph(path string) (*graph.Graph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read graph file: %w", err)
	}
	g, err := graph.ParseDOT(string(src))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// ─── lint ─────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <graph.dot>...",
		Short: "Parse and resolve graphs without rewriting them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				g, err := readGraph(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %v\n", err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "OK: graph %q is valid (%d nodes, %d edges)\n",
					g.Name, g.NumNodes(), len(g.EdgeNames()))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d graphs failed", failed, len(args))
			}
			return nil
		},
	}
}

// ─── passes ───────────────────────────────────────────────────────────────────

func passesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "passes",
		Short: "List the built-in passes; configured ones are marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg := passes.Builtin(g.cfg.PassOptions)
			for _, name := range reg.Names() {
				mark := " "
				if slices.Contains(g.cfg.Passes, name) {
					mark = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mark, name)
			}
			return nil
		},
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[graphopt] interrupted, cancelling")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
