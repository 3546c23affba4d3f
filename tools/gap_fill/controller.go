package gap_fill

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"metabuddy/config"
	"metabuddy/metnet"
	"metabuddy/pipeline"
	"metabuddy/report"
	common "metabuddy/utils"
)

// Run executes the full species pipeline: extract, check nutrients, set the biomass
// objective, solve, report dead reactions, gap-fill, re-solve and write the results.
func Run(args []string) {
	fs := flag.NewFlagSet("gap_fill", flag.ExitOnError) // Isolated flag set specifically for "gap_fill" subcommand

	configFile := fs.String("config", "", "TOML configuration file (flags override it)")
	initConfig := fs.String("init_config", "", "Write a sample configuration to this path and exit")
	inFile := fs.String("in_file", "", "Community model (.json or .yaml, optionally gzipped)")
	organism := fs.String("organism", "", "Organism identifier; comma separated for a batch run")
	label := fs.String("label", "", "Prefix for output files (single organism only)")
	outDir := fs.String("out_dir", "", "Output directory")
	tolerance := fs.Float64("tolerance", 0, "Zero-flux tolerance")
	gate := fs.String("gate", "", "Gap-fill gate: objective or zero_flux")
	policy := fs.String("policy", "", "Solution policy: first, min-cardinality or min-flux")
	iterations := fs.Int("iterations", 0, "Number of alternative gap-fill solutions to search")
	minObjective := fs.Float64("min_objective", 0, "Objective flux a gap-fill solution must reach")
	demands := fs.String("demands", "", "Comma separated probe reactions (default: exchanges)")
	chart := fs.Bool("chart", false, "Write flux charts next to the flux tables")
	ledger := fs.String("ledger", "", "SQLite run ledger path")
	history := fs.Bool("history", false, "Print the runs recorded in -ledger and exit")
	workers := fs.Int("workers", 0, "Concurrent organisms in a batch run")
	strict := fs.Bool("strict", false, "Only use explicit organism tags, no reaction id matching")
	logLevel := fs.String("log_level", "info", "Log level: debug, info, warn, error")

	err := fs.Parse(args) // Parse inputs
	if err != nil {
		fmt.Println("Error parsing flags:", err) // Check for outright input failures
		os.Exit(1)
	}

	if len(fs.Args()) > 0 { // If unparsed arguments remain:
		fmt.Printf("Unrecognized arguments: %v\n", fs.Args()) // Flag the error and report it
		fmt.Println("Use -h to view valid flags.")
		os.Exit(1)
	}
	common.SetupLogging(*logLevel)

	if *initConfig != "" {
		if err := config.InitConfig(*initConfig); err != nil {
			fmt.Fprintln(os.Stderr, "Failed to write configuration:", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote sample configuration: %s\n", *initConfig)
		return
	}

	settings, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	// Only flags given on the command line override the file.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "organism":
			settings.Organism = *organism
		case "label":
			settings.Label = *label
		case "out_dir":
			settings.OutputDir = *outDir
		case "tolerance":
			settings.ZeroTolerance = *tolerance
		case "gate":
			settings.Gate = *gate
		case "policy":
			settings.Policy = *policy
		case "iterations":
			settings.Iterations = *iterations
		case "min_objective":
			settings.MinObjective = *minObjective
		case "demands":
			settings.Demands = splitList(*demands)
		case "chart":
			settings.Chart = *chart
		case "ledger":
			settings.LedgerPath = *ledger
		case "workers":
			settings.Workers = *workers
		case "strict":
			settings.StrictTags = *strict
		}
	})

	ctx := context.Background()

	if *history {
		printHistory(ctx, settings.LedgerPath, settings.Organism)
		return
	}

	if *inFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -in_file is required")
		fs.Usage()
		os.Exit(1)
	}

	organisms := splitList(settings.Organism)
	if len(organisms) == 1 {
		settings.Organism = organisms[0]
	}
	cfg, err := settings.Pipeline()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Invalid configuration:", err)
		os.Exit(1)
	}

	community, err := metnet.Load(*inFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load model:", err)
		os.Exit(1)
	}

	if code := execute(ctx, cfg, settings.LedgerPath, community, organisms, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

// execute runs the pipeline and returns the process exit code: 1 for a failure to start
// or an aborted batch, 2 when the model was not repaired.
func execute(ctx context.Context, cfg pipeline.Config, ledgerPath string, community *metnet.Model, organisms []string, w io.Writer) int {
	var opts []pipeline.Option
	if ledgerPath != "" {
		l, err := report.OpenLedger(ledgerPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to open ledger:", err)
			return 1
		}
		defer l.Close()
		opts = append(opts, pipeline.WithLedger(l))
	}
	p := pipeline.New(cfg, opts...)

	if len(organisms) > 1 {
		outcomes, err := p.RunBatch(ctx, community, organisms)
		for _, out := range outcomes {
			if out != nil {
				printOutcome(w, out)
			}
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "Batch run failed:", err)
			return 1
		}
		return 0
	}

	out, err := p.Run(ctx, community)
	if out != nil {
		printOutcome(w, out)
	}
	if err != nil {
		// The exit code tells scripts the model was not repaired.
		return 2
	}
	return 0
}

func printOutcome(w io.Writer, out *pipeline.Outcome) {
	fmt.Fprintf(w, "%s: %s", out.Organism, out.State())
	if out.Err != nil {
		fmt.Fprintf(w, " (%v)", out.Err)
	}
	fmt.Fprintln(w)
	for _, f := range out.Files {
		fmt.Fprintf(w, "\t%s\n", f)
	}
}

func printHistory(ctx context.Context, path, organism string) {
	if path == "" {
		fmt.Fprintln(os.Stderr, "Error: -ledger is required with -history")
		os.Exit(1)
	}
	l, err := report.OpenLedger(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to open ledger:", err)
		os.Exit(1)
	}
	defer l.Close()
	entries, err := l.List(ctx, organism)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to read ledger:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%s\t%s\tadded=%d\t%s\n", e.StartedAt.Format("2006-01-02 15:04:05"),
			e.Organism, e.State, e.Objective, len(e.AddedReactions), e.Error)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
