package fba_run

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"metabuddy/fba"
	"metabuddy/metnet"
	"metabuddy/report"
	common "metabuddy/utils"
)

func Run(args []string) {
	fs := flag.NewFlagSet("fba_run", flag.ExitOnError) // Isolated flag set specifically for "fba_run" subcommand

	inFile := fs.String("in_file", "", "Model file (.json or .yaml, optionally gzipped)")
	organism := fs.String("organism", "", "Extract this organism's sub-model before solving")
	objective := fs.String("objective", "", "Objective reaction id (default: detect biomass)")
	outFile := fs.String("out_file", "", "Prefix for the flux table (<prefix>.csv)")
	tolerance := fs.Float64("tolerance", fba.ZeroTolerance, "Flux magnitude below which a reaction counts as dead")
	timeout := fs.Duration("timeout", 2*time.Minute, "Upper bound on the solver run")
	chart := fs.Bool("chart", false, "Also write a bar chart of the largest fluxes (<prefix>_flux.svg)")
	showDead := fs.Bool("dead", false, "Print reactions carrying no flux")
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

	if *inFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -in_file is required")
		fs.Usage()
		os.Exit(1)
	}
	if *tolerance <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -tolerance must be positive")
		os.Exit(1)
	}

	model, err := metnet.Load(*inFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load model:", err)
		os.Exit(1)
	}
	if *organism != "" {
		model, err = metnet.Extract(model, *organism, metnet.ExtractOptions{Strict: *strict})
		if err != nil {
			fmt.Fprintln(os.Stderr, "Failed to extract sub-model:", err)
			os.Exit(1)
		}
	}

	ctx := context.Background()
	solver := fba.NewSimplexSolver(fba.SolverOptions{Timeout: *timeout})

	var sol *fba.Solution
	obj := *objective
	if obj == "" {
		obj, sol, err = fba.SetObjective(ctx, solver, model)
	} else {
		sol, err = solver.Solve(ctx, fba.Problem{Model: model, Objective: obj, Sense: fba.Maximize})
		if errors.Is(err, fba.ErrInfeasible) {
			sol, err = fba.Infeasible(obj), nil
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Flux balance analysis failed:", err)
		os.Exit(1)
	}

	sum := fba.Summarize(model, sol, *tolerance)
	fmt.Printf("Objective:\t\t%s\n", obj)
	if sum.Infeasible {
		fmt.Println("Status:\t\t\tinfeasible")
	} else {
		fmt.Printf("Objective value:\t%g\n", sum.Objective)
		fmt.Printf("Active reactions:\t%d\n", sum.Active)
		fmt.Printf("Dead reactions:\t\t%d\n", sum.Dead)
		fmt.Printf("Mean |flux|:\t\t%.4f (sd %.4f)\n", sum.MeanAbs, sum.StdDevAbs)
		fmt.Printf("Max |flux|:\t\t%.4f (%s)\n", sum.MaxAbs, sum.MaxAbsRxn)
	}

	if *showDead {
		fmt.Println("Identifying infeasible reactions:")
		for _, r := range fba.DeadReactions(model, sol, *tolerance) {
			fmt.Printf("%s: %s\n", r.ID, r.Name)
		}
	}

	if *outFile != "" {
		rows := report.FluxRows(model, sol, nil)
		if err := report.WriteFluxTable(*outFile+".csv", rows); err != nil {
			fmt.Println("Failed to write CSV:", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote flux distribution to CSV file: %s.csv\n", *outFile)

		if *chart {
			if err := report.WriteFluxChart(*outFile+"_flux.svg", obj+" flux distribution", rows, 0); err != nil {
				fmt.Println("Failed to generate flux chart:", err)
			} else {
				fmt.Printf("Wrote flux chart: %s_flux.svg\n", *outFile)
			}
		}
	}
}
