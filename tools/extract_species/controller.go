package extract_species

import (
	"flag"
	"fmt"
	"os"

	"metabuddy/metnet"
	common "metabuddy/utils"
)

func Run(args []string) {
	fs := flag.NewFlagSet("extract_species", flag.ExitOnError) // Isolated flag set specifically for "extract_species" subcommand

	inFile := fs.String("in_file", "", "Community model (.json or .yaml, optionally gzipped)")
	organism := fs.String("organism", "", "Organism identifier to extract")
	outFile := fs.String("out_file", "", "Output model file (.json or .yaml)")
	strict := fs.Bool("strict", false, "Only use explicit organism tags, no reaction id matching")
	list := fs.Bool("list", false, "List organism tags present in the model and exit")
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

	community, err := metnet.Load(*inFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load model:", err)
		os.Exit(1)
	}

	if *list {
		tags := metnet.Organisms(community)
		if len(tags) == 0 {
			fmt.Println("No explicit organism tags in the model.")
		}
		for _, t := range tags {
			fmt.Println(t)
		}
		return
	}

	if *organism == "" || *outFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -organism and -out_file are required")
		fs.Usage()
		os.Exit(1)
	}

	sub, err := metnet.Extract(community, *organism, metnet.ExtractOptions{Strict: *strict})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to extract sub-model:", err)
		os.Exit(1)
	}
	if err := metnet.Save(*outFile, sub, sub.Objective); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to write model:", err)
		os.Exit(1)
	}
	fmt.Printf("Extracted %d reactions and %d metabolites for %s into %s\n",
		sub.NumReactions(), sub.NumMetabolites(), *organism, *outFile)
}
