package nutrient_check

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"metabuddy/metnet"
	"metabuddy/nutrients"
	common "metabuddy/utils"
)

func Run(args []string) {
	fs := flag.NewFlagSet("nutrient_check", flag.ExitOnError)
	inFile := fs.String("in_file", "", "Model file (.json or .yaml, optionally gzipped)")
	organism := fs.String("organism", "", "Extract this organism's sub-model before checking")
	list := fs.String("nutrients", "", "Comma separated exchange ids (default: the essential set)")
	strict := fs.Bool("strict", false, "Only use explicit organism tags, no reaction id matching")
	logLevel := fs.String("log_level", "warn", "Log level: debug, info, warn, error")
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

	ids := nutrients.DefaultEssential
	if *list != "" {
		ids = splitList(*list)
	}
	rep := nutrients.Check(model, ids)
	rep.Log()
	if err := rep.WriteTable(os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to write report:", err)
		os.Exit(1)
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
