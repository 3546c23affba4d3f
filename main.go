package main

import (
	"fmt"
	"os"
	"strings"

	"metabuddy/benchmark"
	version_control "metabuddy/config"
	"metabuddy/tools/extract_species"
	"metabuddy/tools/fba_run"
	"metabuddy/tools/gap_fill"
	"metabuddy/tools/nutrient_check"
	"metabuddy/tools/sanity_check"
)

// printCustomHelp formats a custom help menu
func printCustomHelp() {
	fmt.Println(`MetaBuddy - Custom Help Menu
Usage:
  metabuddy <tool> [options]

Tools:
  extract_species	Extract one organism's sub-model from a community model
  nutrient_check	Report bounds of essential nutrient exchanges
  fba_run		Set the biomass objective, solve and list dead reactions
  gap_fill		Full pipeline: solve, gap-fill, re-solve and persist
  check			Run diagnostic test on a toy network

Global Flags:
  -h, -help		Show this help message
  -v, -version		Show version information

Benchmarking:
  -benchmark		Must be used in association with a tool.
			Displays computational resource usage and
			pertinent operating system information
  `,
	)
	os.Exit(0)
}

func printVersion() {
	fmt.Println("MetaBuddy - Version Information Menu")
	fmt.Println("Central Executable:")
	fmt.Printf("\tMetaBuddy:\t\t%s\n", version_control.Main_version)
	fmt.Printf("\nModular tools:\n")
	fmt.Printf("\tSpecies Extractor:\t%s\n", version_control.Extract)
	fmt.Printf("\tNutrient Check:\t\t%s\n", version_control.Nutrient_check)
	fmt.Printf("\tFBA Run:\t\t%s\n", version_control.FBA_Run)
	fmt.Printf("\tGap Fill:\t\t%s\n", version_control.Gap_Fill)
	fmt.Printf("\tSanity Check:\t\t%s\n", version_control.Sanity_check)
	fmt.Printf("\tBenchmark:\t\t%s\n", version_control.Benchmark)

	fmt.Println("")

	os.Exit(0)
}

// Main controller
func main() {

	// If no arguments are given, show help
	if len(os.Args) < 2 {
		printCustomHelp()
	}

	// Scan for executible-specific help flags
	for _, arg := range os.Args[1:] {
		if len(os.Args) < 3 {
			if arg == "-h" || arg == "-help" {
				printCustomHelp()
			}
		}
	}

	// Version request
	for _, arg := range os.Args[1:] {
		if arg == "-v" || arg == "-version" {
			printVersion()
		}
	}

	toolName := os.Args[1]
	toolArgs := os.Args[2:]

	// Check for global -benchmark flag
	benchmarking := false
	var cleanedArgs []string
	for _, arg := range toolArgs {
		if arg == "-benchmark" {
			benchmarking = true
		} else {
			cleanedArgs = append(cleanedArgs, arg)
		}
	}

	// Tool execution wrapper
	run := func() {
		switch toolName {
		case "check", "sanity_check":
			sanity_check.Run(cleanedArgs)
		case "extract_species":
			extract_species.Run(cleanedArgs)
		case "nutrient_check":
			nutrient_check.Run(cleanedArgs)
		case "fba_run":
			fba_run.Run(cleanedArgs)
		case "gap_fill":
			gap_fill.Run(cleanedArgs)
		default:
			fmt.Printf("Unknown tool: %s\n", toolName)
			os.Exit(1)
		}
	}

	if benchmarking {
		label := fmt.Sprintf("metabuddy %s %s", toolName, strings.Join(cleanedArgs, " "))
		benchmark.Run(label, run)
	} else {
		run()
	}
}
