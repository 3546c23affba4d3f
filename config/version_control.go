package config

// Version system:
// vMAJOR.MINOR.PATCH

// Centralized version control
const (
	// Executible
	Main_version = "v0.3.0"

	// Modular tools
	Benchmark      = "v1.0.0"
	Sanity_check   = "v1.0.0"
	Extract        = "v0.2.0"
	Nutrient_check = "v0.2.0"
	FBA_Run        = "v0.3.0"
	Gap_Fill       = "v0.3.0" // Formerly part of FBA_Run
)
