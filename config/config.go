package config // Pipeline configuration file

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"metabuddy/fba"
	"metabuddy/gapfill"
	"metabuddy/nutrients"
	"metabuddy/pipeline"
)

// EnvPrefix is the prefix of environment overrides, e.g. METABUDDY_ZERO_TOLERANCE.
const EnvPrefix = "METABUDDY_"

// Settings mirrors the recognised configuration keys.
type Settings struct {
	Organism      string        `koanf:"organism"`
	Label         string        `koanf:"label"`
	Essential     []string      `koanf:"essential"`
	ZeroTolerance float64       `koanf:"zero_tolerance"`
	OutputDir     string        `koanf:"output_dir"`
	Demands       []string      `koanf:"demands"`
	Gate          string        `koanf:"gate"`
	Policy        string        `koanf:"policy"`
	MinObjective  float64       `koanf:"min_objective"`
	Iterations    int           `koanf:"iterations"`
	SolverTimeout time.Duration `koanf:"solver_timeout"`
	Chart         bool          `koanf:"chart"`
	LedgerPath    string        `koanf:"ledger_path"`
	Workers       int           `koanf:"workers"`
	StrictTags    bool          `koanf:"strict_tags"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"essential":      nutrients.DefaultEssential,
		"zero_tolerance": fba.ZeroTolerance,
		"output_dir":     ".",
		"gate":           string(pipeline.GateObjectiveExists),
		"policy":         string(gapfill.PolicyFirst),
		"min_objective":  gapfill.DefaultOptions().MinObjective,
		"iterations":     1,
		"solver_timeout": "2m",
		"chart":          false,
		"workers":        1,
		"strict_tags":    false,
	}
}

// Load builds Settings from defaults, an optional TOML file and METABUDDY_ environment
// variables, later sources overriding earlier ones. A missing path skips the file.
func Load(path string) (*Settings, error) {
	var k = koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("error loading defaults: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	// Keys are flat, so METABUDDY_MIN_OBJECTIVE maps to min_objective.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment: %w", err)
	}

	var s Settings
	if err := k.Unmarshal("", &s); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	return &s, nil
}

// Validate checks the settings needed for a pipeline run.
func (s *Settings) Validate() error {
	if s.Organism == "" {
		return errors.New("config: organism is required")
	}
	if s.ZeroTolerance <= 0 {
		return fmt.Errorf("config: zero_tolerance must be positive, got %g", s.ZeroTolerance)
	}
	if s.MinObjective <= 0 {
		return fmt.Errorf("config: min_objective must be positive, got %g", s.MinObjective)
	}
	if s.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", s.Workers)
	}
	if _, err := pipeline.ParseGate(s.Gate); err != nil {
		return err
	}
	if _, err := gapfill.ParsePolicy(s.Policy); err != nil {
		return err
	}
	return nil
}

// Pipeline converts validated settings into a pipeline configuration.
func (s *Settings) Pipeline() (pipeline.Config, error) {
	if err := s.Validate(); err != nil {
		return pipeline.Config{}, err
	}
	gate, _ := pipeline.ParseGate(s.Gate)
	policy, _ := gapfill.ParsePolicy(s.Policy)
	return pipeline.Config{
		Organism:      s.Organism,
		Label:         s.Label,
		Essential:     s.Essential,
		ZeroTolerance: s.ZeroTolerance,
		OutputDir:     s.OutputDir,
		Demands:       s.Demands,
		Gate:          gate,
		Policy:        policy,
		GapFill: gapfill.Options{
			MinObjective: s.MinObjective,
			Iterations:   s.Iterations,
			Tolerance:    s.ZeroTolerance,
		},
		SolverTimeout: s.SolverTimeout,
		Chart:         s.Chart,
		Workers:       s.Workers,
		StrictTags:    s.StrictTags,
	}, nil
}

// Sample is written by `gap_fill -init_config`.
const Sample = `# metabuddy pipeline configuration
organism = "Clostridium_cellulolyticum_H10"
output_dir = "./fba_out"
essential = ["EX_glc__D_e", "EX_nh4_e", "EX_pi_e", "EX_so4_e", "EX_mg2_e", "EX_ca2_e", "EX_fe2_e"]
zero_tolerance = 1e-6
# "objective" gap-fills whenever a biomass reaction exists, "zero_flux" only when it carries no flux
gate = "objective"
# "first", "min-cardinality" or "min-flux"
policy = "first"
min_objective = 0.05
iterations = 1
solver_timeout = "2m"
chart = false
workers = 1
`

// InitConfig writes Sample to path unless a file is already there.
func InitConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists at %s", path)
	}
	return os.WriteFile(path, []byte(Sample), 0644)
}
