// Package config defines the run configuration object. It is built once
// at startup from an optional YAML file plus CLI flags and threaded
// explicitly into the runner, snapshot manager, and harness; nothing
// reads environment knobs deep in the call stack.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	CacheDir string `yaml:"cache_dir"`
	// PrewarmParallel bounds how many repos are cloned concurrently
	// before a run starts.
	PrewarmParallel int      `yaml:"prewarm_parallel"`
	ResultsDir      string   `yaml:"results_dir"`
	Harness         Harness  `yaml:"harness"`
	Retry           Retry    `yaml:"retry"`
	Eviction        Eviction `yaml:"eviction"`
	Run             Run      `yaml:"run"`
	Grid            Grid     `yaml:"grid"`
}

// Harness selects and parameterizes the search tool under test.
// Type is one of "command", "docker", or "openai".
type Harness struct {
	Type          string   `yaml:"type"`
	Command       []string `yaml:"command"`
	Image         string   `yaml:"image"`
	BaseURL       string   `yaml:"base_url"`
	Model         string   `yaml:"model"`
	APIKeyEnv     string   `yaml:"api_key_env"`
	BudgetSeconds int      `yaml:"budget_seconds"`
}

func (h Harness) Budget() time.Duration {
	return time.Duration(h.BudgetSeconds) * time.Second
}

type Retry struct {
	MaxAttempts int     `yaml:"max_attempts"`
	BaseDelayMS int     `yaml:"base_delay_ms"`
	MaxDelayMS  int     `yaml:"max_delay_ms"`
	Jitter      float64 `yaml:"jitter"`
}

type Eviction struct {
	MaxAgeDays int `yaml:"max_age_days"`
	MaxTotalMB int `yaml:"max_total_mb"`
}

type Run struct {
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	FailFast       int     `yaml:"fail_fast"`
	MaxTurns       int     `yaml:"max_turns"`
	Temperature    float64 `yaml:"temperature"`
	PromptFile     string  `yaml:"prompt_file"`
}

type Grid struct {
	Parallel int `yaml:"parallel"`
}

// Default is the configuration used when no config file exists.
func Default() *Config {
	return &Config{
		CacheDir:        ".locbench/cache",
		PrewarmParallel: 4,
		ResultsDir:      "results",
		Harness: Harness{
			Type:          "command",
			APIKeyEnv:     "OPENAI_API_KEY",
			BudgetSeconds: 240,
		},
		Retry: Retry{
			MaxAttempts: 3,
			BaseDelayMS: 500,
			MaxDelayMS:  10000,
			Jitter:      0.2,
		},
		Eviction: Eviction{
			MaxAgeDays: 14,
			MaxTotalMB: 20480,
		},
		Run: Run{
			TimeoutSeconds: 300,
			FailFast:       0,
			MaxTurns:       6,
			Temperature:    0.0,
		},
		Grid: Grid{
			Parallel: 1,
		},
	}
}

// Load reads path and overlays it onto the defaults. A missing file at
// the default path is not an error; an explicitly requested file must
// exist.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.Harness.Type {
	case "command":
		if len(cfg.Harness.Command) == 0 {
			return fmt.Errorf("harness: command is required for type %q", cfg.Harness.Type)
		}
	case "docker":
		if cfg.Harness.Image == "" {
			return fmt.Errorf("harness: image is required for type %q", cfg.Harness.Type)
		}
	case "openai":
		if cfg.Harness.Model == "" {
			return fmt.Errorf("harness: model is required for type %q", cfg.Harness.Type)
		}
	default:
		return fmt.Errorf("harness: unknown type %q", cfg.Harness.Type)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry: max_attempts must be at least 1")
	}
	if cfg.Run.TimeoutSeconds < 1 {
		return fmt.Errorf("run: timeout_seconds must be at least 1")
	}
	if cfg.Run.MaxTurns < 1 {
		return fmt.Errorf("run: max_turns must be at least 1")
	}
	if cfg.Run.Temperature < 0 || cfg.Run.Temperature > 2 {
		return fmt.Errorf("run: temperature must be within [0, 2]")
	}
	if cfg.Grid.Parallel < 1 {
		return fmt.Errorf("grid: parallel must be at least 1")
	}
	if cfg.PrewarmParallel < 1 {
		return fmt.Errorf("prewarm_parallel must be at least 1")
	}
	return nil
}
