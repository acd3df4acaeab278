// Package harness invokes the code-search tool under test. The engine
// never searches code itself; it hands a harness a query and a checkout
// and scores whatever comes back. Implementations are selected once at
// construction time from config.
package harness

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/locbench/locbench/internal/config"
	"github.com/locbench/locbench/internal/dataset"
)

// Request is one search invocation. RepoPath is a checkout of the
// case's repo at its base commit; Budget is the wall-clock time the
// harness should stay within (the runner enforces a separate outer
// timeout regardless).
type Request struct {
	Query       string        `json:"query"`
	RepoPath    string        `json:"repo_path"`
	MaxTurns    int           `json:"max_turns"`
	Temperature float64       `json:"temperature"`
	PromptFile  string        `json:"prompt_file,omitempty"`
	Budget      time.Duration `json:"-"`
}

// Response is the harness's answer: file paths mapped to 1-based
// inclusive line ranges. Partial marks an answer cut short by the
// budget; it is still scored.
type Response struct {
	Files       map[string][]dataset.LineRange `json:"files"`
	Explanation string                         `json:"explanation,omitempty"`
	Partial     bool                           `json:"partial,omitempty"`
	TurnsUsed   int                            `json:"turns_used,omitempty"`
}

// Harness runs one search request to completion. Any error is a
// case-level failure; the runner records it and moves on.
type Harness interface {
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// New builds the harness selected by cfg.Type.
func New(cfg config.Harness, log zerolog.Logger) (Harness, error) {
	switch cfg.Type {
	case "command":
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("harness command not configured")
		}
		return &CommandHarness{command: cfg.Command, log: log}, nil
	case "docker":
		if cfg.Image == "" {
			return nil, fmt.Errorf("harness image not configured")
		}
		return &DockerHarness{image: cfg.Image, command: cfg.Command, log: log}, nil
	case "openai":
		return NewOpenAIHarness(cfg, log)
	default:
		return nil, fmt.Errorf("unknown harness type %q", cfg.Type)
	}
}
