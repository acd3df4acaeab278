package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
)

// CommandHarness runs the search tool as a subprocess. The request is
// written to stdin as JSON and the response is read from stdout as
// JSON; the process runs with the repo checkout as its working
// directory. A non-zero exit is a harness error.
type CommandHarness struct {
	command []string
	log     zerolog.Logger
}

func (h *CommandHarness) Invoke(ctx context.Context, req *Request) (*Response, error) {
	input, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding harness request: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.command[0], h.command[1:]...)
	cmd.Dir = req.RepoPath
	cmd.Stdin = bytes.NewReader(input)
	cmd.Env = append(cmd.Environ(),
		"LOCBENCH_QUERY="+req.Query,
		"LOCBENCH_MAX_TURNS="+strconv.Itoa(req.MaxTurns),
		"LOCBENCH_TEMPERATURE="+strconv.FormatFloat(req.Temperature, 'f', -1, 64),
		"LOCBENCH_BUDGET_SECONDS="+strconv.Itoa(int(req.Budget.Seconds())),
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if stderr.Len() > 0 {
		h.log.Debug().Str("stderr", stderr.String()).Msg("harness stderr")
	}
	if err != nil {
		return nil, fmt.Errorf("running harness command: %w: %s", err, truncate(stderr.String(), 500))
	}

	var resp Response
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("decoding harness response: %w: %s", err, truncate(stdout.String(), 200))
	}
	return &resp, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
