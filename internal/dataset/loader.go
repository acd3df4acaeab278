package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"

	"github.com/go-playground/validator/v10"
)

// ErrMalformedRecord marks a dataset line that decodes but is missing
// required fields. Load fails on the first such record; a dataset with
// malformed records is a setup error, not a per-case one.
var ErrMalformedRecord = errors.New("malformed dataset record")

// Options controls deterministic sampling of the loaded case list.
// Shuffle is applied to the full list with the given seed before Limit,
// so the same (seed, limit) pair always selects the same cases in the
// same order.
type Options struct {
	Limit   int
	Shuffle bool
	Seed    int64
}

const maxLineBytes = 4 * 1024 * 1024

var check = validator.New(validator.WithRequiredStructEnabled())

// CheckStructure verifies the required fields of a single case.
func CheckStructure(c *Case) error {
	if err := check.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return nil
}

// Load reads a JSONL dataset file into cases. Blank lines are skipped.
func Load(path string, opts Options) ([]Case, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()

	var cases []Case
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var c Case
		if err := json.Unmarshal(line, &c); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRecord, lineNum, err)
		}
		if err := check.Struct(&c); err != nil {
			return nil, fmt.Errorf("%w: line %d (%s): %v", ErrMalformedRecord, lineNum, c.ID, err)
		}
		cases = append(cases, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}

	return Sample(cases, opts), nil
}

// Sample applies deterministic shuffle and limit to a case list.
func Sample(cases []Case, opts Options) []Case {
	if opts.Shuffle {
		rng := rand.New(rand.NewSource(opts.Seed))
		rng.Shuffle(len(cases), func(i, j int) {
			cases[i], cases[j] = cases[j], cases[i]
		})
	}
	if opts.Limit > 0 && len(cases) > opts.Limit {
		cases = cases[:opts.Limit]
	}
	return cases
}

// Repos returns the distinct repo identifiers across cases, in first-seen
// order. Used to prewarm the snapshot cache before a run.
func Repos(cases []Case) []string {
	seen := make(map[string]bool)
	var repos []string
	for _, c := range cases {
		if !seen[c.Repo] {
			seen[c.Repo] = true
			repos = append(repos, c.Repo)
		}
	}
	return repos
}
