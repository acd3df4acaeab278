// Package validate checks a loaded dataset against the repositories it
// references: every ground truth path must exist at the pinned commit,
// every range must fit the file, and named functions must actually be
// defined where the range says they are. Checks accumulate diagnostics
// per case instead of failing fast, so one pass reports everything.
package validate

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/locbench/locbench/internal/dataset"
)

// Diagnostic kinds. Errors make a case invalid; warnings do not.
const (
	KindMissingFile          = "missing_file"
	KindInvalidRange         = "invalid_range"
	KindFunctionNameMismatch = "function_name_mismatch"
	KindRangeNotContained    = "range_not_contained"
	KindSnapshotError        = "snapshot_error"
	KindWeakEvidence         = "weak_evidence"
)

type Diagnostic struct {
	Kind    string `json:"kind"`
	Section string `json:"section"`
	Message string `json:"message"`
}

type Result struct {
	CaseID   string       `json:"case_id"`
	Valid    bool         `json:"valid"`
	Errors   []Diagnostic `json:"errors,omitempty"`
	Warnings []Diagnostic `json:"warnings,omitempty"`
}

type Report struct {
	TotalCases    int      `json:"total_cases"`
	ValidCases    int      `json:"valid_cases"`
	InvalidCases  int      `json:"invalid_cases"`
	TotalErrors   int      `json:"total_errors"`
	TotalWarnings int      `json:"total_warnings"`
	Results       []Result `json:"results"`
}

// SnapshotProvider is the subset of the snapshot manager the validator
// needs: a checkout per (repo, commit) and a way to give it back.
type SnapshotProvider interface {
	Worktree(ctx context.Context, repo, commit string) (string, error)
	Release(path string)
}

type Validator struct {
	snapshots SnapshotProvider
	log       zerolog.Logger
}

func New(snapshots SnapshotProvider, log zerolog.Logger) *Validator {
	return &Validator{snapshots: snapshots, log: log}
}

// Validate checks every case and returns the accumulated report. It
// never mutates the dataset and never aborts on a bad case; a snapshot
// failure invalidates only the cases that needed that snapshot.
func (v *Validator) Validate(ctx context.Context, cases []dataset.Case) (*Report, error) {
	report := &Report{TotalCases: len(cases)}
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		result := v.validateCase(ctx, c)
		if result.Valid {
			report.ValidCases++
		} else {
			report.InvalidCases++
		}
		report.TotalErrors += len(result.Errors)
		report.TotalWarnings += len(result.Warnings)
		report.Results = append(report.Results, result)
		v.log.Debug().
			Str("case", c.ID).
			Bool("valid", result.Valid).
			Int("errors", len(result.Errors)).
			Int("warnings", len(result.Warnings)).
			Msg("validated case")
	}
	return report, nil
}

func (v *Validator) validateCase(ctx context.Context, c dataset.Case) Result {
	result := Result{CaseID: c.ID, Valid: true}
	fail := func(d Diagnostic) {
		result.Valid = false
		result.Errors = append(result.Errors, d)
	}
	warn := func(d Diagnostic) {
		result.Warnings = append(result.Warnings, d)
	}

	root, err := v.snapshots.Worktree(ctx, c.Repo, c.BaseCommit)
	if err != nil {
		fail(Diagnostic{
			Kind:    KindSnapshotError,
			Section: "hard_gt",
			Message: fmt.Sprintf("snapshot %s@%s: %v", c.Repo, c.BaseCommit, err),
		})
		return result
	}
	defer v.snapshots.Release(root)

	files := newFileCache(root)
	for i, item := range c.HardGT {
		section := fmt.Sprintf("hard_gt[%d]", i)
		for _, d := range v.checkItem(ctx, files, item, section) {
			fail(d)
		}
	}
	for i, item := range c.SoftContext {
		section := fmt.Sprintf("soft_context[%d]", i)
		gt := dataset.GroundTruthItem{Path: item.Path, Range: item.Range}
		// Soft context is unscored, so its problems are warnings.
		for _, d := range v.checkItem(ctx, files, gt, section) {
			warn(d)
		}
	}
	if d, ok := v.checkEvidence(c); ok {
		warn(d)
	}
	return result
}

// checkItem runs the per-item checks and returns every diagnostic they
// produce. Later checks that depend on an earlier one (ranges need the
// file, function match needs a valid range) are skipped once the
// prerequisite failed.
func (v *Validator) checkItem(ctx context.Context, files *fileCache, item dataset.GroundTruthItem, section string) []Diagnostic {
	var diags []Diagnostic

	content, err := files.read(item.Path)
	if err != nil {
		return append(diags, Diagnostic{
			Kind:    KindMissingFile,
			Section: section,
			Message: fmt.Sprintf("%s does not exist at base commit", item.Path),
		})
	}
	lineCount := countLines(content)

	rangeOK := true
	if !item.Range.Valid() {
		rangeOK = false
		diags = append(diags, Diagnostic{
			Kind:    KindInvalidRange,
			Section: section,
			Message: fmt.Sprintf("%s: range [%d,%d] is not a valid 1-based range", item.Path, item.Range[0], item.Range[1]),
		})
	} else if item.Range[1] > lineCount {
		rangeOK = false
		diags = append(diags, Diagnostic{
			Kind:    KindInvalidRange,
			Section: section,
			Message: fmt.Sprintf("%s: range [%d,%d] exceeds file length %d", item.Path, item.Range[0], item.Range[1], lineCount),
		})
	}

	for _, tr := range item.TargetRanges {
		if !tr.Valid() {
			diags = append(diags, Diagnostic{
				Kind:    KindInvalidRange,
				Section: section,
				Message: fmt.Sprintf("%s: target range [%d,%d] is not a valid 1-based range", item.Path, tr[0], tr[1]),
			})
			continue
		}
		if rangeOK && (tr[0] < item.Range[0] || tr[1] > item.Range[1]) {
			diags = append(diags, Diagnostic{
				Kind:    KindRangeNotContained,
				Section: section,
				Message: fmt.Sprintf("%s: target range [%d,%d] outside range [%d,%d]", item.Path, tr[0], tr[1], item.Range[0], item.Range[1]),
			})
		}
	}

	if item.Function != "" && rangeOK && strings.HasSuffix(item.Path, ".py") {
		if d, ok := v.checkFunction(ctx, files, item, section); ok {
			diags = append(diags, d)
		}
	}
	return diags
}

// checkFunction confirms a definition with the ground truth name exists
// in the file and overlaps the item's range. Files the parser cannot
// handle are left unverified rather than flagged.
func (v *Validator) checkFunction(ctx context.Context, files *fileCache, item dataset.GroundTruthItem, section string) (Diagnostic, bool) {
	scopes, err := files.scopes(ctx, item.Path)
	if err != nil || scopes == nil {
		return Diagnostic{}, false
	}

	found := false
	for _, scope := range scopes {
		if !matchesFunction(item.Function, scope) {
			continue
		}
		found = true
		if scope.StartLine <= item.Range[1] && scope.EndLine >= item.Range[0] {
			return Diagnostic{}, false
		}
	}
	if !found {
		return Diagnostic{
			Kind:    KindFunctionNameMismatch,
			Section: section,
			Message: fmt.Sprintf("%s: no definition named %q", item.Path, item.Function),
		}, true
	}
	return Diagnostic{
		Kind:    KindFunctionNameMismatch,
		Section: section,
		Message: fmt.Sprintf("%s: %q is defined but its span does not overlap range [%d,%d]", item.Path, item.Function, item.Range[0], item.Range[1]),
	}, true
}

// checkEvidence warns when nothing in the query hints at the ground
// truth location. A dataset entry like that is probably mislabeled, or
// the query is unsolvable without external context.
func (v *Validator) checkEvidence(c dataset.Case) (Diagnostic, bool) {
	query := strings.ToLower(c.Query)
	for _, item := range c.HardGT {
		for _, token := range evidenceTokens(item) {
			if strings.Contains(query, token) {
				return Diagnostic{}, false
			}
		}
	}
	return Diagnostic{
		Kind:    KindWeakEvidence,
		Section: "query",
		Message: "no ground truth path or function token appears in the query",
	}, true
}

// evidenceTokens extracts the searchable tokens of one item: path
// segments (with and without extension) and function name segments.
// Single-character tokens match almost anything and are skipped.
func evidenceTokens(item dataset.GroundTruthItem) []string {
	var tokens []string
	add := func(tok string) {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if len(tok) > 1 {
			tokens = append(tokens, tok)
		}
	}
	for _, seg := range strings.Split(filepath.ToSlash(item.Path), "/") {
		add(seg)
		if ext := filepath.Ext(seg); ext != "" {
			add(strings.TrimSuffix(seg, ext))
		}
	}
	for _, seg := range strings.Split(item.Function, ".") {
		add(seg)
	}
	add(item.Class)
	return tokens
}

// fileCache reads and parses each referenced file once per case.
type fileCache struct {
	root     string
	contents map[string][]byte
	parsed   map[string][]FunctionScope
}

func newFileCache(root string) *fileCache {
	return &fileCache{
		root:     root,
		contents: make(map[string][]byte),
		parsed:   make(map[string][]FunctionScope),
	}
}

func (fc *fileCache) read(path string) ([]byte, error) {
	if content, ok := fc.contents[path]; ok {
		if content == nil {
			return nil, os.ErrNotExist
		}
		return content, nil
	}
	content, err := os.ReadFile(filepath.Join(fc.root, filepath.FromSlash(path)))
	if err != nil {
		fc.contents[path] = nil
		return nil, err
	}
	fc.contents[path] = content
	return content, nil
}

func (fc *fileCache) scopes(ctx context.Context, path string) ([]FunctionScope, error) {
	if scopes, ok := fc.parsed[path]; ok {
		return scopes, nil
	}
	content, err := fc.read(path)
	if err != nil {
		return nil, err
	}
	scopes := functionScopes(ctx, content)
	fc.parsed[path] = scopes
	return scopes, nil
}

func countLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}
	n := bytes.Count(content, []byte{'\n'})
	if content[len(content)-1] != '\n' {
		n++
	}
	return n
}
