package dataset

// LineRange is an inclusive 1-based [start, end] pair. It marshals as a
// two-element JSON array, matching the on-disk dataset format.
type LineRange [2]int

func (r LineRange) Start() int { return r[0] }
func (r LineRange) End() int   { return r[1] }

// Valid reports whether the range is well-formed (1-based, start <= end).
func (r LineRange) Valid() bool {
	return r[0] >= 1 && r[1] >= r[0]
}

// Len returns the number of lines covered, or 0 for an invalid range.
func (r LineRange) Len() int {
	if !r.Valid() {
		return 0
	}
	return r[1] - r[0] + 1
}

// Contains reports whether other lies fully within r.
func (r LineRange) Contains(other LineRange) bool {
	return other[0] >= r[0] && other[1] <= r[1]
}

// GroundTruthItem is a single scored location: a file, an optional
// fully-qualified function name, and the line span the query resolves to.
type GroundTruthItem struct {
	Path         string      `json:"path" validate:"required"`
	Function     string      `json:"function,omitempty"`
	Range        LineRange   `json:"range"`
	TargetRanges []LineRange `json:"target_ranges,omitempty"`
	Class        string      `json:"class,omitempty"`
	Signature    string      `json:"signature,omitempty"`
}

// ContextItem is an auxiliary hint location. Context items are validated
// but never scored.
type ContextItem struct {
	Path           string    `json:"path" validate:"required"`
	Function       string    `json:"function,omitempty"`
	Range          LineRange `json:"range"`
	Signature      string    `json:"signature,omitempty"`
	RelevanceScore float64   `json:"relevance_score,omitempty"`
}

// Solvability records whether a query is considered answerable from its
// text alone, with supporting evidence terms.
type Solvability struct {
	Solvable     bool     `json:"solvable"`
	Confidence   float64  `json:"confidence"`
	Evidence     []string `json:"evidence,omitempty"`
	RejectReason string   `json:"reject_reason,omitempty"`
}

// Case is one evaluation unit. Cases are immutable after load.
type Case struct {
	ID          string            `json:"id" validate:"required"`
	Query       string            `json:"query" validate:"required"`
	Repo        string            `json:"repo" validate:"required"`
	BaseCommit  string            `json:"base_commit" validate:"required"`
	HardGT      []GroundTruthItem `json:"hard_gt" validate:"required,min=1,dive"`
	SoftContext []ContextItem     `json:"soft_context,omitempty"`
	Category    string            `json:"category,omitempty"`
	IssueURL    string            `json:"issue_url,omitempty"`
	PRURL       string            `json:"pr_url,omitempty"`
	Solvability *Solvability      `json:"solvability,omitempty"`
}

// GroundTruthFiles maps each ground truth file to its scored ranges,
// preferring target_ranges over the enclosing function range.
func (c *Case) GroundTruthFiles() map[string][]LineRange {
	files := make(map[string][]LineRange)
	for _, gt := range c.HardGT {
		ranges := gt.TargetRanges
		if len(ranges) == 0 {
			ranges = []LineRange{gt.Range}
		}
		files[gt.Path] = append(files[gt.Path], ranges...)
	}
	return files
}

// ContextFiles maps each ground truth file to the full function spans,
// used by the coverage-oriented context metrics.
func (c *Case) ContextFiles() map[string][]LineRange {
	files := make(map[string][]LineRange)
	for _, gt := range c.HardGT {
		files[gt.Path] = append(files[gt.Path], gt.Range)
	}
	return files
}

// FunctionTarget is a named function span used by the function hit rate.
type FunctionTarget struct {
	Path   string
	Name   string
	Ranges []LineRange
}

// FunctionTargets returns the function-bearing ground truth items. Cases
// may have none, in which case the function hit rate is undefined.
func (c *Case) FunctionTargets() []FunctionTarget {
	var targets []FunctionTarget
	for _, gt := range c.HardGT {
		if gt.Function == "" {
			continue
		}
		targets = append(targets, FunctionTarget{
			Path:   gt.Path,
			Name:   gt.Function,
			Ranges: []LineRange{gt.Range},
		})
	}
	return targets
}
