package verification

import "strings"

// Outcome is the two-case result of verifying pacts: success, or failure
// carrying the mismatches observed and a description of what went wrong.
// The zero value is a failure with no mismatches.
type Outcome struct {
	ok          bool
	mismatches  []Mismatch
	description string
}

// Success is the identity element for Merge.
func Success() Outcome {
	return Outcome{ok: true}
}

func NewFailure(description string, mismatches ...Mismatch) Outcome {
	return Outcome{mismatches: mismatches, description: description}
}

// Merge combines two outcomes. The operation is associative and Success is
// its identity: merging failures concatenates their mismatches in order and
// joins their descriptions.
func (o Outcome) Merge(other Outcome) Outcome {
	if o.ok {
		return other
	}
	if other.ok {
		return o
	}

	merged := make([]Mismatch, 0, len(o.mismatches)+len(other.mismatches))
	merged = append(merged, o.mismatches...)
	merged = append(merged, other.mismatches...)
	return Outcome{
		mismatches:  merged,
		description: combineDescriptions(o.description, other.description),
	}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool {
	return o.ok
}

func (o Outcome) Mismatches() []Mismatch {
	return o.mismatches
}

func (o Outcome) Description() string {
	return o.description
}

// combineDescriptions joins descriptions with a comma, dropping empty and
// already-present ones. Deduplication works on comma-separated parts rather
// than whole strings, which keeps the merge associative.
func combineDescriptions(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}

	parts := strings.Split(a, ", ")
	seen := make(map[string]bool, len(parts))
	for _, part := range parts {
		seen[part] = true
	}
	for _, part := range strings.Split(b, ", ") {
		if !seen[part] {
			seen[part] = true
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, ", ")
}
