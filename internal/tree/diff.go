package tree

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffCleanupThreshold is the minimum number of diffs before running the
// semantic cleanup pass. Below this count the raw diff is already readable.
const diffCleanupThreshold = 2

// DiffText renders a line-oriented textual diff between two subtrees,
// based on their Inspect listings. Used in divergence diagnostics; the
// result is for humans and log lines, never parsed back.
func DiffText(a, b Node) string {
	left := Inspect(a)
	right := Inspect(b)

	if left == right {
		return ""
	}

	dmp := diffmatchpatch.New()

	diffs := dmp.DiffMain(left, right, true)
	if len(diffs) > diffCleanupThreshold {
		diffs = dmp.DiffCleanupSemantic(diffs)
	}

	return dmp.DiffPrettyText(diffs)
}
