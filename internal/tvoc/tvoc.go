// Package tvoc detects Temporal Violation of Context: output text that
// mentions a year beyond the declared target with no post-target context
// available to explain it, per spec §4.10.
package tvoc

import "regexp"

// yearPattern matches 4-digit years from 1900 through 2099 at word
// boundaries.
var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// Verdict is the outcome of the TVOC check.
type Verdict string

const (
	Strong Verdict = "STRONG"
	None   Verdict = "NONE"
)

// Result is the detector's output shape, per spec §4.10.
type Result struct {
	Verdict        Verdict
	ViolatingYears []int
	TTarget        int
}

// ExtractYears returns every 4-digit year mentioned in text, in order of
// appearance, including duplicates.
func ExtractYears(text string) []int {
	matches := yearPattern.FindAllString(text, -1)
	years := make([]int, 0, len(matches))
	for _, m := range matches {
		year := 0
		for _, r := range m {
			year = year*10 + int(r-'0')
		}
		years = append(years, year)
	}
	return years
}

// Detect runs the strong-violation rule: a STRONG verdict requires at
// least one extracted year strictly greater than tTarget, and no
// post-target context present. The detector is purely functional — it
// consults neither the ledger nor any other persistent state.
func Detect(outputText string, tTarget int, contextHasPostTarget bool) Result {
	years := ExtractYears(outputText)

	var violating []int
	for _, y := range years {
		if y > tTarget {
			violating = append(violating, y)
		}
	}

	if len(violating) > 0 && !contextHasPostTarget {
		return Result{Verdict: Strong, ViolatingYears: violating, TTarget: tTarget}
	}
	return Result{Verdict: None, ViolatingYears: nil, TTarget: tTarget}
}
