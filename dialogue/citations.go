package dialogue

import (
	"regexp"
	"strconv"
)

var bracketRef = regexp.MustCompile(`\[(\d+)\]`)

// citedRefs extracts the distinct bracketed [i] references from an
// answer, in order of first appearance. References resolve positionally
// against the retrieval-order citations list.
func citedRefs(answer string) []int {
	var out []int
	seen := map[int]bool{}
	for _, m := range bracketRef.FindAllStringSubmatch(answer, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// danglingRefs returns cited indexes with no backing citation, for
// diagnostics.
func danglingRefs(answer string, citations []string) []int {
	var out []int
	for _, n := range citedRefs(answer) {
		if n > len(citations) {
			out = append(out, n)
		}
	}
	return out
}
