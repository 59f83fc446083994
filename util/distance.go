// Package util contains the edit-distance helper used for barcode
// matching.
package util

// maxSlack bounds how many extra read bases a prefix match may consume
// beyond the pattern length. Indels in a barcode shift the downstream
// bases by at most a few positions; anything larger is not a plausible
// barcode read-out.
const maxSlack = 4

// PrefixDistance returns the minimum Levenshtein distance between pattern
// and any prefix of s, together with the length of the matched prefix.
// Because a fixed number of bases is sequenced, a deletion inside a barcode
// causes downstream bases to be read in its place; scoring against every
// prefix rather than against the fixed-length window accounts for that.
//
// Among prefixes with the minimal distance, the one whose length is closest
// to len(pattern) is chosen; on a further tie the shorter prefix wins, so
// the result is deterministic.
func PrefixDistance(pattern, s string) (dist, prefixLen int) {
	if len(pattern) == 0 {
		return 0, 0
	}
	cols := len(pattern) + maxSlack
	if cols > len(s) {
		cols = len(s)
	}

	// prev[j] holds the edit distance between pattern[:i] and s[:j].
	prev := make([]int, cols+1)
	cur := make([]int, cols+1)
	for j := 0; j <= cols; j++ {
		prev[j] = j
	}
	for i := 1; i <= len(pattern); i++ {
		cur[0] = i
		for j := 1; j <= cols; j++ {
			sub := prev[j-1]
			if pattern[i-1] != s[j-1] {
				sub++
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			min := sub
			if del < min {
				min = del
			}
			if ins < min {
				min = ins
			}
			cur[j] = min
		}
		prev, cur = cur, prev
	}

	dist = prev[0]
	prefixLen = 0
	for j := 1; j <= cols; j++ {
		if prev[j] < dist || (prev[j] == dist && closer(j, prefixLen, len(pattern))) {
			dist = prev[j]
			prefixLen = j
		}
	}
	return dist, prefixLen
}

// closer reports whether a is a better prefix length than b for a pattern
// of length n: strictly nearer to n, or equally near but shorter.
func closer(a, b, n int) bool {
	da, db := abs(a-n), abs(b-n)
	if da != db {
		return da < db
	}
	return a < b
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
