// Package strings holds small list helpers shared by config parsing and error
// reporting.
package strings

import (
	"strings"
)

// DedupeAndTrim trims every element and drops empties and repeats, keeping
// first-seen order. A nil or empty input is returned as is.
func DedupeAndTrim(values []string) []string {
	return dedupe(values, strings.TrimSpace)
}

// DedupeTrimPrefix is DedupeAndTrim after removing prefix from each element.
// Peers repeat the same rejection with a transport prefix; this collapses them.
func DedupeTrimPrefix(values []string, prefix string) []string {
	return dedupe(values, func(s string) string {
		return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), prefix))
	})
}

// SplitList splits a separated list such as "a, b,,a" into its distinct,
// trimmed, non-empty elements. An all-empty input yields nil.
func SplitList(s, sep string) []string {
	out := DedupeAndTrim(strings.Split(s, sep))
	if len(out) == 0 {
		return nil
	}
	return out
}

func dedupe(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = normalize(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
