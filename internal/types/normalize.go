package types

import "strings"

// NormalizeStatus lowercases a status label and folds underscores to
// dashes, per the normalization discipline every component assumes has
// already been applied to its inputs.
func NormalizeStatus(status string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(status)), "_", "-")
}

// NormalizeTag lowercases a tag for comparison.
func NormalizeTag(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// NormalizeTags normalizes a whole tag slice, preserving order.
func NormalizeTags(tags []string) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = NormalizeTag(t)
	}
	return out
}

// HasAnyTag reports whether itemTags and candidates intersect, comparing
// normalized values.
func HasAnyTag(itemTags, candidates []string) bool {
	set := make(map[string]struct{}, len(itemTags))
	for _, t := range itemTags {
		set[NormalizeTag(t)] = struct{}{}
	}
	for _, c := range candidates {
		if _, ok := set[NormalizeTag(c)]; ok {
			return true
		}
	}
	return false
}
