// Package ids resolves abbreviated identifiers.
package ids

import "strings"

// NormalizeUnique lowercases ids and drops empty and duplicate entries,
// preserving first-seen order.
func NormalizeUnique(ids []string) []string {
	uniqueIDs := make([]string, 0, len(ids))
	seen := make(map[string]bool)
	for _, id := range ids {
		idLower := strings.ToLower(strings.TrimSpace(id))
		if idLower == "" || seen[idLower] {
			continue
		}
		seen[idLower] = true
		uniqueIDs = append(uniqueIDs, idLower)
	}
	return uniqueIDs
}

// MatchPrefix finds the single id starting with prefix, ignoring case. An
// exact match wins over longer ids sharing the prefix.
func MatchPrefix(ids []string, prefix string) (match string, found bool, ambiguous bool) {
	prefixLower := strings.ToLower(strings.TrimSpace(prefix))
	if prefixLower == "" {
		return "", false, false
	}
	for _, id := range ids {
		idLower := strings.ToLower(id)
		if idLower == prefixLower {
			return id, true, false
		}
		if !strings.HasPrefix(idLower, prefixLower) {
			continue
		}
		if found {
			ambiguous = true
			continue
		}
		match = id
		found = true
	}
	if ambiguous {
		return "", true, true
	}
	return match, found, false
}

// UniquePrefixLengths returns the shortest unique prefix length for each ID.
func UniquePrefixLengths(ids []string) map[string]int {
	uniqueIDs := NormalizeUnique(ids)

	lengths := make(map[string]int, len(uniqueIDs))
	for _, id := range uniqueIDs {
		lengths[id] = uniquePrefixLength(id, uniqueIDs)
	}

	return lengths
}

func uniquePrefixLength(id string, ids []string) int {
	for length := 1; length <= len(id); length++ {
		prefix := id[:length]
		unique := true
		for _, other := range ids {
			if other == id {
				continue
			}
			if strings.HasPrefix(other, prefix) {
				unique = false
				break
			}
		}
		if unique {
			return length
		}
	}

	return len(id)
}
