package note

import (
	"regexp"
	"sort"
	"strings"
)

var hashtagRe = regexp.MustCompile(`#([a-zA-Z0-9_]{1,32})`)

// MaxTagsPerNote bounds how many tags one note contributes to counts and to
// the postgres tags column.
const MaxTagsPerNote = 20

// ExtractTags returns up to limit distinct lower-cased hashtags in content,
// in order of first appearance. limit <= 0 means no bound.
func ExtractTags(content string, limit int) []string {
	var out []string
	seen := map[string]bool{}
	for _, idx := range hashtagRe.FindAllStringSubmatchIndex(content, -1) {
		tag := strings.ToLower(content[idx[2]:idx[3]])
		if seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// countTags tallies hashtags across notes, most used first, ties by name.
func countTags(notes []Note, prefix string, limit int) []TagCount {
	prefix = strings.ToLower(strings.TrimSpace(prefix))

	counts := map[string]int64{}
	for _, n := range notes {
		for _, t := range ExtractTags(n.Content, MaxTagsPerNote) {
			if strings.HasPrefix(t, prefix) {
				counts[t]++
			}
		}
	}

	out := make([]TagCount, 0, len(counts))
	for t, c := range counts {
		out = append(out, TagCount{Tag: t, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
