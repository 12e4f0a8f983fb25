// Package cluster groups items that likely cover the same story using
// URL-equality, URL-path similarity, and title token overlap. Membership is
// computed on demand; only the group id is persisted on items.
package cluster

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Options tunes the pairwise grouping rule. Thresholds are heuristics, not
// load-bearing constants; adjust per corpus.
type Options struct {
	TitleThreshold     float64 // Minimum title similarity (default 0.7)
	URLThreshold       float64 // Minimum URL similarity (default 0.8)
	RequireBothSimilar bool    // Require both signals instead of either
}

// DefaultOptions returns the default grouping thresholds.
func DefaultOptions() Options {
	return Options{TitleThreshold: 0.7, URLThreshold: 0.8}
}

// Candidate is the minimal item view the clusterer needs.
type Candidate struct {
	ID             string
	CleanURL       string
	Title          string
	Score          float64 // Personalization/ranking score for best-item selection
	KnownDuplicate bool    // Pre-resolved duplicates are excluded from comparison
}

// Group is one computed cluster of two or more candidates.
type Group struct {
	ID      string   // Synthetic group id to stamp on members
	Members []string // Candidate IDs in first-seen order
	BestID  string   // Highest-scoring member, first-seen tie-break
}

// Cluster partitions candidates into groups and singletons in a single
// pass: each unprocessed candidate is compared against all later unprocessed
// ones. Only groups with two or more members are returned; everything else
// is a singleton and keeps no group id.
func Cluster(candidates []Candidate, opts Options) []Group {
	if opts.TitleThreshold <= 0 {
		opts.TitleThreshold = 0.7
	}
	if opts.URLThreshold <= 0 {
		opts.URLThreshold = 0.8
	}

	var groups []Group
	processed := make(map[int]bool, len(candidates))

	for i, anchor := range candidates {
		if processed[i] || anchor.KnownDuplicate {
			continue
		}

		members := []Candidate{anchor}
		memberIdx := []int{i}
		for j := i + 1; j < len(candidates); j++ {
			if processed[j] || candidates[j].KnownDuplicate {
				continue
			}
			if SameStory(anchor, candidates[j], opts) {
				members = append(members, candidates[j])
				memberIdx = append(memberIdx, j)
			}
		}

		if len(members) < 2 {
			continue
		}
		for _, idx := range memberIdx {
			processed[idx] = true
		}

		group := Group{ID: uuid.NewString()}
		best := members[0]
		for _, m := range members {
			group.Members = append(group.Members, m.ID)
			if m.Score > best.Score {
				best = m
			}
		}
		group.BestID = best.ID
		groups = append(groups, group)
	}

	return groups
}

// SameStory is the symmetric pairwise test. Exact clean-url equality always
// groups, regardless of title divergence; otherwise the title and URL
// similarity signals are combined per opts.
func SameStory(a, b Candidate, opts Options) bool {
	if a.CleanURL != "" && a.CleanURL == b.CleanURL {
		return true
	}

	titleSim := TitleSimilarity(a.Title, b.Title)
	urlSim := URLSimilarity(a.CleanURL, b.CleanURL)

	if opts.RequireBothSimilar {
		return titleSim >= opts.TitleThreshold && urlSim >= opts.URLThreshold
	}
	return titleSim >= opts.TitleThreshold || urlSim >= opts.URLThreshold
}

var titlePunctuation = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// TitleSimilarity scores two titles on [0,1]: 1.0 when the normalized forms
// are identical, length ratio when one contains the other, Jaccard overlap
// of words longer than two characters otherwise.
func TitleSimilarity(a, b string) float64 {
	na, nb := normalizeTitle(a), normalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1.0
	}

	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		shorter, longer := len(na), len(nb)
		if shorter > longer {
			shorter, longer = longer, shorter
		}
		return float64(shorter) / float64(longer)
	}

	wordsA := significantWords(na)
	wordsB := significantWords(nb)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	return float64(intersection) / float64(union)
}

func normalizeTitle(title string) string {
	title = strings.ToLower(title)
	title = titlePunctuation.ReplaceAllString(title, " ")
	return strings.Join(strings.Fields(title), " ")
}

func significantWords(normalized string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(normalized) {
		if len(w) > 2 {
			words[w] = true
		}
	}
	return words
}

// URLSimilarity scores two URLs on [0,1]: 0 across different domains, 1.0
// for identical paths, otherwise the fraction of shared leading path
// segments over the longer path's segment count.
func URLSimilarity(a, b string) float64 {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil || ua.Host == "" || ub.Host == "" {
		return 0
	}
	if !strings.EqualFold(ua.Host, ub.Host) {
		return 0
	}

	pathA := strings.Trim(ua.Path, "/")
	pathB := strings.Trim(ub.Path, "/")
	if pathA == pathB {
		return 1.0
	}

	segsA := strings.Split(pathA, "/")
	segsB := strings.Split(pathB, "/")
	longer := len(segsA)
	if len(segsB) > longer {
		longer = len(segsB)
	}
	if longer == 0 {
		return 1.0
	}

	shared := 0
	for i := 0; i < len(segsA) && i < len(segsB); i++ {
		if segsA[i] == segsB[i] {
			shared++
		}
	}
	return float64(shared) / float64(longer)
}
