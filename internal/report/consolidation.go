package report

import (
	"sort"

	"github.com/masahif/sitediff/internal/crawler"
	"github.com/masahif/sitediff/internal/urlpath"
)

// Buckets counts, per final path, the source paths whose non-trivial 301
// redirect ends there
type Buckets map[string]int

// DetectConsolidation fills buckets from the new-site records of paths
func DetectConsolidation(paths []string, newPages map[string]*crawler.PageRecord) Buckets {
	buckets := make(Buckets)
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		record := newPages[p]
		if record == nil || !record.RedirectedPermanently {
			continue
		}
		if target := finalPathOf(p, record.FinalPath); !urlpath.IsTrivialSlashRedirect(p, target) {
			buckets[target]++
		}
	}
	return buckets
}

// Targets returns the sorted final paths reached from two or more sources
func (b Buckets) Targets() []string {
	targets := []string{}
	for path, count := range b {
		if count >= 2 {
			targets = append(targets, path)
		}
	}
	sort.Strings(targets)
	return targets
}

// TargetSet returns Targets as a set
func (b Buckets) TargetSet() map[string]bool {
	set := make(map[string]bool)
	for path, count := range b {
		if count >= 2 {
			set[path] = true
		}
	}
	return set
}

// Top returns the n largest buckets by count, ties broken by path
func (b Buckets) Top(n int) []BucketEntry {
	entries := make([]BucketEntry, 0, len(b))
	for path, count := range b {
		entries = append(entries, BucketEntry{Path: path, Count: count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Path < entries[j].Path
	})
	if n >= 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// BucketsFromReport rebuilds buckets from stored entries
func BucketsFromReport(r *Report) Buckets {
	buckets := make(Buckets)
	for _, p := range r.Paths {
		entry := r.Pages[p]
		if entry == nil || !entry.New.Redirected301 {
			continue
		}
		if target := finalPathOf(p, entry.New.FinalPath); !urlpath.IsTrivialSlashRedirect(p, target) {
			buckets[target]++
		}
	}
	return buckets
}

// RecomputeConsolidation recomputes buckets, consolidated targets and every
// entry's consolidatedRedirect flag from the stored entries
func RecomputeConsolidation(r *Report) {
	buckets := BucketsFromReport(r)
	targets := buckets.TargetSet()

	r.Meta.ConsolidatedTargets = buckets.Targets()
	r.Meta.TopRedirectBuckets = buckets.Top(TopBucketsLimit)

	for _, p := range r.Paths {
		entry := r.Pages[p]
		if entry == nil {
			continue
		}
		target := finalPathOf(p, entry.New.FinalPath)
		entry.Diff.ConsolidatedRedirect = entry.Diff.RedirectToDifferentPath && targets[target]
	}
}

func finalPathOf(path, finalPath string) string {
	if finalPath == "" {
		return path
	}
	return finalPath
}
