package report

import (
	"slices"
	"strings"
	"time"

	"github.com/masahif/sitediff/internal/crawler"
	"github.com/masahif/sitediff/internal/urlpath"
)

var quoteFolder = strings.NewReplacer(
	"'", `"`, "`", `"`,
	"«", `"`, "»", `"`,
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"‹", `"`, "›", `"`,
	"‚", `"`, "‘", `"`, "’", `"`, "‛", `"`,
)

// NormalizeQuotes folds every quotation mark variant to a plain double quote
func NormalizeQuotes(s string) string {
	return quoteFolder.Replace(s)
}

// Synthesize builds the report entry of path from its old and new records.
// Nil records compare as empty. consolidated is the set of consolidation
// targets; pass nil to leave consolidatedRedirect false.
func Synthesize(path string, oldRec, newRec *crawler.PageRecord, consolidated map[string]bool) *PageEntry {
	if oldRec == nil {
		oldRec = &crawler.PageRecord{}
	}
	if newRec == nil {
		newRec = &crawler.PageRecord{}
	}

	finalPath := finalPathOf(path, newRec.FinalPath)
	redirectToDifferent := newRec.RedirectedPermanently && !urlpath.IsTrivialSlashRedirect(path, finalPath)
	missing, extra := linkDiff(oldRec.Links, newRec.Links)

	return &PageEntry{
		Old: OldSide{
			Status:      oldRec.Status,
			Title:       oldRec.Title,
			H1:          oldRec.H1,
			Description: oldRec.Description,
			LinkCount:   len(oldRec.Links),
			Redirected:  oldRec.Redirected,
		},
		New: NewSide{
			Status:        newRec.Status,
			Title:         newRec.Title,
			H1:            newRec.H1,
			Description:   newRec.Description,
			LinkCount:     len(newRec.Links),
			FinalPath:     finalPath,
			Redirected:    newRec.Redirected,
			Redirected301: newRec.RedirectedPermanently,
		},
		Diff: Diff{
			TitleMatch:              NormalizeQuotes(oldRec.Title) == NormalizeQuotes(newRec.Title),
			H1Match:                 NormalizeQuotes(oldRec.H1) == NormalizeQuotes(newRec.H1),
			DescMatch:               NormalizeQuotes(oldRec.Description) == NormalizeQuotes(newRec.Description),
			RedirectToDifferentPath: redirectToDifferent,
			ConsolidatedRedirect:    redirectToDifferent && consolidated[finalPath],
			LinksMissingInNewCount:  len(missing),
			LinksExtraInNewCount:    len(extra),
			SampleMissingInNew:      sample(missing),
			SampleExtraInNew:        sample(extra),
		},
	}
}

// linkDiff returns old links absent from new and new links absent from old,
// each in its original order
func linkDiff(oldLinks, newLinks []string) (missing, extra []string) {
	oldSet := make(map[string]struct{}, len(oldLinks))
	for _, l := range oldLinks {
		oldSet[l] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newLinks))
	for _, l := range newLinks {
		newSet[l] = struct{}{}
	}

	missing = []string{}
	for _, l := range oldLinks {
		if _, ok := newSet[l]; !ok {
			missing = append(missing, l)
		}
	}
	extra = []string{}
	for _, l := range newLinks {
		if _, ok := oldSet[l]; !ok {
			extra = append(extra, l)
		}
	}
	return missing, extra
}

func sample(links []string) []string {
	if len(links) > SampleLimit {
		return links[:SampleLimit]
	}
	return links
}

// Build assembles the full report. paths are the old-site pages; they are
// sorted into the report.
func Build(meta Meta, paths []string, oldPages, newPages map[string]*crawler.PageRecord) *Report {
	sorted := slices.Clone(paths)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	if sorted == nil {
		sorted = []string{}
	}

	buckets := DetectConsolidation(sorted, newPages)
	targets := buckets.TargetSet()

	if meta.GeneratedAt.IsZero() {
		meta.GeneratedAt = time.Now().UTC()
	}
	meta.ConsolidatedTargets = buckets.Targets()
	meta.TopRedirectBuckets = buckets.Top(TopBucketsLimit)

	r := &Report{
		Meta:  meta,
		Paths: sorted,
		Pages: make(map[string]*PageEntry, len(sorted)),
	}
	for _, p := range sorted {
		r.Pages[p] = Synthesize(p, oldPages[p], newPages[p], targets)
	}
	return r
}
