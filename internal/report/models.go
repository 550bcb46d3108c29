// Package report builds the migration report: per-path comparison of the
// old and new page, redirect consolidation buckets and report metadata.
package report

import "time"

// TopBucketsLimit is the number of redirect buckets kept in the metadata
const TopBucketsLimit = 50

// SampleLimit caps the link samples stored per page
const SampleLimit = 100

// OldSide is the old-site half of a page entry
type OldSide struct {
	Status      int    `json:"status"`
	Title       string `json:"title"`
	H1          string `json:"h1"`
	Description string `json:"description"`
	LinkCount   int    `json:"linkCount"`
	Redirected  bool   `json:"redirected"`
}

// NewSide is the new-site half of a page entry
type NewSide struct {
	Status        int    `json:"status"`
	Title         string `json:"title"`
	H1            string `json:"h1"`
	Description   string `json:"description"`
	LinkCount     int    `json:"linkCount"`
	FinalPath     string `json:"finalPath"`
	Redirected    bool   `json:"redirected"`
	Redirected301 bool   `json:"redirected301"`
}

// Diff holds the comparison flags of a page entry
type Diff struct {
	TitleMatch              bool     `json:"titleMatch"`
	H1Match                 bool     `json:"h1Match"`
	DescMatch               bool     `json:"descMatch"`
	RedirectToDifferentPath bool     `json:"redirectToDifferentPath"`
	ConsolidatedRedirect    bool     `json:"consolidatedRedirect"`
	LinksMissingInNewCount  int      `json:"linksMissingInNewCount"`
	LinksExtraInNewCount    int      `json:"linksExtraInNewCount"`
	SampleMissingInNew      []string `json:"sampleMissingInNew"`
	SampleExtraInNew        []string `json:"sampleExtraInNew"`
}

// Visual is the screenshot comparison attached by the visual pass
type Visual struct {
	Screenshots    bool   `json:"screenshots"`
	MismatchPixels int    `json:"mismatchPixels"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Error          string `json:"error,omitempty"`
}

// PageEntry is the report record of one path
type PageEntry struct {
	Old    OldSide `json:"old"`
	New    NewSide `json:"new"`
	Diff   Diff    `json:"diff"`
	Visual *Visual `json:"visual,omitempty"`
}

// BucketEntry is one redirect target with the number of sources reaching it
type BucketEntry struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Meta describes the run that produced the report
type Meta struct {
	OldBase             string        `json:"oldBase"`
	NewBase             string        `json:"newBase"`
	GeneratedAt         time.Time     `json:"generatedAt"`
	ConsolidatedTargets []string      `json:"consolidatedTargets"`
	TopRedirectBuckets  []BucketEntry `json:"topRedirectBuckets"`
}

// Report is the full audit result
type Report struct {
	Meta  Meta                  `json:"meta"`
	Paths []string              `json:"paths"`
	Pages map[string]*PageEntry `json:"pages"`
}
