// Package visual compares screenshots of every report path on the old and
// new site and attaches the pixel mismatch to the stored report.
package visual

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/masahif/sitediff/internal/config"
	"github.com/masahif/sitediff/internal/report"
	"github.com/masahif/sitediff/internal/storage"
	"github.com/masahif/sitediff/internal/urlpath"
)

var unsafeRun = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// SafeName turns a path into a directory name
func SafeName(path string) string {
	if path == "/" {
		return "root"
	}
	name := strings.Trim(unsafeRun.ReplaceAllString(path, "_"), "_")
	if name == "" {
		return "root"
	}
	return name
}

// Pass runs the screenshot comparison over a stored report
type Pass struct {
	shooter   Shooter
	store     storage.ReportStore
	dir       string
	threshold float64
}

// NewPass creates a pass writing screenshots below cfg.Dir
func NewPass(shooter Shooter, store storage.ReportStore, cfg config.VisualConfig) *Pass {
	return &Pass{
		shooter:   shooter,
		store:     store,
		dir:       cfg.Dir,
		threshold: cfg.Threshold,
	}
}

// Run compares every path of the stored report and merges the visual
// results into the report stored at the end of the pass, so entries
// refreshed meanwhile keep their new content. On cancellation the results
// so far are saved and ctx.Err() is returned. progress may be nil.
func (p *Pass) Run(ctx context.Context, progress func(done, total int)) (*report.Report, error) {
	snapshot, err := p.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	oldBase, err := url.Parse(snapshot.Meta.OldBase)
	if err != nil {
		return nil, fmt.Errorf("invalid old base %q: %w", snapshot.Meta.OldBase, err)
	}
	newBase, err := url.Parse(snapshot.Meta.NewBase)
	if err != nil {
		return nil, fmt.Errorf("invalid new base %q: %w", snapshot.Meta.NewBase, err)
	}

	slog.Info("Starting visual comparison", "paths", len(snapshot.Paths), "dir", p.dir)

	var runErr error
	compared := 0
	results := make(map[string]*report.Visual, len(snapshot.Paths))
	for i, path := range snapshot.Paths {
		if runErr = ctx.Err(); runErr != nil {
			break
		}

		results[path] = p.ComparePath(ctx, oldBase, newBase, path)
		if results[path].Screenshots {
			compared++
		}

		if progress != nil {
			progress(i+1, len(snapshot.Paths))
		}
	}

	var rep *report.Report
	// a cancelled update would discard every result collected so far
	err = p.store.Update(context.WithoutCancel(ctx), func(current *report.Report) error {
		for path, v := range results {
			entry := current.Pages[path]
			if entry == nil {
				if !slices.Contains(current.Paths, path) {
					continue
				}
				entry = &report.PageEntry{}
				current.Pages[path] = entry
			}
			entry.Visual = v
		}
		rep = current
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save report: %w", err)
	}

	slog.Info("Visual comparison finished", "compared", compared, "paths", len(rep.Paths))
	return rep, runErr
}

// ComparePath screenshots path on both sites and writes old.png, new.png
// and diff.png below the path's directory
func (p *Pass) ComparePath(ctx context.Context, oldBase, newBase *url.URL, path string) *report.Visual {
	oldURL := urlpath.Resolve(oldBase, path).String()
	newURL := urlpath.Resolve(newBase, path).String()

	visual, err := p.compare(ctx, oldURL, newURL, filepath.Join(p.dir, SafeName(path)))
	if err != nil {
		slog.Warn("Visual comparison failed", "path", path, "error", err)
		return &report.Visual{Screenshots: false, Error: err.Error()}
	}
	slog.Debug("Compared screenshots", "path", path, "mismatch", visual.MismatchPixels)
	return visual
}

func (p *Pass) compare(ctx context.Context, oldURL, newURL, dir string) (*report.Visual, error) {
	oldPNG, err := p.shooter.Screenshot(ctx, oldURL)
	if err != nil {
		return nil, fmt.Errorf("old screenshot: %w", err)
	}
	newPNG, err := p.shooter.Screenshot(ctx, newURL)
	if err != nil {
		return nil, fmt.Errorf("new screenshot: %w", err)
	}

	oldImg, err := png.Decode(bytes.NewReader(oldPNG))
	if err != nil {
		return nil, fmt.Errorf("decode old screenshot: %w", err)
	}
	newImg, err := png.Decode(bytes.NewReader(newPNG))
	if err != nil {
		return nil, fmt.Errorf("decode new screenshot: %w", err)
	}

	result, err := Compare(oldImg, newImg, p.threshold)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot directory: %w", err)
	}
	images := []struct {
		name string
		img  image.Image
	}{
		{"old.png", crop(oldImg, result.Width, result.Height)},
		{"new.png", crop(newImg, result.Width, result.Height)},
		{"diff.png", result.Diff},
	}
	for _, im := range images {
		if err := writePNG(filepath.Join(dir, im.name), im.img); err != nil {
			return nil, err
		}
	}

	return &report.Visual{
		Screenshots:    true,
		MismatchPixels: result.Mismatch,
		Width:          result.Width,
		Height:         result.Height,
	}, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
