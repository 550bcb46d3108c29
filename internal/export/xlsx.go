// Package export writes the migration report as a spreadsheet.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/masahif/sitediff/internal/report"
)

// Sheet names
const (
	ReportSheet    = "Report"
	RedirectsSheet = "Redirects"
)

var reportHeader = []any{
	"Path",
	"Old status", "New status",
	"Old title", "New title", "Title match",
	"Old H1", "New H1", "H1 match",
	"Old description", "New description", "Description match",
	"Final path", "Redirected", "Redirected 301",
	"Redirect to different path", "Consolidated redirect",
	"Links missing in new", "Links extra in new",
	"Mismatch pixels",
}

var redirectsHeader = []any{"Target path", "Sources", "Consolidation target"}

// WriteXLSX writes r as a workbook with a Report and a Redirects sheet
func WriteXLSX(w io.Writer, r *report.Report) error {
	f, err := Workbook(r)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// SaveXLSX writes the workbook of r to path
func SaveXLSX(path string, r *report.Report) error {
	f, err := Workbook(r)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// Workbook builds the spreadsheet of r. The caller closes the file.
func Workbook(r *report.Report) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", ReportSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(RedirectsSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}

	if err := writeReportSheet(f, r); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeRedirectsSheet(f, r); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func writeReportSheet(f *excelize.File, r *report.Report) error {
	if err := writeHeader(f, ReportSheet, reportHeader); err != nil {
		return err
	}

	for i, p := range r.Paths {
		entry := r.Pages[p]
		if entry == nil {
			entry = &report.PageEntry{}
		}

		var mismatch any
		if entry.Visual != nil && entry.Visual.Screenshots {
			mismatch = entry.Visual.MismatchPixels
		}

		row := []any{
			p,
			entry.Old.Status, entry.New.Status,
			entry.Old.Title, entry.New.Title, entry.Diff.TitleMatch,
			entry.Old.H1, entry.New.H1, entry.Diff.H1Match,
			entry.Old.Description, entry.New.Description, entry.Diff.DescMatch,
			entry.New.FinalPath, entry.New.Redirected, entry.New.Redirected301,
			entry.Diff.RedirectToDifferentPath, entry.Diff.ConsolidatedRedirect,
			entry.Diff.LinksMissingInNewCount, entry.Diff.LinksExtraInNewCount,
			mismatch,
		}
		if err := setRow(f, ReportSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SetColWidth(ReportSheet, "A", "A", 40); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}
	return f.SetColWidth(ReportSheet, "D", "K", 30)
}

func writeRedirectsSheet(f *excelize.File, r *report.Report) error {
	if err := writeHeader(f, RedirectsSheet, redirectsHeader); err != nil {
		return err
	}

	targets := make(map[string]bool, len(r.Meta.ConsolidatedTargets))
	for _, t := range r.Meta.ConsolidatedTargets {
		targets[t] = true
	}

	for i, b := range r.Meta.TopRedirectBuckets {
		if err := setRow(f, RedirectsSheet, i+2, []any{b.Path, b.Count, targets[b.Path]}); err != nil {
			return err
		}
	}
	return f.SetColWidth(RedirectsSheet, "A", "A", 40)
}

func writeHeader(f *excelize.File, sheet string, header []any) error {
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}

	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}
