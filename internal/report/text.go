package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/0x6d61/necrosis/internal/viewer"
)

// TextReporter outputs a terminal table.
type TextReporter struct {
	// Colors enables ANSI colouring of severity cells.
	Colors bool
}

// Format returns "text".
func (r *TextReporter) Format() string { return "text" }

// Extension returns "txt".
func (r *TextReporter) Extension() string { return "txt" }

// Generate writes the results table to w.
func (r *TextReporter) Generate(ctx context.Context, exp *Export, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if exp == nil {
		exp = &Export{}
	}

	b := &strings.Builder{}
	if exp.SessionID != "" {
		fmt.Fprintf(b, "Session: %s\n", exp.SessionID)
	}
	if !exp.CreatedAt.IsZero() {
		fmt.Fprintf(b, "Created: %s\n", exp.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}

	if len(exp.Results) == 0 {
		fmt.Fprintln(b, "No results.")
		_, err := io.WriteString(w, b.String())
		return err
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Format.Footer = text.FormatDefault
	tw.AppendHeader(table.Row{"#", "Image", "Lesions", "Severity", "Necrosis", "Tier", "Image URL"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 7, WidthMax: 48},
	})

	for i, res := range exp.Results {
		lesion := viewer.LesionSeverity(res.LesionCount)
		tier := viewer.NecrosisTier(res.PercentageNecrosis)
		img := res.ResultImage
		if img == "" {
			img = "-"
		}
		tw.AppendRow(table.Row{
			i + 1,
			res.Filename,
			res.LesionCount,
			r.colour(lesion),
			FormatPercent(res.PercentageNecrosis),
			r.colour(tier),
			img,
		})
	}
	tw.AppendFooter(table.Row{"", fmt.Sprintf("%d images", len(exp.Results))})

	b.WriteString(tw.Render())
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func (r *TextReporter) colour(s viewer.Severity) string {
	if !r.Colors {
		return s.String()
	}
	switch s {
	case viewer.SeverityLow:
		return text.FgGreen.Sprint(s.String())
	case viewer.SeverityMedium:
		return text.FgYellow.Sprint(s.String())
	default:
		return text.FgRed.Sprint(s.String())
	}
}
