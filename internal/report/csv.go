package report

import (
	"context"
	"io"
	"strconv"
	"strings"
)

// csvHeader is written unquoted, as the web client did.
var csvHeader = []string{"Image Name", "Total Lesions", "Necrosis Percentage"}

// CSVReporter writes one row per result. Every data field is quoted and
// rows are CRLF separated, with no trailing line break.
type CSVReporter struct{}

// Format returns "csv".
func (r *CSVReporter) Format() string { return "csv" }

// Extension returns "csv".
func (r *CSVReporter) Extension() string { return "csv" }

// Generate writes the CSV document to w. An export without results writes
// nothing.
func (r *CSVReporter) Generate(ctx context.Context, exp *Export, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if exp == nil || len(exp.Results) == 0 {
		return nil
	}

	lines := make([]string, 0, len(exp.Results)+1)
	lines = append(lines, strings.Join(csvHeader, ","))
	for _, res := range exp.Results {
		fields := []string{
			res.Filename,
			strconv.Itoa(res.LesionCount),
			FormatPercent(res.PercentageNecrosis),
		}
		for i, f := range fields {
			fields[i] = quote(f)
		}
		lines = append(lines, strings.Join(fields, ","))
	}

	_, err := io.WriteString(w, strings.Join(lines, "\r\n"))
	return err
}

// FormatPercent renders a percentage with two decimals and a % sign.
func FormatPercent(p float64) string {
	return strconv.FormatFloat(p, 'f', 2, 64) + "%"
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
