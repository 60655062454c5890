// Package report provides exporters for analysis results.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/0x6d61/necrosis/internal/api"
)

// Export is the result set of one analysis session.
type Export struct {
	SessionID string
	CreatedAt time.Time
	Results   []api.Result
}

// Reporter generates output in a specific format.
type Reporter interface {
	// Format returns the format name (e.g., "csv", "json").
	Format() string

	// Extension returns the file extension, without the dot.
	Extension() string

	// Generate writes the formatted results to w.
	Generate(ctx context.Context, exp *Export, w io.Writer) error
}

// Formats lists the supported format names.
var Formats = []string{"csv", "text", "json"}

// New creates a reporter by format name ("csv", "text" or "json").
// The format name is case-insensitive.
func New(format string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "csv":
		return &CSVReporter{}, nil
	case "text":
		return &TextReporter{}, nil
	case "json":
		return &JSONReporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %q", format)
	}
}

// baseName is the file stem shared by every format.
const baseName = "analysis_results"

// FileName returns the download name for an export: the session's local
// calendar date as a prefix when known, e.g. 2025-06-10_analysis_results.csv.
func FileName(exp *Export, r Reporter) string {
	name := baseName + "." + r.Extension()
	if exp == nil || exp.CreatedAt.IsZero() {
		return name
	}
	return exp.CreatedAt.Local().Format("2006-01-02") + "_" + name
}
