package report

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/0x6d61/necrosis/internal/viewer"
)

// JSONReporter outputs structured JSON.
type JSONReporter struct {
	// Compact outputs single-line JSON when true (no indentation).
	Compact bool
}

// Format returns "json".
func (r *JSONReporter) Format() string { return "json" }

// Extension returns "json".
func (r *JSONReporter) Extension() string { return "json" }

type jsonOutput struct {
	SchemaVersion string       `json:"schema_version"`
	Tool          string       `json:"tool"`
	SessionID     string       `json:"session_id,omitempty"`
	CreatedAt     *time.Time   `json:"created_at,omitempty"`
	Results       []jsonResult `json:"results"`
	Summary       jsonSummary  `json:"summary"`
}

type jsonResult struct {
	Filename           string          `json:"filename"`
	LesionCount        int             `json:"lesion_count"`
	LesionSeverity     string          `json:"lesion_severity"`
	PercentageNecrosis float64         `json:"percentage_necrosis"`
	NecrosisTier       string          `json:"necrosis_tier"`
	ResultImage        string          `json:"result_image,omitempty"`
	NecrosisLesions    json.RawMessage `json:"necrosis_lesions,omitempty"`
}

type jsonSummary struct {
	Images       int     `json:"images"`
	TotalLesions int     `json:"total_lesions"`
	MeanNecrosis float64 `json:"mean_necrosis"`
}

// Generate writes the results as a JSON document to w.
func (r *JSONReporter) Generate(ctx context.Context, exp *Export, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if exp == nil {
		exp = &Export{}
	}

	out := jsonOutput{
		SchemaVersion: "1.0",
		Tool:          "necrosis",
		SessionID:     exp.SessionID,
		Results:       make([]jsonResult, 0, len(exp.Results)),
	}
	if !exp.CreatedAt.IsZero() {
		t := exp.CreatedAt
		out.CreatedAt = &t
	}

	var sum float64
	for _, res := range exp.Results {
		jr := jsonResult{
			Filename:           res.Filename,
			LesionCount:        res.LesionCount,
			LesionSeverity:     viewer.LesionSeverity(res.LesionCount).String(),
			PercentageNecrosis: res.PercentageNecrosis,
			NecrosisTier:       viewer.NecrosisTier(res.PercentageNecrosis).String(),
			ResultImage:        res.ResultImage,
		}
		if len(res.NecrosisLesions) > 0 && string(res.NecrosisLesions) != "null" {
			jr.NecrosisLesions = res.NecrosisLesions
		}
		out.Results = append(out.Results, jr)
		out.Summary.TotalLesions += res.LesionCount
		sum += res.PercentageNecrosis
	}
	out.Summary.Images = len(exp.Results)
	if len(exp.Results) > 0 {
		out.Summary.MeanNecrosis = sum / float64(len(exp.Results))
	}

	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(out)
}
