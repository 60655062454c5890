package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/0x6d61/necrosis/internal/api"
)

func TestCSVReporter_Generate(t *testing.T) {
	exp := &Export{Results: []api.Result{
		{Filename: "leaf1.jpg", LesionCount: 3, PercentageNecrosis: 12.345},
		{Filename: `odd "name".png`, LesionCount: 12, PercentageNecrosis: 70},
	}}

	var buf bytes.Buffer
	if err := (&CSVReporter{}).Generate(context.Background(), exp, &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	want := "Image Name,Total Lesions,Necrosis Percentage\r\n" +
		`"leaf1.jpg","3","12.35%"` + "\r\n" +
		`"odd ""name"".png","12","70.00%"`
	if got := buf.String(); got != want {
		t.Errorf("csv =\n%q\nwant\n%q", got, want)
	}
}

func TestCSVReporter_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := (&CSVReporter{}).Generate(context.Background(), &Export{}, &buf); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("empty export wrote %q", buf.String())
	}
}

func TestCSVReporter_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	if err := (&CSVReporter{}).Generate(ctx, &Export{}, &buf); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestFormatPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0.00%"},
		{35.999, "36.00%"},
		{100, "100.00%"},
	}
	for _, tt := range tests {
		if got := FormatPercent(tt.in); got != tt.want {
			t.Errorf("FormatPercent(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
