package viewer

import (
	"errors"
	"testing"

	"github.com/0x6d61/necrosis/internal/api"
)

func results(n int) []api.Result {
	out := make([]api.Result, n)
	for i := range out {
		out[i] = api.Result{Filename: string(rune('a' + i)), ResultImage: "http://x/" + string(rune('a'+i))}
	}
	return out
}

func TestLesionSeverity(t *testing.T) {
	tests := []struct {
		count int
		want  Severity
	}{
		{0, SeverityLow},
		{5, SeverityLow},
		{6, SeverityHigh},
		{40, SeverityHigh},
	}
	for _, tt := range tests {
		if got := LesionSeverity(tt.count); got != tt.want {
			t.Errorf("LesionSeverity(%d) = %v, want %v", tt.count, got, tt.want)
		}
	}
}

func TestNecrosisTier(t *testing.T) {
	tests := []struct {
		pct  float64
		want Severity
	}{
		{0, SeverityLow},
		{35.99, SeverityLow},
		{36, SeverityMedium},
		{64.99, SeverityMedium},
		{65, SeverityHigh},
		{100, SeverityHigh},
	}
	for _, tt := range tests {
		if got := NecrosisTier(tt.pct); got != tt.want {
			t.Errorf("NecrosisTier(%v) = %v, want %v", tt.pct, got, tt.want)
		}
	}
}

func TestPagerTotalPages(t *testing.T) {
	p := Pager{Size: 2}
	tests := []struct{ n, want int }{
		{0, 0}, {1, 1}, {2, 1}, {3, 2}, {4, 2}, {5, 3},
	}
	for _, tt := range tests {
		if got := p.TotalPages(tt.n); got != tt.want {
			t.Errorf("TotalPages(%d) = %d, want %d", tt.n, got, tt.want)
		}
	}
	if got := (Pager{}).TotalPages(3); got != 2 {
		t.Errorf("zero-size pager TotalPages(3) = %d, want 2", got)
	}
}

func TestPagerNavigationBoundaries(t *testing.T) {
	p := Pager{Size: 2}
	n := 5

	if p.HasPrev(0) {
		t.Error("HasPrev(0) = true")
	}
	if got := p.Prev(0, n); got != 0 {
		t.Errorf("Prev(0) = %d, want 0", got)
	}
	if !p.HasNext(1, n) {
		t.Error("HasNext(1) = false")
	}
	if p.HasNext(2, n) {
		t.Error("HasNext(last) = true")
	}
	if got := p.Next(2, n); got != 2 {
		t.Errorf("Next(last) = %d, want 2", got)
	}
	if got := p.Clamp(9, n); got != 2 {
		t.Errorf("Clamp(9) = %d, want 2", got)
	}
	if got := p.Clamp(3, 0); got != 0 {
		t.Errorf("Clamp with no results = %d, want 0", got)
	}
}

func TestPagerSlice(t *testing.T) {
	p := Pager{Size: 2}
	rs := results(5)

	if got := p.Slice(rs, 0); len(got) != 2 || got[0].Filename != "a" {
		t.Errorf("page 0 = %v", got)
	}
	if got := p.Slice(rs, 2); len(got) != 1 || got[0].Filename != "e" {
		t.Errorf("page 2 = %v", got)
	}
	if got := p.Slice(nil, 0); len(got) != 0 {
		t.Errorf("empty slice = %v", got)
	}
}

func TestZoomWraps(t *testing.T) {
	rs := results(3)
	var z Zoom
	if err := z.Open(rs, 2); err != nil {
		t.Fatalf("Open: %v", err)
	}
	z.Next(len(rs))
	if z.Index() != 0 {
		t.Errorf("Next from last = %d, want 0", z.Index())
	}
	z.Prev(len(rs))
	if z.Index() != 2 {
		t.Errorf("Prev from first = %d, want 2", z.Index())
	}
}

func TestZoomKeys(t *testing.T) {
	rs := results(3)
	var z Zoom
	if z.Key("right", 3) {
		t.Error("closed zoom handled a key")
	}
	if err := z.Open(rs, 0); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !z.Key("left", 3) || z.Index() != 2 {
		t.Errorf("left: index = %d, want 2", z.Index())
	}
	if !z.Key("right", 3) || z.Index() != 0 {
		t.Errorf("right: index = %d, want 0", z.Index())
	}
	if z.Key("space", 3) {
		t.Error("unknown key handled")
	}
	if !z.Key("esc", 3) || z.IsOpen() {
		t.Error("esc did not close zoom")
	}
}

func TestZoomRequiresImage(t *testing.T) {
	rs := []api.Result{{Filename: "purged.png"}}
	var z Zoom
	if err := z.Open(rs, 0); !errors.Is(err, ErrNoImage) {
		t.Errorf("Open err = %v, want ErrNoImage", err)
	}
	if z.IsOpen() {
		t.Error("zoom opened for image-less result")
	}
	if err := z.Open(rs, 4); err == nil {
		t.Error("Open out of range succeeded")
	}
}
