// Package viewer derives everything the results view shows from the result
// list: page windows, severity tiers and the zoom overlay position.
package viewer

import (
	"errors"

	"github.com/0x6d61/necrosis/internal/api"
)

// DefaultPageSize is the number of result cards per page.
const DefaultPageSize = 2

// LowLesionMax is the largest lesion count rated low severity.
const LowLesionMax = 5

// Necrosis tier boundaries, in percent.
const (
	MediumNecrosisMin = 36.0
	HighNecrosisMin   = 65.0
)

// ErrNoImage is returned when zooming into a result without an image.
var ErrNoImage = errors.New("viewer: result has no image")

// Severity is a display tier.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	default:
		return "high"
	}
}

// LesionSeverity rates a lesion count: low up to LowLesionMax, high above.
func LesionSeverity(count int) Severity {
	if count <= LowLesionMax {
		return SeverityLow
	}
	return SeverityHigh
}

// NecrosisTier rates a necrosis percentage.
func NecrosisTier(pct float64) Severity {
	switch {
	case pct >= HighNecrosisMin:
		return SeverityHigh
	case pct >= MediumNecrosisMin:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Pager windows a result list into fixed-size pages.
type Pager struct {
	Size int
}

func (p Pager) size() int {
	if p.Size <= 0 {
		return DefaultPageSize
	}
	return p.Size
}

// TotalPages returns ceil(n/size), and 0 for n == 0.
func (p Pager) TotalPages(n int) int {
	if n <= 0 {
		return 0
	}
	s := p.size()
	return (n + s - 1) / s
}

// Clamp keeps page within [0, TotalPages(n)-1], or 0 when there is
// nothing to show.
func (p Pager) Clamp(page, n int) int {
	last := p.TotalPages(n) - 1
	if page > last {
		page = last
	}
	if page < 0 {
		page = 0
	}
	return page
}

// HasPrev reports whether a previous page exists.
func (p Pager) HasPrev(page int) bool { return page > 0 }

// HasNext reports whether a next page exists.
func (p Pager) HasNext(page, n int) bool { return page < p.TotalPages(n)-1 }

// Next returns the following page, unchanged at the last page.
func (p Pager) Next(page, n int) int { return p.Clamp(page+1, n) }

// Prev returns the preceding page, unchanged at page 0.
func (p Pager) Prev(page, n int) int { return p.Clamp(page-1, n) }

// Bounds returns the half-open index range of page.
func (p Pager) Bounds(page, n int) (start, end int) {
	page = p.Clamp(page, n)
	start = page * p.size()
	end = min(start+p.size(), n)
	if start > n {
		start = n
	}
	return start, end
}

// Slice returns the results shown on page.
func (p Pager) Slice(results []api.Result, page int) []api.Result {
	start, end := p.Bounds(page, len(results))
	return results[start:end]
}

// Zoom is the enlarged-image overlay. It steps across the whole result
// list, not only the current page, and wraps at both ends.
type Zoom struct {
	open  bool
	index int
}

// Open shows result i. Results without an image cannot be zoomed.
func (z *Zoom) Open(results []api.Result, i int) error {
	if i < 0 || i >= len(results) {
		return errors.New("viewer: zoom index out of range")
	}
	if !results[i].HasImage() {
		return ErrNoImage
	}
	z.open = true
	z.index = i
	return nil
}

// Close hides the overlay.
func (z *Zoom) Close() { z.open = false }

// IsOpen reports whether the overlay is shown.
func (z *Zoom) IsOpen() bool { return z.open }

// Index returns the zoomed result index.
func (z *Zoom) Index() int { return z.index }

// Next moves to the following result, wrapping to the first.
func (z *Zoom) Next(n int) {
	if !z.open || n == 0 {
		return
	}
	z.index = (z.index + 1) % n
}

// Prev moves to the preceding result, wrapping to the last.
func (z *Zoom) Prev(n int) {
	if !z.open || n == 0 {
		return
	}
	z.index = (z.index - 1 + n) % n
}

// Key applies a navigation key ("left", "right", "esc") while open.
// It reports whether the key was handled.
func (z *Zoom) Key(k string, n int) bool {
	if !z.open {
		return false
	}
	switch k {
	case "left":
		z.Prev(n)
	case "right":
		z.Next(n)
	case "esc", "escape":
		z.Close()
	default:
		return false
	}
	return true
}
