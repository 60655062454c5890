package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/0x6d61/necrosis/internal/api"
	"github.com/0x6d61/necrosis/internal/notify"
	"github.com/0x6d61/necrosis/internal/viewer"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
	titleStyle   = lipgloss.NewStyle().Bold(true).Underline(true)

	severityStyles = map[viewer.Severity]lipgloss.Style{
		viewer.SeverityLow:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		viewer.SeverityMedium: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		viewer.SeverityHigh:   lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// renderToast formats a toast as a prefixed console line.
func renderToast(t notify.Toast) string {
	switch t.Kind {
	case notify.Success:
		return successStyle.Render("[+] " + t.Message)
	case notify.Error:
		return errorStyle.Render("[!] " + t.Message)
	default:
		return infoStyle.Render("[*] " + t.Message)
	}
}

func severity(s viewer.Severity, v string) string {
	return severityStyles[s].Render(v)
}

// renderCard formats one result card.
func renderCard(n int, r api.Result) string {
	lesions := severity(viewer.LesionSeverity(r.LesionCount), fmt.Sprintf("%d", r.LesionCount))
	pct := severity(viewer.NecrosisTier(r.PercentageNecrosis), fmt.Sprintf("%.2f%%", r.PercentageNecrosis))
	image := dimStyle.Render("(no image)")
	if r.HasImage() {
		image = r.ResultImage
	}
	return fmt.Sprintf("  %d. %s\n     Lesions: %s  Necrosis: %s\n     Image: %s",
		n, r.Filename, lesions, pct, image)
}
