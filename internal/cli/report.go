package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/Veraticus/spice-assign/internal/service"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// LabelTotal is the number and sum of transactions assigned one label.
type LabelTotal struct {
	Label string
	Total decimal.Decimal
	Count int
}

// LabelTotals groups assignments by label, largest total first. Ties are
// broken by label name.
func LabelTotals(assignments []model.Assignment) []LabelTotal {
	byLabel := make(map[string]*LabelTotal)
	for _, a := range assignments {
		lt, ok := byLabel[a.Label]
		if !ok {
			lt = &LabelTotal{Label: a.Label, Total: decimal.Zero}
			byLabel[a.Label] = lt
		}
		lt.Count++
		lt.Total = lt.Total.Add(a.Transaction.Amount)
	}

	totals := make([]LabelTotal, 0, len(byLabel))
	for _, lt := range byLabel {
		totals = append(totals, *lt)
	}
	sort.Slice(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		return totals[i].Label < totals[j].Label
	})
	return totals
}

// RenderTotals renders per-label totals as a table.
func RenderTotals(totals []LabelTotal) string {
	if len(totals) == 0 {
		return ""
	}

	width := len("Label")
	for _, lt := range totals {
		width = max(width, lipgloss.Width(lt.Label))
	}

	var sb strings.Builder
	sb.WriteString(TableHeaderStyle.Render(fmt.Sprintf("%-*s  %5s  %12s", width, "Label", "Count", "Total")))
	sb.WriteString("\n")
	for _, lt := range totals {
		label := TableCellStyle.Render(padRight(lt.Label, width))
		fmt.Fprintf(&sb, "%s%5d  %12s\n", label, lt.Count, "$"+lt.Total.StringFixed(2))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderAssignments lists each transaction with its assigned label.
// Transactions left unassigned are dimmed.
func RenderAssignments(kind model.AssignmentKind, assignments []model.Assignment) string {
	var sb strings.Builder
	for _, a := range assignments {
		txn := a.Transaction
		label := SuccessStyle.Render(a.Label)
		if kind.IsUnassigned(a.Label) {
			label = SubtleStyle.Render(a.Label)
		}
		fmt.Fprintf(&sb, "%s  %-32s %12s  %s %s\n",
			txn.Date.Format(model.DateLayout),
			truncate(txn.Description, 32),
			"$"+txn.Amount.StringFixed(2),
			SubtleStyle.Render("→"),
			label)
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderSummary renders the completion box for an assignment run.
func RenderSummary(stats *service.CompletionStats) string {
	title := fmt.Sprintf("%s %s Assignment Complete", ChartIcon, strings.ToUpper(string(stats.Kind[:1]))+string(stats.Kind[1:]))
	if !stats.Applied {
		title += " (dry run)"
	}

	summary := fmt.Sprintf("  • Transactions: %d\n", stats.Total) +
		fmt.Sprintf("  • Assigned: %d\n", stats.Assigned) +
		fmt.Sprintf("  • Left unassigned: %d\n", stats.Unmatched) +
		fmt.Sprintf("  • Served from cache: %d %s\n", stats.Cached, RobotIcon) +
		fmt.Sprintf("  • Time taken: %s", stats.Duration.Round(time.Millisecond))

	return RenderBox(title, summary)
}

// RenderLabels renders a label list for the list commands.
func RenderLabels(kind model.AssignmentKind, labels []model.Label) string {
	if len(labels) == 0 {
		return FormatInfo(fmt.Sprintf("No %s defined yet.", kind.Plural()))
	}

	var sb strings.Builder
	sb.WriteString(FormatTitle(fmt.Sprintf("%d %s", len(labels), kind.Plural())))
	sb.WriteString("\n")
	for _, l := range labels {
		fmt.Fprintf(&sb, "  %s %s\n", SubtleStyle.Render(fmt.Sprintf("%3d", l.ID)), l.Name)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
