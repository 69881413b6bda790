package cli

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/Veraticus/spice-assign/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assignment(desc, amount, label string) model.Assignment {
	return model.Assignment{
		Transaction: model.Transaction{
			ID:          desc,
			Date:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
			Description: desc,
			Amount:      decimal.RequireFromString(amount),
			Type:        model.TypeWithdrawal,
		},
		Label: label,
	}
}

func TestLabelTotals(t *testing.T) {
	totals := LabelTotals([]model.Assignment{
		assignment("Safeway", "82.17", "Groceries"),
		assignment("Blue Bottle", "6.50", "Coffee & Tea"),
		assignment("Trader Joe's", "41.03", "Groceries"),
		assignment("Philz", "6.50", "Alpha"),
	})

	require.Len(t, totals, 3)
	assert.Equal(t, "Groceries", totals[0].Label)
	assert.Equal(t, 2, totals[0].Count)
	assert.Equal(t, "123.20", totals[0].Total.StringFixed(2))

	// Equal totals fall back to name order.
	assert.Equal(t, "Alpha", totals[1].Label)
	assert.Equal(t, "Coffee & Tea", totals[2].Label)
}

func TestLabelTotals_Empty(t *testing.T) {
	assert.Empty(t, LabelTotals(nil))
	assert.Empty(t, RenderTotals(nil))
}

func TestRenderTotals(t *testing.T) {
	out := RenderTotals(LabelTotals([]model.Assignment{
		assignment("Safeway", "82.17", "Groceries"),
		assignment("Blue Bottle", "6.50", "Coffee & Tea"),
	}))

	assert.Contains(t, out, "Label")
	assert.Contains(t, out, "$82.17")
	assert.Contains(t, out, "$6.50")
	assert.Less(t, strings.Index(out, "Groceries"), strings.Index(out, "Coffee & Tea"))
}

func TestRenderAssignments(t *testing.T) {
	out := RenderAssignments(model.KindCategory, []model.Assignment{
		assignment("Safeway", "82.17", "Groceries"),
		assignment("A description that is far too long to fit in the column", "1.00", model.NoCategory),
	})

	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "2024-03-15")
	assert.Contains(t, lines[0], "Groceries")
	assert.Contains(t, lines[1], "…")
	assert.Contains(t, lines[1], model.NoCategory)
}

func TestRenderSummary(t *testing.T) {
	stats := &service.CompletionStats{
		Kind:      model.KindBudget,
		Total:     10,
		Assigned:  7,
		Unmatched: 3,
		Cached:    4,
		Duration:  1500 * time.Millisecond,
	}

	out := RenderSummary(stats)
	assert.Contains(t, out, "Budget Assignment Complete (dry run)")
	assert.Contains(t, out, "Assigned: 7")
	assert.Contains(t, out, "Left unassigned: 3")
	assert.Contains(t, out, "Served from cache: 4")

	stats.Applied = true
	assert.NotContains(t, RenderSummary(stats), "dry run")
}

func TestRenderLabels(t *testing.T) {
	assert.Contains(t, RenderLabels(model.KindBudget, nil), "No budgets defined yet.")

	out := RenderLabels(model.KindCategory, []model.Label{
		{ID: 1, Name: "Groceries", Kind: model.KindCategory},
		{ID: 2, Name: "Rent", Kind: model.KindCategory},
	})
	assert.Contains(t, out, "2 categories")
	assert.Contains(t, out, "Groceries")
	assert.Contains(t, out, "Rent")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "caf…", truncate("café latte", 4))
}

func TestBatchProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewBatchProgress(&buf, "Assigning categories...")
	assert.False(t, p.Finished())

	var wg sync.WaitGroup
	for i := 1; i <= 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Update(i, 4)
		}()
	}
	wg.Wait()

	assert.True(t, p.Finished())
	assert.Contains(t, buf.String(), "Assigning categories...")
}
