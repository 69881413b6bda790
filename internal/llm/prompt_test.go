package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTransaction(t *testing.T) {
	tests := []struct {
		name string
		want string
		txn  model.TransactionDescriptor
	}{
		{
			name: "both accounts",
			txn: model.TransactionDescriptor{
				Description: "Whole Foods",
				Amount:      "42.10",
				Date:        "2024-03-05",
				Source:      model.NamedAccount("Checking"),
				Destination: model.NamedAccount("Whole Foods Market"),
			},
			want: "Whole Foods - $42.10 - 2024-03-05 (Checking → Whole Foods Market)",
		},
		{
			name: "null source",
			txn: model.TransactionDescriptor{
				Description: "Refund",
				Amount:      "5.00",
				Date:        "2024-03-06",
				Source:      model.NullAccount(),
				Destination: model.NamedAccount("Checking"),
			},
			want: "Refund - $5.00 - 2024-03-06 (null → Checking)",
		},
		{
			name: "undefined destination",
			txn: model.TransactionDescriptor{
				Description: "ATM",
				Amount:      "60.00",
				Date:        "2024-03-07",
				Source:      model.NamedAccount("Checking"),
			},
			want: "ATM - $60.00 - 2024-03-07 (Checking → undefined)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatTransaction(tt.txn))
		})
	}
}

func TestBuildUserPrompt(t *testing.T) {
	builder := NewPromptBuilder(nil)
	options := model.KindCategory.WithSentinel([]string{"Groceries", "Dining"})
	txns := []model.TransactionDescriptor{
		{Description: "Safeway", Amount: "12.00", Date: "2024-01-02", Source: model.NamedAccount("Checking"), Destination: model.NamedAccount("Safeway")},
		{Description: "Chipotle", Amount: "9.50", Date: "2024-01-03", Source: model.NamedAccount("Checking"), Destination: model.NamedAccount("Chipotle")},
	}

	prompt := builder.BuildUserPrompt(model.KindCategory, txns, options)

	assert.Contains(t, prompt, "- Groceries\n- Dining\n- (no category)\n")
	assert.Contains(t, prompt, "1. Safeway - $12.00 - 2024-01-02 (Checking → Safeway)\n")
	assert.Contains(t, prompt, "2. Chipotle - $9.50 - 2024-01-03 (Checking → Chipotle)\n")
	assert.Contains(t, prompt, "Return exactly 2 categories in the exact same order")
	assert.Less(t, strings.Index(prompt, "1. Safeway"), strings.Index(prompt, "2. Chipotle"))

	assert.Equal(t, []string{
		"Safeway - $12.00 - 2024-01-02 (Checking → Safeway)",
		"Chipotle - $9.50 - 2024-01-03 (Checking → Chipotle)",
	}, promptLines(prompt))
}

func TestBuildSystemPrompt(t *testing.T) {
	builder := NewPromptBuilder(nil)
	assert.Contains(t, builder.BuildSystemPrompt(model.KindCategory), "category")
	assert.Contains(t, builder.BuildSystemPrompt(model.KindBudget), "budget")
}

func TestBuildSchema(t *testing.T) {
	builder := NewPromptBuilder(nil)
	options := []string{"Household", model.NoBudget}

	schema := builder.BuildSchema(model.KindBudget, options)
	assert.Equal(t, "assign_budgets", schema.Name)
	assert.Equal(t, []string{"budgets"}, schema.Parameters.Required)

	prop := schema.Parameters.Properties["budgets"]
	require.NotNil(t, prop)
	assert.Equal(t, "array", prop.Type)
	require.NotNil(t, prop.Items)
	assert.Equal(t, options, prop.Items.Enum)

	options[0] = "mutated"
	assert.Equal(t, "Household", prop.Items.Enum[0], "schema must not alias the caller's slice")

	encoded, err := json.Marshal(schema)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"enum":["Household","(no budget)"]`)
}
