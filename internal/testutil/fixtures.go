package testutil

import (
	"time"

	"github.com/Veraticus/spice-assign/internal/model"
	"github.com/shopspring/decimal"
)

// Predefined label sets for common test scenarios.
var (
	// StandardCategories covers the transactions in SampleTransactions.
	StandardCategories = []string{"Groceries", "Coffee & Tea", "Income", "Transportation"}

	// StandardBudgets is a small budget set.
	StandardBudgets = []string{"Household", "Fun Money"}
)

// Day returns midnight UTC on the given day of May 2024.
func Day(d int) time.Time {
	return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC)
}

// NewWithdrawal builds a withdrawal from Checking to payee.
func NewWithdrawal(id string, day int, payee, amount string) model.Transaction {
	return model.Transaction{
		ID:          id,
		Date:        Day(day),
		Description: payee,
		Amount:      decimal.RequireFromString(amount),
		Source:      model.NamedAccount("Checking"),
		Destination: model.NamedAccount(payee),
		Type:        model.TypeWithdrawal,
	}
}

// NewDeposit builds a deposit into Checking from an unreported source.
func NewDeposit(id string, day int, description, amount string) model.Transaction {
	return model.Transaction{
		ID:          id,
		Date:        Day(day),
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Source:      model.NullAccount(),
		Destination: model.NamedAccount("Checking"),
		Type:        model.TypeDeposit,
	}
}

// SampleTransactions returns four transactions: three withdrawals and one
// deposit. "Unknown Shop" has no destination and fits no category.
func SampleTransactions() []model.Transaction {
	unknown := NewWithdrawal("t4", 4, "Unknown Shop", "13.00")
	unknown.Destination = model.AccountRef{}

	return []model.Transaction{
		NewWithdrawal("t1", 1, "Safeway", "82.17"),
		NewWithdrawal("t2", 2, "Blue Bottle", "6.50"),
		NewDeposit("t3", 3, "Payroll", "2500.00"),
		unknown,
	}
}
