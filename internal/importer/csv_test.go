package importer

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerline/ledgerline-backend/internal/domain/ledger"
)

func TestRead_ValidFile(t *testing.T) {
	input := strings.Join([]string{
		"date,description,amount,currency,kind,account_id",
		"2026-03-01,NETFLIX.COM,-15.99,USD,expense,acct1",
		"2026-03-02,PAYCHECK,2500.00,,income,acct1",
	}, "\n")

	rows, err := Read(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "NETFLIX.COM", rows[0].Description)
	assert.True(t, rows[0].Amount.Equal(decimal.RequireFromString("-15.99")))
	assert.Equal(t, ledger.KindExpense, rows[0].Kind)
	assert.Equal(t, "acct1", rows[0].AccountID)
	assert.Equal(t, 2026, rows[0].Date.Year())

	// Currency defaults to USD when the column is empty.
	assert.Equal(t, "USD", rows[1].Currency)
	assert.Equal(t, ledger.KindIncome, rows[1].Kind)
}

func TestRead_BadDateFailsWholeFile(t *testing.T) {
	input := strings.Join([]string{
		"date,description,amount,currency,kind,account_id",
		"2026-03-01,NETFLIX.COM,-15.99,USD,expense,acct1",
		"03/02/2026,PAYCHECK,2500.00,USD,income,acct1",
	}, "\n")

	rows, err := Read(strings.NewReader(input))

	assert.Nil(t, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
}

func TestRead_BadAmount(t *testing.T) {
	input := strings.Join([]string{
		"date,description,amount,currency,kind,account_id",
		"2026-03-01,NETFLIX.COM,fifteen,USD,expense,acct1",
	}, "\n")

	_, err := Read(strings.NewReader(input))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid amount")
}

func TestRead_UnknownKind(t *testing.T) {
	input := strings.Join([]string{
		"date,description,amount,currency,kind,account_id",
		"2026-03-01,NETFLIX.COM,-15.99,USD,subscription,acct1",
	}, "\n")

	_, err := Read(strings.NewReader(input))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transaction kind")
}

func TestRead_MissingAccountID(t *testing.T) {
	input := strings.Join([]string{
		"date,description,amount,currency,kind,account_id",
		"2026-03-01,NETFLIX.COM,-15.99,USD,expense,",
	}, "\n")

	_, err := Read(strings.NewReader(input))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_id")
}

func TestRead_EmptyFileHeaderOnly(t *testing.T) {
	rows, err := Read(strings.NewReader("date,description,amount,currency,kind,account_id\n"))

	require.NoError(t, err)
	assert.Empty(t, rows)
}
