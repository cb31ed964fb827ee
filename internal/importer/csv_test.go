package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ledger/internal/core"
)

func TestParseCSV(t *testing.T) {
	input := `date,description,amount
2024-03-01,Salary  ACME,1500.00
2024-03-03 18:30:00,"Market, downtown","-42,50"
2024-03-04T08:00:00Z,Coffee,-3.2
5/03/2024,Refund,+10
`
	batch, err := ParseCSV(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Empty(t, batch.Errors)

	require.Equal(t, []core.NewTransaction{
		{Description: "Salary ACME", Timestamp: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Amount: 150000},
		{Description: "Market, downtown", Timestamp: time.Date(2024, 3, 3, 18, 30, 0, 0, time.UTC), Amount: -4250},
		{Description: "Coffee", Timestamp: time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC), Amount: -320},
		{Description: "Refund", Timestamp: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), Amount: 1000},
	}, batch.Rows)
}

func TestParseCSVCollectsLineErrors(t *testing.T) {
	input := `2024-03-01,ok,1
yesterday,bad date,1
2024-03-02,,1
2024-03-03,bad amount,1.2.3
2024-03-04,short
2024-03-05,ok again,2
`
	batch, err := ParseCSV(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 2)
	require.Len(t, batch.Errors, 4)

	require.Contains(t, batch.Errors[0].Error(), "line 2")
	require.ErrorIs(t, batch.Errors[1], core.ErrEmptyDescription)
	require.ErrorIs(t, batch.Errors[2], core.ErrInvalidAmount)
	require.ErrorIs(t, batch.Errors[3], ErrColumns)
}

func TestParseCSVLocation(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	batch, err := ParseCSV(strings.NewReader("2024-03-01,Rent,-800\n"), cet)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)

	ts := batch.Rows[0].Timestamp
	require.Equal(t, time.UTC, ts.Location())
	require.True(t, ts.Equal(time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC)))
}

func TestParseCSVEmpty(t *testing.T) {
	batch, err := ParseCSV(strings.NewReader(""), nil)
	require.NoError(t, err)
	require.Empty(t, batch.Rows)
	require.Empty(t, batch.Errors)
}

func TestParseCSVReportsPhysicalLines(t *testing.T) {
	input := "date,description,amount\n" +
		"2024-03-01,\"Transfer\nref 8812\",-20\n" +
		"2024-03-02,bad amount,abc\n" +
		"2024-03-03,\"unterminated,5\n"
	batch, err := ParseCSV(strings.NewReader(input), nil)
	require.NoError(t, err)
	require.Len(t, batch.Rows, 1)
	require.Equal(t, "Transfer ref 8812", batch.Rows[0].Description)

	require.Len(t, batch.Errors, 2)
	require.Contains(t, batch.Errors[0].Error(), "line 4:")
	require.Contains(t, batch.Errors[1].Error(), "line 5:")
}

func TestParseCSVStripsBOM(t *testing.T) {
	for name, input := range map[string]string{
		"header":    "\ufeffdate,description,amount\n2024-03-01,Rent,-800\n",
		"no header": "\ufeff2024-03-01,Rent,-800\n",
	} {
		t.Run(name, func(t *testing.T) {
			batch, err := ParseCSV(strings.NewReader(input), nil)
			require.NoError(t, err)
			require.Empty(t, batch.Errors)
			require.Len(t, batch.Rows, 1)
			require.Equal(t, int64(-80000), batch.Rows[0].Amount)
		})
	}
}
