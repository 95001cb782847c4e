package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kharch/internal/core"
	"kharch/internal/cycle"
	"kharch/internal/finance"
)

func testCycle(t *testing.T) cycle.Cycle {
	t.Helper()
	return cycle.Current(time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC))
}

func testSummary(t *testing.T) (cycle.Cycle, finance.Summary) {
	t.Helper()
	c := testCycle(t)
	members := []core.Member{{ID: 1, Name: "Asha", Contribution: 1000}, {ID: 2, Name: "Ravi", Contribution: 500}}
	expenses := []core.Expense{
		{ID: 1, Amount: 200, Category: "Milk/Dairy", Description: `Milk "full cream"`, Date: time.Date(2025, 1, 12, 12, 0, 0, 0, time.UTC)},
		{ID: 2, Amount: 100, Category: "Groceries", Description: "Rice, basmati", Date: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)},
	}
	return c, finance.Aggregate(c, members, expenses, 0)
}

func newTestRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer("₹", "en-US", time.UTC)
	require.NoError(t, err)
	return r
}

func TestRenderer_FormatAmount(t *testing.T) {
	r := newTestRenderer(t)
	assert.Equal(t, "₹1,500", r.FormatAmount(1500))
	assert.Equal(t, "₹0", r.FormatAmount(0))
	assert.Equal(t, "-₹1,234,567", r.FormatAmount(-1234567))
	assert.Equal(t, "15 Jan 2025", r.Date(time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)))

	_, err := NewRenderer("₹", "not a locale!", time.UTC)
	assert.Error(t, err)
}

func TestWriteCSV(t *testing.T) {
	c, s := testSummary(t)
	var buf bytes.Buffer
	require.NoError(t, newTestRenderer(t).WriteCSV(&buf, c, s))

	want := strings.Join([]string{
		"Home Expense Report",
		"Cycle,11 Jan 2025 - 10 Feb 2025",
		"",
		"Total Fund,1500",
		"Total Spent,300",
		"Balance,1200",
		"",
		"Date,Description,Amount",
		`12-01-2025,"Milk ""full cream""",200`,
		`15-01-2025,"Rice, basmati",100`,
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
	assert.Equal(t, "Home-Expense-Jan11-Feb10-2025.csv", CSVFilename(c))
}

func TestWriteCSV_NoExpenses(t *testing.T) {
	c := testCycle(t)
	s := finance.Aggregate(c, nil, nil, 0)
	var buf bytes.Buffer
	require.NoError(t, newTestRenderer(t).WriteCSV(&buf, c, s))
	assert.True(t, strings.HasSuffix(buf.String(), "Date,Description,Amount\n"))
}

func TestWriteHTML(t *testing.T) {
	c, s := testSummary(t)
	s.PreviousBalance = -50
	var buf bytes.Buffer
	require.NoError(t, newTestRenderer(t).WriteHTML(&buf, c, s))

	out := buf.String()
	assert.Contains(t, out, "<title>Home Expense Report</title>")
	assert.Contains(t, out, "Cycle: 11 Jan 2025 - 10 Feb 2025")
	assert.Contains(t, out, "Total Fund: ₹1,500")
	assert.Contains(t, out, "Previous Balance: -₹50")
	assert.Contains(t, out, "Description-wise Summary")
	assert.Contains(t, out, "12 Jan 2025")
	// Expense rows carry their own formatted amount.
	assert.Contains(t, out, `<td>Milk/Dairy</td><td class="amount">₹200</td>`)
	assert.Contains(t, out, `<td>Groceries</td><td class="amount">₹100</td>`)
	// Descriptions are escaped.
	assert.Contains(t, out, "Milk &#34;full cream&#34;")
	assert.NotContains(t, out, "No expenses in this cycle.")
}

func TestWriteHTML_Empty(t *testing.T) {
	c := testCycle(t)
	var buf bytes.Buffer
	require.NoError(t, newTestRenderer(t).WriteHTML(&buf, c, finance.Aggregate(c, nil, nil, 0)))
	assert.Contains(t, buf.String(), "No expenses in this cycle.")
	assert.NotContains(t, buf.String(), "Previous Balance")
}

func TestBackupRoundTrip(t *testing.T) {
	now := time.Date(2025, 1, 20, 10, 30, 0, 0, time.UTC)
	members := []core.Member{{ID: 1, Name: "Asha", Contribution: 50000}}
	expenses := []core.Expense{{ID: 9, Amount: 200, Category: "Groceries", Description: "Rice", Date: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)}}

	var buf bytes.Buffer
	require.NoError(t, EncodeBackup(&buf, NewBackup(members, expenses, now)))

	got, err := DecodeBackup(&buf, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.Equal(t, members, got.Members)
	require.Len(t, got.Expenses, 1)
	assert.True(t, got.Expenses[0].Date.Equal(expenses[0].Date))
	assert.Equal(t, "kharch-backup-2025-01-20.json", BackupFilename(now))
}

func TestNewBackup_EmptyLists(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeBackup(&buf, NewBackup(nil, nil, time.Now())))
	assert.Contains(t, buf.String(), `"members": []`)
	assert.Contains(t, buf.String(), `"expenses": []`)
}

func TestDecodeBackup(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)

	t.Run("bare dates and string amounts", func(t *testing.T) {
		doc := `{"members":[{"id":3,"name":"Asha","contribution":"500"}],
			"expenses":[{"id":4,"amount":120,"category":"Other","description":"Gas","date":"2025-01-15"}]}`
		b, err := DecodeBackup(strings.NewReader(doc), ist)
		require.NoError(t, err)
		assert.Equal(t, core.Amount(500), b.Members[0].Contribution)
		assert.True(t, b.Expenses[0].Date.Equal(time.Date(2025, 1, 15, 12, 0, 0, 0, ist)))
	})

	bad := map[string]string{
		"not json":         `{`,
		"missing members":  `{"expenses":[]}`,
		"missing expenses": `{"members":[]}`,
		"future version":   `{"version":2,"members":[],"expenses":[]}`,
		"bad date":         `{"members":[],"expenses":[{"amount":1,"date":"yesterday"}]}`,
		"bad amount":       `{"members":[{"name":"x","contribution":"1.5"}],"expenses":[]}`,
	}
	for name, doc := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeBackup(strings.NewReader(doc), ist)
			assert.ErrorIs(t, err, core.ErrInvalidBackup)
		})
	}
}
