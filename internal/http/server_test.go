package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kharch/internal/core"
	"kharch/internal/export"
	"kharch/internal/finance"
	"kharch/internal/metrics"
	"kharch/internal/middleware/ratelimit"
	"kharch/internal/middleware/trace"
	"kharch/internal/services"
	"kharch/internal/store/memory"
)

var testNow = time.Date(2025, 1, 20, 9, 0, 0, 0, time.UTC)

const currentKey = "2025-01-11_2025-02-10"

type testServer struct {
	*Server
	store   *memory.Store
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	st := memory.New()
	m := metrics.New()
	ledger := services.NewLedger(st, services.Options{
		Location:         time.UTC,
		StrictCategories: true,
		Metrics:          m,
		Now:              func() time.Time { return testNow },
	})
	renderer, err := export.NewRenderer("₹", "en-IN", time.UTC)
	require.NoError(t, err)

	s := NewServer(":0", Deps{
		Ledger:   ledger,
		Renderer: renderer,
		Pinger:   st,
		Metrics:  m,
		Limiter:  limiter,
		History:  3,
	})
	t.Cleanup(func() {
		if limiter != nil {
			limiter.Stop()
		}
	})
	return &testServer{Server: s, store: st, metrics: m}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	ts.Handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestMembersCRUD(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/members", `{"name":"  Asha ","contribution":"5000"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[core.Member](t, w)
	assert.Equal(t, "Asha", created.Name)
	assert.Equal(t, core.Amount(5000), created.Contribution)

	w = ts.do(t, http.MethodPut, "/api/members/1", `{"contribution":6000}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[core.Member](t, w)
	assert.Equal(t, "Asha", updated.Name)
	assert.Equal(t, core.Amount(6000), updated.Contribution)

	w = ts.do(t, http.MethodGet, "/api/members", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]core.Member](t, w), 1)

	w = ts.do(t, http.MethodDelete, "/api/members/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	w = ts.do(t, http.MethodDelete, "/api/members/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateMember_ValidationError(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"blank name", `{"name":"  ","contribution":100}`, "name"},
		{"zero contribution", `{"name":"Ravi","contribution":0}`, "contribution"},
		{"fractional contribution", `{"name":"Ravi","contribution":"12.5"}`, ""},
		{"malformed json", `{"name":`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/members", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			got := decode[apiError](t, w)
			assert.NotEmpty(t, got.Message)
			assert.Equal(t, tt.field, got.Field)
		})
	}
}

func TestUpdateMember_BadID(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPut, "/api/members/abc", `{"name":"X"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "id", decode[apiError](t, w).Field)

	w = ts.do(t, http.MethodPut, "/api/members/42", `{"name":"X"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExpenses_CreateSearchAndCycleFilter(t *testing.T) {
	ts := newTestServer(t, nil)

	for _, body := range []string{
		`{"amount":500,"category":"groceries","description":"Weekly veg","date":"2025-01-11"}`,
		`{"amount":"250","category":"Utilities","description":"Electricity","date":"2025-02-10"}`,
		`{"amount":90,"category":"Milk/Dairy","description":"Milk","date":"2025-01-10"}`,
	} {
		w := ts.do(t, http.MethodPost, "/api/expenses", body)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := ts.do(t, http.MethodGet, "/api/expenses?cycle="+currentKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	inCycle := decode[[]core.Expense](t, w)
	require.Len(t, inCycle, 2)
	assert.Equal(t, "Electricity", inCycle[0].Description, "newest first")
	assert.Equal(t, "Groceries", inCycle[1].Category, "category is canonicalized")

	w = ts.do(t, http.MethodGet, "/api/expenses?q=MILK", "")
	require.Equal(t, http.StatusOK, w.Code)
	found := decode[[]core.Expense](t, w)
	require.Len(t, found, 1)
	assert.Equal(t, "Milk", found[0].Description)

	w = ts.do(t, http.MethodGet, "/api/expenses?cycle=nope", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "cycle", decode[apiError](t, w).Field)
}

func TestCreateExpense_Rejects(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"unknown category", `{"amount":10,"category":"Jewellery","description":"Ring","date":"2025-01-12"}`, "category"},
		{"negative amount", `{"amount":-5,"category":"Other","description":"X","date":"2025-01-12"}`, "amount"},
		{"bad date", `{"amount":5,"category":"Other","description":"X","date":"12/01/2025"}`, "date"},
		{"blank description", `{"amount":5,"category":"Other","description":" ","date":"2025-01-12"}`, "description"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/expenses", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.field, decode[apiError](t, w).Field)
		})
	}
}

func TestCreateExpense_DefaultsDateToToday(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodPost, "/api/expenses", `{"amount":40,"category":"Other","description":"Stamps"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	e := decode[core.Expense](t, w)
	assert.Equal(t, time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC), e.Date.UTC())
}

func TestUpdateAndDeleteExpense(t *testing.T) {
	ts := newTestServer(t, nil)
	w := ts.do(t, http.MethodPost, "/api/expenses", `{"amount":100,"category":"Other","description":"Taxi","date":"2025-01-15"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodPut, "/api/expenses/1", `{"amount":120,"date":"2025-01-16"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	e := decode[core.Expense](t, w)
	assert.Equal(t, core.Amount(120), e.Amount)
	assert.Equal(t, "Taxi", e.Description)
	assert.Equal(t, 16, e.Date.Day())

	w = ts.do(t, http.MethodDelete, "/api/expenses/1", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = ts.do(t, http.MethodGet, "/api/expenses/1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCycles(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/cycles", "")
	require.Equal(t, http.StatusOK, w.Code)
	cycles := decode[[]cycleView](t, w)
	require.Len(t, cycles, 3)
	assert.Equal(t, currentKey, cycles[0].Key)
	assert.True(t, cycles[0].IsCurrent)
	assert.Equal(t, "2024-12-11_2025-01-10", cycles[1].Key)
	assert.False(t, cycles[1].IsCurrent)
	assert.Equal(t, "2024-11-11_2024-12-10", cycles[2].Key)

	w = ts.do(t, http.MethodGet, "/api/cycles?count=1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]cycleView](t, w), 1)

	w = ts.do(t, http.MethodGet, "/api/cycles?count=0", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/cycles/current", "")
	require.Equal(t, http.StatusOK, w.Code)
	current := decode[cycleView](t, w)
	assert.Equal(t, "11 Jan 2025 - 10 Feb 2025", current.Label)
	assert.Equal(t, 31, current.Days)
}

func seedLedger(t *testing.T, ts *testServer) {
	t.Helper()
	for _, body := range []string{
		`{"name":"Asha","contribution":5000}`,
		`{"name":"Ravi","contribution":5000}`,
	} {
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/members", body).Code)
	}
	for _, body := range []string{
		`{"amount":4000,"category":"Groceries","description":"Big shop","date":"2025-01-12"}`,
		`{"amount":5500,"category":"Utilities","description":"Rent share","date":"2025-01-18"}`,
	} {
		require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/expenses", body).Code)
	}
}

func TestDashboard(t *testing.T) {
	ts := newTestServer(t, nil)
	seedLedger(t, ts)

	w := ts.do(t, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s := decode[finance.Summary](t, w)
	assert.Equal(t, currentKey, s.CycleKey)
	assert.Equal(t, int64(10000), s.Fund)
	assert.Equal(t, int64(9500), s.Spent)
	assert.Equal(t, int64(500), s.Balance)
	assert.True(t, s.Warning)
	assert.Len(t, s.ByCategory, 2)

	w = ts.do(t, http.MethodGet, "/api/dashboard?previousBalance=-250", "")
	require.Equal(t, http.StatusOK, w.Code)
	s = decode[finance.Summary](t, w)
	assert.Equal(t, int64(9750), s.Fund)
	assert.Equal(t, int64(-250), s.PreviousBalance)

	w = ts.do(t, http.MethodGet, "/api/dashboard?previousBalance=1.5", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "previousBalance", decode[apiError](t, w).Field)
}

func TestCycleSummary_GetAndPut(t *testing.T) {
	ts := newTestServer(t, nil)
	seedLedger(t, ts)
	path := "/api/cycles/" + currentKey + "/summary"

	w := ts.do(t, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	cs := decode[core.CycleSummary](t, w)
	assert.Equal(t, int64(0), cs.PreviousBalance)
	assert.True(t, cs.UpdatedAt.IsZero(), "nothing saved yet")

	w = ts.do(t, http.MethodPut, path, `{"previousBalance":1200}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cs = decode[core.CycleSummary](t, w)
	assert.Equal(t, int64(1200), cs.PreviousBalance)
	assert.Equal(t, int64(11200), cs.Fund)
	assert.Equal(t, int64(1700), cs.Balance)

	// The saved carry-forward now feeds the dashboard.
	w = ts.do(t, http.MethodGet, "/api/dashboard?cycle="+currentKey, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(11200), decode[finance.Summary](t, w).Fund)

	w = ts.do(t, http.MethodPut, path, `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "previousBalance", decode[apiError](t, w).Field)

	w = ts.do(t, http.MethodGet, "/api/cycles/2025-01-12_2025-02-10/summary", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReports(t *testing.T) {
	ts := newTestServer(t, nil)
	seedLedger(t, ts)

	w := ts.do(t, http.MethodGet, "/api/reports/csv?cycle="+currentKey, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="Home-Expense-Jan11-Feb10-2025.csv"`, w.Header().Get("Content-Disposition"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "Home Expense Report\n"), body)
	assert.Contains(t, body, "Date,Description,Amount\n")
	assert.Contains(t, body, `12-01-2025,"Big shop",4000`)

	w = ts.do(t, http.MethodGet, "/api/reports/print", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "11 Jan 2025 - 10 Feb 2025")
	assert.Contains(t, w.Body.String(), "Rent share")
}

func TestBackupAndRestore(t *testing.T) {
	ts := newTestServer(t, nil)
	seedLedger(t, ts)

	w := ts.do(t, http.MethodGet, "/api/backup", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="kharch-backup-2025-01-20.json"`, w.Header().Get("Content-Disposition"))
	backup := w.Body.String()
	assert.Contains(t, backup, `"members"`)

	// Wipe the ledger with an empty backup, then restore the original.
	w = ts.do(t, http.MethodPost, "/api/restore", `{"version":1,"members":[],"expenses":[]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, services.RestoreResult{}, decode[services.RestoreResult](t, w))

	w = ts.do(t, http.MethodPost, "/api/restore", backup)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, services.RestoreResult{Members: 2, Expenses: 2}, decode[services.RestoreResult](t, w))

	members := decode[[]core.Member](t, ts.do(t, http.MethodGet, "/api/members", ""))
	require.Len(t, members, 2)
	for _, m := range members {
		assert.Greater(t, m.ID, int64(4), "ids from the file are never reused")
	}
}

func TestRestore_RejectsInvalidBackupWithoutWriting(t *testing.T) {
	ts := newTestServer(t, nil)
	seedLedger(t, ts)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"missing expenses", `{"members":[]}`, ""},
		{"not json", `hello`, ""},
		{"invalid member", `{"members":[{"name":"","contribution":10}],"expenses":[]}`, "members[0].name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, "/api/restore", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.Equal(t, tt.field, decode[apiError](t, w).Field)
		})
	}

	members := decode[[]core.Member](t, ts.do(t, http.MethodGet, "/api/members", ""))
	assert.Len(t, members, 2)
}

func TestHealthAndReadiness(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, w)["status"])

	w = ts.do(t, http.MethodGet, "/readyz", "")
	require.Equal(t, http.StatusOK, w.Code)
	ready := decode[map[string]any](t, w)
	assert.Equal(t, "ready", ready["status"])
}

func TestMiddlewareChain(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(t, http.MethodGet, "/api/members", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(trace.HeaderRequestID))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `route="GET /api/members"`)
}

func TestRateLimitAppliesToWritesOnly(t *testing.T) {
	limiter := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 1, CleanupInterval: time.Minute})
	ts := newTestServer(t, limiter)

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/members", `{"name":"A","contribution":1}`).Code)

	w := ts.do(t, http.MethodPost, "/api/members", `{"name":"B","contribution":1}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.NotEmpty(t, decode[apiError](t, w).Message)

	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/members", "").Code)
}

func TestResponseBuilder(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().
		Status(http.StatusAccepted).
		Header("X-Test", "1").
		JSON(map[string]int{"n": 1}).
		Write(w)

	if w.Code != http.StatusAccepted {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusAccepted)
	}
	if got := w.Header().Get("X-Test"); got != "1" {
		t.Errorf("X-Test = %q, want %q", got, "1")
	}
	if got := strings.TrimSpace(w.Body.String()); got != `{"n":1}` {
		t.Errorf("Body = %q", got)
	}

	w = httptest.NewRecorder()
	NewResponse().JSON(func() {}).Write(w)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("unencodable body: status = %d, want 500", w.Code)
	}
}
