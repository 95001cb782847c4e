package trace

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type recordingObserver struct {
	mu    sync.Mutex
	calls []string
	codes []int
}

func (o *recordingObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, method+" "+route)
	o.codes = append(o.codes, status)
}

func TestMiddleware_AssignsRequestIDAndObserves(t *testing.T) {
	obs := &recordingObserver{}
	mux := http.NewServeMux()
	var seenID string
	mux.Handle("GET /api/members/{id}", Route("GET /api/members/{id}", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = RequestID(r)
		w.WriteHeader(http.StatusNotFound)
	})))
	h := NewMiddleware(func(*http.Request) string { return "1.1.1.1" }, obs).Middleware(mux)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/members/7", nil))

	id := rec.Header().Get(HeaderRequestID)
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("response request id %q is not a UUID", id)
	}
	if seenID != id {
		t.Errorf("handler saw %q, response carried %q", seenID, id)
	}
	if len(obs.calls) != 1 || obs.calls[0] != "GET GET /api/members/{id}" || obs.codes[0] != 404 {
		t.Errorf("observer got %v %v", obs.calls, obs.codes)
	}
}

func TestMiddleware_KeepsValidIncomingID(t *testing.T) {
	h := NewMiddleware(nil, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	incoming := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, incoming)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(HeaderRequestID) != incoming {
		t.Errorf("incoming id replaced: %q", rec.Header().Get(HeaderRequestID))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "not-a-uuid\nforged")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get(HeaderRequestID) == "not-a-uuid\nforged" {
		t.Error("invalid incoming id must be replaced")
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	obs := &recordingObserver{}
	h := NewMiddleware(nil, obs).Middleware(http.NotFoundHandler())
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope", nil))
	if len(obs.calls) != 1 || obs.calls[0] != "GET unmatched" {
		t.Errorf("observer got %v", obs.calls)
	}
}

func TestGetRequestID_Empty(t *testing.T) {
	if id := RequestID(httptest.NewRequest(http.MethodGet, "/", nil)); id != "" {
		t.Errorf("RequestID() = %q, want empty", id)
	}
}
