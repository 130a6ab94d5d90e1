package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperengineering/exemplar/internal/exemplar"
	"github.com/hyperengineering/exemplar/internal/store"
	"github.com/hyperengineering/exemplar/internal/types"
)

const testAPIKey = "test-api-key"

type testServer struct {
	router http.Handler
	engine *exemplar.Engine
	store  *store.SQLiteStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	eng := exemplar.New(st, nil, nil, exemplar.DefaultParams())
	h := NewHandler(eng, st, testAPIKey, "test", "")
	return &testServer{router: NewRouter(h), engine: eng, store: st}
}

func (ts *testServer) request(t *testing.T, method, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	if authed {
		req.Header.Set("Authorization", "Bearer "+testAPIKey)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) addExemplar(t *testing.T, content, groupID string) int64 {
	t.Helper()
	rec := ts.request(t, http.MethodPost, "/api/v1/exemplars", types.AddExemplarRequest{
		Content: content,
		GroupID: groupID,
	}, true)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp types.AddExemplarResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.ID
}

func TestHealthNoAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	ts.addExemplar(t, "an exemplar for the count", "group-1")

	rec := ts.request(t, http.MethodGet, "/api/v1/health", nil, false)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp types.HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.ExemplarCount != 1 {
		t.Fatalf("unexpected health: %+v", resp)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/exemplars", types.AddExemplarRequest{
		Content: "valid content right here",
		GroupID: "group-1",
	}, false)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Fatalf("expected problem content type, got %q", ct)
	}
}

func TestAddExemplar(t *testing.T) {
	ts := newTestServer(t)

	id := ts.addExemplar(t, "a perfectly valid exemplar", "group-1")
	if id == 0 {
		t.Fatal("expected non-zero id")
	}
}

func TestAddExemplarValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		req  types.AddExemplarRequest
	}{
		{"short content", types.AddExemplarRequest{Content: "too short", GroupID: "group-1"}},
		{"missing group", types.AddExemplarRequest{Content: "valid content right here"}},
		{"null bytes", types.AddExemplarRequest{Content: "valid\x00content here!", GroupID: "group-1"}},
		{"oversized group id", types.AddExemplarRequest{Content: "valid content right here", GroupID: strings.Repeat("g", MaxGroupIDLength+1)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.request(t, http.MethodPost, "/api/v1/exemplars", tc.req, true)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAddExemplarInvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/exemplars", "{not json", true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSearchReturnsWeightOrdered(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	low := ts.addExemplar(t, "a lower ranked exemplar", "group-1")
	high := ts.addExemplar(t, "a higher ranked exemplar", "group-1")
	if !ts.engine.AdjustWeight(ctx, high, 1.0) {
		t.Fatal("weight adjustment failed")
	}

	rec := ts.request(t, http.MethodPost, "/api/v1/exemplars/search", types.SearchRequest{
		Query:   "anything",
		GroupID: "group-1",
		Limit:   2,
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp types.SearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Examples) != 2 || resp.Examples[0].ID != high || resp.Examples[1].ID != low {
		t.Fatalf("unexpected ranking: %+v", resp.Examples)
	}
}

func TestSearchEmptyGroupReturnsEmptyArray(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/exemplars/search", types.SearchRequest{
		Query:   "anything",
		GroupID: "missing",
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"examples":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestSearchRequiresGroupID(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/exemplars/search", types.SearchRequest{
		Query: "anything",
	}, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestFeedback(t *testing.T) {
	ts := newTestServer(t)

	a := ts.addExemplar(t, "first exemplar for feedback", "group-1")
	b := ts.addExemplar(t, "second exemplar for feedback", "group-1")

	rec := ts.request(t, http.MethodPost, "/api/v1/exemplars/feedback", types.FeedbackRequest{
		IDs:     []int64{a, b},
		Helpful: true,
	}, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp types.FeedbackResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Updated != 2 {
		t.Fatalf("expected 2 updates, got %d", resp.Updated)
	}
}

func TestFeedbackRequiresIDs(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/exemplars/feedback", types.FeedbackRequest{}, true)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestAdjustWeight(t *testing.T) {
	ts := newTestServer(t)

	id := ts.addExemplar(t, "an exemplar to reweight", "group-1")

	rec := ts.request(t, http.MethodPost, fmt.Sprintf("/api/v1/exemplars/%d/weight", id), types.WeightRequest{Delta: 0.5}, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/exemplars/9999/weight", types.WeightRequest{Delta: 0.5}, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/exemplars/not-a-number/weight", types.WeightRequest{Delta: 0.5}, true)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteExemplar(t *testing.T) {
	ts := newTestServer(t)

	id := ts.addExemplar(t, "an exemplar to delete soon", "group-1")

	rec := ts.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/exemplars/%d", id), nil, true)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}

	rec = ts.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/exemplars/%d", id), nil, true)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}
}

func TestGroupStats(t *testing.T) {
	ts := newTestServer(t)

	ts.addExemplar(t, "an exemplar in the group", "group-1")
	ts.addExemplar(t, "another one in the group", "group-1")

	rec := ts.request(t, http.MethodGet, "/api/v1/groups/group-1/stats", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats types.GroupStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats.Total != 2 {
		t.Fatalf("expected 2 exemplars, got %+v", stats)
	}
}

func TestDeduplicateEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.addExemplar(t, "an exemplar in the group", "group-1")

	rec := ts.request(t, http.MethodPost, "/api/v1/groups/group-1/dedup", nil, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var result types.DeduplicationResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.RunID == "" || result.GroupID != "group-1" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDeduplicateEndpointRejectsBadThreshold(t *testing.T) {
	ts := newTestServer(t)

	for _, raw := range []string{"abc", "0", "1.5", "-0.2"} {
		rec := ts.request(t, http.MethodPost, "/api/v1/groups/group-1/dedup?threshold="+raw, nil, true)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("threshold %q: expected 400, got %d", raw, rec.Code)
		}
	}
}
