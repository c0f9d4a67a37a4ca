package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/appshell/internal/metrics"
	"github.com/eugenenazirov/appshell/internal/storage"
)

type controllableClock struct {
	mu  sync.RWMutex
	now time.Time
}

func newControllableClock(initial time.Time) *controllableClock {
	return &controllableClock{now: initial}
}

func (c *controllableClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func setupTestRouter(t *testing.T) (http.Handler, *storage.MemoryBasket, *controllableClock) {
	t.Helper()

	basket := storage.NewMemoryBasket()
	clock := newControllableClock(time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC))

	handler := NewHandler(basket, WithClock(clock.Now), WithMetrics(metrics.New()))
	logger := zaptest.NewLogger(t)
	router := NewRouter(handler, logger, WithLogging(false))

	return router, basket, clock
}

func TestRequestIDHelpers(t *testing.T) {
	ctx := contextWithRequestID(context.Background(), "abc")
	if got := requestIDFromContext(ctx); got != "abc" {
		t.Fatalf("expected abc, got %s", got)
	}
	if got := requestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %s", got)
	}
}

func TestRootRedirectsToDocs(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("expected 307, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/docs" {
		t.Fatalf("expected redirect to /docs, got %q", loc)
	}
}

func TestDocsAndOpenAPI(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "/add_fruits") {
		t.Fatalf("unexpected docs response: %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	var doc map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	if doc["openapi"] != "3.0.3" {
		t.Fatalf("unexpected openapi version: %v", doc["openapi"])
	}
}

func TestAddFruitSources(t *testing.T) {
	tests := []struct {
		name        string
		target      string
		contentType string
		body        string
	}{
		{name: "query", target: "/add_fruits?fruit=apple"},
		{name: "json body", target: "/add_fruits", contentType: "application/json", body: `{"fruit":"apple"}`},
		{name: "form body", target: "/add_fruits", contentType: "application/x-www-form-urlencoded", body: "fruit=apple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, basket, _ := setupTestRouter(t)

			req := httptest.NewRequest(http.MethodPost, tt.target, bytes.NewBufferString(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			var resp map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["fruit added"] != "apple" {
				t.Fatalf("expected fruit added apple, got %v", resp)
			}
			if !slices.Equal(basket.List(), []string{"apple"}) {
				t.Fatalf("expected basket [apple], got %v", basket.List())
			}
		})
	}
}

func TestAddFruitMissingField(t *testing.T) {
	router, basket, _ := setupTestRouter(t)

	for _, body := range []string{"", "{}", "not json"} {
		req := httptest.NewRequest(http.MethodPost, "/add_fruits", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Fatalf("body %q: expected 422, got %d", body, rec.Code)
		}
		var resp validationResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.Detail == "" {
			t.Fatalf("body %q: expected validation detail, got %v (%v)", body, resp, err)
		}
	}
	if basket.Len() != 0 {
		t.Fatalf("expected empty basket, got %v", basket.List())
	}
}

func TestListFruits(t *testing.T) {
	router, basket, _ := setupTestRouter(t)
	_, _ = basket.Add("apple")
	_, _ = basket.Add("pear")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fruits", nil))

	var resp fruitsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !slices.Equal(resp.Fruits, []string{"apple", "pear"}) {
		t.Fatalf("unexpected fruits: %v", resp.Fruits)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router, _, clock := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "ok" || !resp.Timestamp.Equal(clock.Now()) {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/add_fruits?fruit=apple", nil)
	router.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		`appshell_http_requests_total{backend="hypercorn",method="POST",route="/add_fruits",status="200"} 1`,
		"appshell_fruits 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected metrics to contain %q", want)
		}
	}
}

func TestUnknownRouteReturnsNotFound(t *testing.T) {
	router, _, _ := setupTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestExtractFruit(t *testing.T) {
	tests := []struct {
		query, contentType, body, want string
	}{
		{query: " kiwi ", want: "kiwi"},
		{query: "kiwi", contentType: "application/json", body: `{"fruit":"pear"}`, want: "kiwi"},
		{contentType: "application/json; charset=utf-8", body: `{"fruit":" pear "}`, want: "pear"},
		{contentType: "", body: `{"fruit":"plum"}`, want: "plum"},
		{contentType: "application/x-www-form-urlencoded", body: "fruit=fig&x=1", want: "fig"},
		{contentType: "application/x-www-form-urlencoded", body: "%zz", want: ""},
	}

	for _, tt := range tests {
		if got := extractFruit(tt.query, tt.contentType, []byte(tt.body)); got != tt.want {
			t.Fatalf("extractFruit(%q, %q, %q) = %q, want %q", tt.query, tt.contentType, tt.body, got, tt.want)
		}
	}
}
