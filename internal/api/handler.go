package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/eugenenazirov/appshell/internal/metrics"
	"github.com/eugenenazirov/appshell/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const maxBodyBytes = 1 << 20

// Handler wires the basket and metrics into the API routes. The transport
// specific routers in this package share it.
type Handler struct {
	basket  storage.Basket
	metrics *metrics.Metrics

	clock func() time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMetrics records basket size and request metrics.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) {
		h.metrics = m
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(basket storage.Basket, opts ...HandlerOption) *Handler {
	h := &Handler{
		basket: basket,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// addFruit stores the fruit and returns the response status and payload.
func (h *Handler) addFruit(fruit string) (int, any) {
	if fruit == "" {
		return http.StatusUnprocessableEntity, validationResponse{Detail: "field required: fruit"}
	}

	added, err := h.basket.Add(fruit)
	if err != nil {
		if errors.Is(err, storage.ErrInvalidFruit) {
			return http.StatusUnprocessableEntity, validationResponse{Detail: err.Error()}
		}
		return http.StatusInternalServerError, errorResponse{Error: "Internal error", Details: err.Error()}
	}
	h.metrics.SetFruits(h.basket.Len())

	return http.StatusOK, addFruitResponse{FruitAdded: added}
}

func (h *Handler) listFruits() fruitsResponse {
	return fruitsResponse{Fruits: h.basket.List()}
}

func (h *Handler) health() healthResponse {
	return healthResponse{Status: "ok", Timestamp: h.clock()}
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, docsPath, http.StatusTemporaryRedirect)
}

func (h *Handler) handleDocs(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(docsPage)
}

func (h *Handler) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openAPIDocument)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.health())
}

func (h *Handler) handleListFruits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.listFruits())
}

func (h *Handler) handleAddFruit(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to read request body")
		return
	}

	fruit := extractFruit(r.URL.Query().Get("fruit"), r.Header.Get("Content-Type"), body)
	status, payload := h.addFruit(fruit)
	writeJSON(w, status, payload)
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

// extractFruit takes the fruit from the query string, then from a JSON or
// form body, in that order.
func extractFruit(query, contentType string, body []byte) string {
	if fruit := strings.TrimSpace(query); fruit != "" {
		return fruit
	}
	if len(body) == 0 {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	switch mediaType {
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return ""
		}
		return strings.TrimSpace(values.Get("fruit"))
	default:
		var req addFruitRequest
		if err := json.Unmarshal(body, &req); err != nil {
			return ""
		}
		return strings.TrimSpace(req.Fruit)
	}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type addFruitRequest struct {
	Fruit string `json:"fruit"`
}

type addFruitResponse struct {
	FruitAdded string `json:"fruit added"`
}

type fruitsResponse struct {
	Fruits []string `json:"fruits"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type validationResponse struct {
	Detail string `json:"detail"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string) {
	writeJSON(w, status, errorResponse{Error: message, Details: details})
}
