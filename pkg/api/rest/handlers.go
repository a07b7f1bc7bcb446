package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/vector/pkg/index"
	"github.com/therealutkarshpriyadarshi/vector/pkg/observability"
)

// Handler wraps a K5 Streamer and translates HTTP requests into the
// Add/Search/Delete calls of pkg/index. Grounded on the teacher's own
// Handler-wraps-backend split (pkg/api/rest/handlers.go originally wrapped
// a gRPC client the same way this wraps the in-process Streamer).
type Handler struct {
	streamer *index.Streamer
	log      *observability.Logger
	metrics  *observability.Metrics
}

// NewHandler creates a new REST API handler bound to an already-Opened
// Streamer. log/metrics may be nil, in which case a default logger is used
// and metric recording is skipped, matching pkg/index's own nil-tolerant
// constructors.
func NewHandler(streamer *index.Streamer, log *observability.Logger, metrics *observability.Metrics) *Handler {
	if log == nil {
		log = observability.NewDefaultLogger()
	}
	return &Handler{streamer: streamer, log: log.WithField("component", "rest.handler"), metrics: metrics}
}

// HealthCheck handles GET /v1/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]interface{}{
		"status": "ok",
		"state":  h.streamer.State().String(),
	}, http.StatusOK)
}

// GetStats handles GET /v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]interface{}{
		"state":      h.streamer.State().String(),
		"checkpoint": h.streamer.Checkpoint(),
	}, http.StatusOK)
}

// insertRequest is the JSON body of POST /v1/vectors.
type insertRequest struct {
	Key    uint64    `json:"key"`
	Vector []float32 `json:"vector"`
}

type insertResponse struct {
	Success bool   `json:"success"`
	ID      uint32 `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Insert handles POST /v1/vectors
func (h *Handler) Insert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	id, err := h.streamer.Add(req.Key, req.Vector)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordError("Insert", "add_failed")
		}
		h.log.Warn("insert failed", map[string]interface{}{"key": req.Key, "error": err.Error()})
		writeJSON(w, insertResponse{Success: false, Error: err.Error()}, http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordInsert("default", 1)
	}
	writeJSON(w, insertResponse{Success: true, ID: uint32(id)}, http.StatusCreated)
}

// searchRequest is the JSON body of POST /v1/vectors/search.
type searchRequest struct {
	Vector []float32 `json:"vector"`
	K      int       `json:"k"`
	Ef     int       `json:"ef"`
}

type searchResultJSON struct {
	Key      uint64  `json:"key"`
	Distance float32 `json:"distance"`
}

type searchResponse struct {
	Results []searchResultJSON `json:"results"`
	Error   string             `json:"error,omitempty"`
}

// Search handles POST /v1/vectors/search
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.K <= 0 {
		req.K = 10
	}
	if req.Ef <= 0 {
		req.Ef = req.K
	}

	start := time.Now()
	results, err := h.streamer.Search(req.Vector, req.K, req.Ef)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordError("Search", "search_failed")
		}
		writeJSON(w, searchResponse{Error: err.Error()}, http.StatusInternalServerError)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordSearch(time.Since(start), len(results))
	}

	out := make([]searchResultJSON, len(results))
	for i, r := range results {
		out[i] = searchResultJSON{Key: r.Key, Distance: r.Distance}
	}
	writeJSON(w, searchResponse{Results: out}, http.StatusOK)
}

type deleteRequest struct {
	Key uint64 `json:"key"`
}

type deleteResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Delete handles DELETE /v1/vectors/{key} and POST /v1/vectors/delete
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	var key uint64

	switch r.Method {
	case http.MethodDelete:
		path := strings.TrimPrefix(r.URL.Path, "/v1/vectors/")
		parsed, err := strconv.ParseUint(path, 10, 64)
		if err != nil {
			writeError(w, "Invalid URL format, expected /v1/vectors/{key}", http.StatusBadRequest)
			return
		}
		key = parsed
	case http.MethodPost:
		var req deleteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
			return
		}
		key = req.Key
	default:
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.streamer.Delete(key); err != nil {
		if h.metrics != nil {
			h.metrics.RecordError("Delete", "delete_failed")
		}
		writeJSON(w, deleteResponse{Success: false, Error: err.Error()}, http.StatusInternalServerError)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordDelete("default", 1)
	}
	writeJSON(w, deleteResponse{Success: true}, http.StatusOK)
}

// BatchInsert handles POST /v1/vectors/batch: a JSON array of
// insertRequest, each added independently and in order within this
// request. Streamer.Add holds only the Streamer's shared lock, so adds
// from concurrent requests may run in parallel.
func (h *Handler) BatchInsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var requests []insertRequest
	if err := json.NewDecoder(r.Body).Decode(&requests); err != nil {
		writeError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	start := time.Now()
	results := make([]insertResponse, len(requests))
	inserted := 0
	for i, req := range requests {
		id, err := h.streamer.Add(req.Key, req.Vector)
		if err != nil {
			results[i] = insertResponse{Success: false, Error: err.Error()}
			continue
		}
		results[i] = insertResponse{Success: true, ID: uint32(id)}
		inserted++
	}
	if h.metrics != nil {
		h.metrics.RecordBatchInsert(time.Since(start), inserted)
	}

	writeJSON(w, results, http.StatusCreated)
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, fmt.Sprintf("Failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"status": statusCode,
	})
}

// ServeDocs serves the OpenAPI/Swagger documentation
func ServeDocs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	content, err := os.ReadFile("docs/api/openapi.yaml")
	if err != nil {
		writeError(w, "OpenAPI spec not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(content)
}

// ServeSwaggerUI serves the Swagger UI HTML page
func ServeSwaggerUI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	html := `<!DOCTYPE html>
<html>
<head>
    <title>Vector DB API Documentation</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: "/docs/openapi.yaml",
                dom_id: '#swagger-ui',
                presets: [
                    SwaggerUIBundle.presets.apis,
                    SwaggerUIBundle.SwaggerUIStandalonePreset
                ],
                layout: "BaseLayout"
            });
        };
    </script>
</body>
</html>`

	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(html))
}

// ParseIntQuery parses an integer query parameter
func ParseIntQuery(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}
