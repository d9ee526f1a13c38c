package server

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/hyperjump/hikaku/internal/vector"
	"go.uber.org/zap"
)

// handleCalculateDistances validates the request, embeds the reference and
// candidate texts, and responds with the cosine distance from the reference to
// each candidate in candidate order. Validation checks run in a fixed order;
// the first failure wins.
func (s *Server) handleCalculateDistances(w http.ResponseWriter, r *http.Request) {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		s.respondError(w, http.StatusBadRequest, "Content-Type must be application/json")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Invalid JSON format",
			"details": err.Error(),
		})
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		s.respondJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "Invalid JSON format",
			"details": err.Error(),
		})
		return
	}
	if fields == nil {
		s.respondError(w, http.StatusBadRequest, "Request body is empty or invalid JSON")
		return
	}

	refRaw, ok := fields["spec"]
	if !ok {
		s.respondError(w, http.StatusBadRequest, "Missing 'spec' field")
		return
	}
	candidatesRaw, ok := fields["candidates"]
	if !ok {
		s.respondError(w, http.StatusBadRequest, "Missing 'candidates' field")
		return
	}

	var reference string
	if isJSONNull(refRaw) || json.Unmarshal(refRaw, &reference) != nil {
		s.respondError(w, http.StatusBadRequest, "'spec' must be a string")
		return
	}

	var items []json.RawMessage
	if isJSONNull(candidatesRaw) || json.Unmarshal(candidatesRaw, &items) != nil {
		s.respondError(w, http.StatusBadRequest, "'candidates' must be a list")
		return
	}
	if len(items) == 0 {
		s.respondError(w, http.StatusBadRequest, "'candidates' list cannot be empty")
		return
	}

	candidates := make([]string, len(items))
	for i, item := range items {
		if isJSONNull(item) || json.Unmarshal(item, &candidates[i]) != nil {
			s.respondError(w, http.StatusBadRequest, "All items in 'candidates' must be strings")
			return
		}
	}

	ctx := r.Context()
	refVec, err := s.embedder.Embed(ctx, reference)
	if err != nil {
		s.respondInternalError(w, r, err)
		return
	}
	candVecs, err := s.embedder.EmbedBatch(ctx, candidates)
	if err != nil {
		s.respondInternalError(w, r, err)
		return
	}

	distances := make([]float64, len(candVecs))
	for i, v := range candVecs {
		distances[i] = vector.CosineDistance(refVec, v)
	}
	s.respondJSON(w, http.StatusOK, map[string][]float64{"distances": distances})
}

// handleHealth reports liveness and the resolved model identifier. No
// dependency checks beyond the process being up.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"model":  s.modelName,
	})
}

// respondInternalError logs the error and returns a 500 carrying its message.
// The service keeps serving subsequent requests.
func (s *Server) respondInternalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed",
		zap.String("request_id", requestIDFrom(r.Context())),
		zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, "Internal server error: "+err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// isJSONContentType reports whether the Content-Type header indicates a JSON
// payload (application/json or a +json suffix).
func isJSONContentType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

// isJSONNull reports whether the raw message is the JSON null literal.
// encoding/json leaves the target untouched on null, so a separate check is
// needed to reject it as a type mismatch.
func isJSONNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
