package server

import (
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/rankpilot/rankpilot/internal/pipeline"
)

// handleOptimize validates the request, then streams pipeline progress as
// server-sent events. Validation failures are plain JSON errors; once the
// stream starts, failures arrive in-band as a terminal failed event.
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req pipeline.Request
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for ev := range s.deps.Pipeline.Run(ctx, req) {
		if _, err := io.WriteString(w, pipeline.FormatSSE(ev)); err != nil {
			s.logger.Info("optimize stream write failed, client gone",
				zap.String("url", req.URL), zap.Error(err))
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleOptimizeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             "ok",
		"openai_configured":  s.deps.OpenAIConfigured,
		"serpapi_configured": s.deps.SerpAPIConfigured,
	})
}
