package server

import (
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

type pageFetchRequest struct {
	URL string `json:"url"`
}

type pageFetchResponse struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Status  string `json:"status"`
}

// handlePageFetch runs the one-step page-fetcher role synchronously: the
// agent fetches the URL with its tool and summarizes what it found.
func (s *Server) handlePageFetch(w http.ResponseWriter, r *http.Request) {
	var req pageFetchRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	u, err := url.Parse(req.URL)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		writeError(w, http.StatusBadRequest, "url must be a well-formed absolute http(s) URL")
		return
	}

	input := fmt.Sprintf("Fetch the content from this URL and summarize what the page contains: %s", req.URL)
	content, err := s.deps.Runner.Run(r.Context(), s.deps.PageFetcher, input)
	if err != nil {
		s.logger.Warn("page fetch failed", zap.String("url", req.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "page fetch failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, pageFetchResponse{
		URL:     req.URL,
		Content: content,
		Status:  "success",
	})
}

func (s *Server) handlePageFetchHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"openai_configured": s.deps.OpenAIConfigured,
	})
}
