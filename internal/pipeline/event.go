package pipeline

import (
	"encoding/json"
	"time"
)

// Status is the pipeline state carried by a progress event.
type Status string

const (
	StatusPending    Status = "pending"
	StatusAnalyzing  Status = "analyzing"
	StatusOptimizing Status = "optimizing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Event is the unit of the streaming protocol. One run produces an ordered
// sequence of events with non-decreasing progress, ending in exactly one
// terminal event (completed or failed).
type Event struct {
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Progress int    `json:"progress"`
	Data     any    `json:"data,omitempty"`
}

// Terminal reports whether the event ends the run.
func (e Event) Terminal() bool {
	return e.Status == StatusCompleted || e.Status == StatusFailed
}

// FormatSSE renders the event as a server-sent-events frame:
// a single data line holding the JSON-encoded event, terminated by a blank
// line.
func FormatSSE(e Event) string {
	b, err := json.Marshal(e)
	if err != nil {
		// Event payloads are built from marshalable values; an encoding
		// failure here indicates a programming error, reported in-stream.
		b, _ = json.Marshal(Event{
			Status:  StatusFailed,
			Message: "failed to encode event: " + err.Error(),
		})
	}
	return "data: " + string(b) + "\n\n"
}

// OptimizationResult is the final payload inside the terminal completed
// event. The ID is a fresh opaque identifier per run; nothing here is
// persisted beyond the event that carries it.
type OptimizationResult struct {
	ID              string          `json:"id"`
	URL             string          `json:"url"`
	Keywords        []string        `json:"keywords"`
	Location        string          `json:"location"`
	CurrentRankings map[string]*int `json:"current_rankings"`
	Competitors     []string        `json:"competitors"`
	Recommendations []string        `json:"recommendations"`
	Analysis        string          `json:"analysis"`
	CreatedAt       time.Time       `json:"created_at"`
	CompletedAt     time.Time       `json:"completed_at"`
}
