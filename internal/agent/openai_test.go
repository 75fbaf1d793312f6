package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// scriptedLLM serves canned chat-completion responses in order.
type scriptedLLM struct {
	t         *testing.T
	responses []string
	requests  []chatRequest
}

func (s *scriptedLLM) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			s.t.Errorf("expected bearer auth, got %q", got)
		}
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.t.Fatalf("decode request: %v", err)
		}
		s.requests = append(s.requests, req)

		if len(s.responses) == 0 {
			s.t.Fatal("no scripted responses left")
		}
		resp := s.responses[0]
		s.responses = s.responses[1:]
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}
}

func textResponse(content string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":%q},"finish_reason":"stop"}]}`, content)
}

func toolCallResponse(id, name, args string) string {
	return fmt.Sprintf(`{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":%q,"type":"function","function":{"name":%q,"arguments":%q}}]},"finish_reason":"tool_calls"}]}`, id, name, args)
}

type echoTool struct {
	invoked bool
	args    string
}

func (e *echoTool) Name() string        { return "echo" }
func (e *echoTool) Description() string { return "Echo the input back." }
func (e *echoTool) Parameters() map[string]any {
	return map[string]any{"type": "object", "properties": map[string]any{"text": map[string]any{"type": "string"}}}
}
func (e *echoTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	e.invoked = true
	e.args = string(args)
	return "echoed", nil
}

func newTestRunner(t *testing.T, llm *scriptedLLM) (*OpenAIRunner, func()) {
	t.Helper()
	ts := httptest.NewServer(llm.handler())
	runner, err := NewOpenAIRunner(OpenAIConfig{APIKey: "test-key", BaseURL: ts.URL}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return runner, ts.Close
}

func TestOpenAIRunner_PlainCompletion(t *testing.T) {
	llm := &scriptedLLM{t: t, responses: []string{textResponse("final answer")}}
	runner, done := newTestRunner(t, llm)
	defer done()

	role := &Role{Name: "Plain", Instructions: "Answer briefly."}
	out, err := runner.Run(context.Background(), role, "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "final answer" {
		t.Errorf("expected final answer, got %q", out)
	}

	req := llm.requests[0]
	if req.Messages[0].Role != "system" || req.Messages[0].Content != "Answer briefly." {
		t.Errorf("expected instructions as system message, got %+v", req.Messages[0])
	}
	if req.Messages[1].Role != "user" || req.Messages[1].Content != "hello" {
		t.Errorf("expected input as user message, got %+v", req.Messages[1])
	}
	if len(req.Tools) != 0 {
		t.Errorf("expected no tools for a pure role, got %d", len(req.Tools))
	}
}

func TestOpenAIRunner_ToolLoop(t *testing.T) {
	llm := &scriptedLLM{t: t, responses: []string{
		toolCallResponse("call_1", "echo", `{"text":"hi"}`),
		textResponse("used the tool"),
	}}
	runner, done := newTestRunner(t, llm)
	defer done()

	tool := &echoTool{}
	role := &Role{Name: "Tooling", Instructions: "Use tools.", Tools: []Tool{tool}}

	out, err := runner.Run(context.Background(), role, "go")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "used the tool" {
		t.Errorf("expected final output after tool round, got %q", out)
	}
	if !tool.invoked {
		t.Fatal("expected tool to be invoked")
	}

	// Second request must carry the assistant tool call and the tool result.
	second := llm.requests[1]
	var sawToolResult bool
	for _, m := range second.Messages {
		if m.Role == "tool" && m.ToolCallID == "call_1" && m.Content == "echoed" {
			sawToolResult = true
		}
	}
	if !sawToolResult {
		t.Errorf("expected tool result message in follow-up request, got %+v", second.Messages)
	}
}

func TestOpenAIRunner_Handoff(t *testing.T) {
	llm := &scriptedLLM{t: t, responses: []string{
		toolCallResponse("call_1", "transfer_to_seo_analyzer", `{"input":"analyze this"}`),
		textResponse("analyzer says: good"), // the delegated role's run
		textResponse("recommendation based on analysis"),
	}}
	runner, done := newTestRunner(t, llm)
	defer done()

	analyzer := &Role{Name: "SEO Analyzer", Instructions: "Analyze."}
	optimizer := &Role{Name: "SEO Optimizer", Instructions: "Optimize.", Handoffs: []*Role{analyzer}}

	out, err := runner.Run(context.Background(), optimizer, "optimize this site")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "recommendation based on analysis" {
		t.Errorf("unexpected output %q", out)
	}

	// The delegated run is its own completion with the analyzer instructions.
	if len(llm.requests) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(llm.requests))
	}
	if llm.requests[1].Messages[0].Content != "Analyze." {
		t.Errorf("expected handoff to run the analyzer role, got %+v", llm.requests[1].Messages[0])
	}
}

func TestOpenAIRunner_ProviderError(t *testing.T) {
	llm := &scriptedLLM{t: t, responses: []string{`{"error":{"message":"rate limited","type":"rate_limit"}}`}}
	runner, done := newTestRunner(t, llm)
	defer done()

	_, err := runner.Run(context.Background(), &Role{Name: "X", Instructions: "y"}, "z")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestOpenAIRunner_UnknownTool(t *testing.T) {
	llm := &scriptedLLM{t: t, responses: []string{
		toolCallResponse("call_1", "not_a_tool", `{}`),
	}}
	runner, done := newTestRunner(t, llm)
	defer done()

	_, err := runner.Run(context.Background(), &Role{Name: "X", Instructions: "y"}, "z")
	if err == nil || !strings.Contains(err.Error(), "unknown tool") {
		t.Fatalf("expected unknown tool error, got %v", err)
	}
}

func TestOpenAIRunner_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIRunner(OpenAIConfig{}, nil); err == nil {
		t.Fatal("expected error when api key is missing")
	}
}
