package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rankpilot/rankpilot/pkg/httpclient"
)

const (
	defaultModel = "gpt-4o"
	// maxToolRounds bounds the tool-calling loop so a confused model cannot
	// spin forever.
	maxToolRounds = 10
)

// ensure OpenAIRunner implements Runner
var _ Runner = (*OpenAIRunner)(nil)

// OpenAIConfig configures the chat-completions runner.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIRunner executes roles against an OpenAI-compatible chat-completions
// endpoint, driving the function-calling loop for tool-equipped roles.
type OpenAIRunner struct {
	cfg    OpenAIConfig
	client *httpclient.Client
	logger *zap.Logger
}

// NewOpenAIRunner creates a runner. The API key is required.
func NewOpenAIRunner(cfg OpenAIConfig, logger *zap.Logger) (*OpenAIRunner, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("agent: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := httpclient.New(httpclient.Config{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("agent: create client: %w", err)
	}

	return &OpenAIRunner{cfg: cfg, client: client, logger: logger}, nil
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function toolCallFunction `json:"function"`
}

type toolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type toolSpec struct {
	Type     string           `json:"type"`
	Function toolSpecFunction `json:"function"`
}

type toolSpecFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolSpec    `json:"tools,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Run executes the role's instruction profile against the input, resolving
// tool calls until the model produces a final text answer. Handoff targets
// are exposed to the model as transfer tools; a handoff runs the target role
// to completion and feeds its output back as the tool result.
func (r *OpenAIRunner) Run(ctx context.Context, role *Role, input string) (string, error) {
	tools := make(map[string]Tool, len(role.Tools)+len(role.Handoffs))
	specs := make([]toolSpec, 0, len(role.Tools)+len(role.Handoffs))

	for _, t := range role.Tools {
		tools[t.Name()] = t
		specs = append(specs, toolSpec{
			Type: "function",
			Function: toolSpecFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	for _, h := range role.Handoffs {
		t := &handoffTool{runner: r, target: h}
		tools[t.Name()] = t
		specs = append(specs, toolSpec{
			Type: "function",
			Function: toolSpecFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}

	messages := []chatMessage{
		{Role: "system", Content: role.Instructions},
		{Role: "user", Content: input},
	}

	model := role.Model
	if model == "" {
		model = r.cfg.Model
	}

	for round := 0; round < maxToolRounds; round++ {
		resp, err := r.complete(ctx, chatRequest{Model: model, Messages: messages, Tools: specs})
		if err != nil {
			return "", fmt.Errorf("agent: role %q: %w", role.Name, err)
		}

		msg := resp.Choices[0].Message
		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		messages = append(messages, msg)
		for _, call := range msg.ToolCalls {
			tool, ok := tools[call.Function.Name]
			if !ok {
				return "", fmt.Errorf("agent: role %q requested unknown tool %q", role.Name, call.Function.Name)
			}

			r.logger.Debug("tool call",
				zap.String("role", role.Name),
				zap.String("tool", call.Function.Name),
			)

			out, err := tool.Invoke(ctx, json.RawMessage(call.Function.Arguments))
			if err != nil {
				return "", fmt.Errorf("agent: tool %q: %w", call.Function.Name, err)
			}
			messages = append(messages, chatMessage{
				Role:       "tool",
				ToolCallID: call.ID,
				Content:    out,
			})
		}
	}

	return "", fmt.Errorf("agent: role %q exceeded %d tool rounds", role.Name, maxToolRounds)
}

func (r *OpenAIRunner) complete(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(r.cfg.BaseURL, "/")+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.client.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse response (status %d): %w", resp.StatusCode, err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("provider error: %s", parsed.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("provider returned no choices")
	}
	return &parsed, nil
}

// handoffTool lets one role delegate a task to another role mid-run.
type handoffTool struct {
	runner Runner
	target *Role
}

func (h *handoffTool) Name() string {
	return "transfer_to_" + sanitizeName(h.target.Name)
}

func (h *handoffTool) Description() string {
	return "Hand the task off to the " + h.target.Name + " and return its answer."
}

func (h *handoffTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"input": map[string]any{
				"type":        "string",
				"description": "The task or question to delegate.",
			},
		},
		"required": []string{"input"},
	}
}

func (h *handoffTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Input string `json:"input"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("invalid handoff arguments: %w", err)
	}
	return h.runner.Run(ctx, h.target, params.Input)
}

func sanitizeName(name string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}
