// SPDX-License-Identifier: Apache-2.0

package executors

import (
	"context"
	"encoding/json"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
)

type llmRequest struct {
	Prompt       string  `json:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Model        string  `json:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

type outputResponse struct {
	Output json.RawMessage `json:"output"`
}

// HTTPLLM posts the resolved prompt to {endpoint}/invoke and returns the
// "output" field of the reply.
type HTTPLLM struct {
	caller *httpCaller
}

func NewHTTPLLM(cfg HTTPConfig) *HTTPLLM {
	return &HTTPLLM{caller: newHTTPCaller(cfg)}
}

func (l *HTTPLLM) Invoke(ctx context.Context, prompt string, cfg domain.LLMConfig) (any, error) {
	var resp outputResponse
	if err := l.caller.post(ctx, "/invoke", llmRequest{
		Prompt:       prompt,
		SystemPrompt: cfg.SystemPrompt,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		MaxTokens:    cfg.MaxTokens,
	}, &resp); err != nil {
		return nil, err
	}
	return decodeOutput(resp.Output)
}

// StubLLM answers locally. The reply echoes the prompt so chains can be
// exercised end to end without a model.
type StubLLM struct{}

func (StubLLM) Invoke(ctx context.Context, prompt string, cfg domain.LLMConfig) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = "stub"
	}
	return map[string]any{
		"type":  "llm",
		"model": model,
		"text":  prompt,
	}, nil
}

func decodeOutput(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
