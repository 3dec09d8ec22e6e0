// SPDX-License-Identifier: Apache-2.0

package executors

import (
	"context"
	"net/url"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
)

type toolRequest struct {
	Tool   string         `json:"tool"`
	Input  any            `json:"input"`
	Params map[string]any `json:"params,omitempty"`
}

// HTTPTools posts tool calls to {endpoint}/tools/{name}.
type HTTPTools struct {
	caller *httpCaller
}

func NewHTTPTools(cfg HTTPConfig) *HTTPTools {
	return &HTTPTools{caller: newHTTPCaller(cfg)}
}

func (t *HTTPTools) Invoke(ctx context.Context, tool string, input any, cfg domain.ToolConfig) (any, error) {
	var resp outputResponse
	if err := t.caller.post(ctx, "/tools/"+url.PathEscape(tool), toolRequest{
		Tool:   tool,
		Input:  input,
		Params: cfg.Params,
	}, &resp); err != nil {
		return nil, err
	}
	return decodeOutput(resp.Output)
}

// StubTools reports the call back as its output.
type StubTools struct{}

func (StubTools) Invoke(ctx context.Context, tool string, input any, cfg domain.ToolConfig) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := map[string]any{
		"type":  "tool",
		"tool":  tool,
		"input": input,
	}
	if len(cfg.Params) > 0 {
		out["params"] = cfg.Params
	}
	return out, nil
}
