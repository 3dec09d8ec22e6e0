// SPDX-License-Identifier: Apache-2.0

// Package executors provides the collaborators the orchestrator calls:
// HTTP clients for remote LLM, tool and translation services, and
// deterministic stubs for local runs.
package executors

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	headerSignature   = "X-Signature"
	defaultTimeout    = 30 * time.Second
	maxResponseBytes  = 4 << 20
	errorSnippetBytes = 512
)

var ErrCollaboratorStatus = errors.New("collaborator returned non-2xx status")

// HTTPConfig is shared by the HTTP collaborators. A non-empty Secret signs
// every request body with HMAC-SHA256 in the X-Signature header.
type HTTPConfig struct {
	Endpoint string
	Secret   string
	Timeout  time.Duration
	Client   *http.Client
	Logger   *slog.Logger
}

type httpCaller struct {
	endpoint string
	secret   string
	client   *http.Client
	logger   *slog.Logger
}

func newHTTPCaller(cfg HTTPConfig) *httpCaller {
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &httpCaller{
		endpoint: strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/"),
		secret:   cfg.Secret,
		client:   client,
		logger:   logger,
	}
}

// post sends payload as JSON to endpoint+path and decodes a 2xx response
// into out. A single attempt is made; retries belong to the caller.
func (c *httpCaller) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := c.endpoint + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if signature := signPayload(c.secret, body); signature != "" {
		req.Header.Set(headerSignature, signature)
	}

	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("collaborator request failed", "url", url, "error", err)
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet := raw
		if len(snippet) > errorSnippetBytes {
			snippet = snippet[:errorSnippetBytes]
		}
		c.logger.Warn("collaborator failure",
			"url", url,
			"response_status", resp.StatusCode,
			"duration_ms", time.Since(started).Milliseconds(),
		)
		return fmt.Errorf("%w: %d: %s", ErrCollaboratorStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	c.logger.Debug("collaborator success",
		"url", url,
		"response_status", resp.StatusCode,
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func signPayload(secret string, payload []byte) string {
	if strings.TrimSpace(secret) == "" {
		return ""
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
