// SPDX-License-Identifier: Apache-2.0

package executors

import (
	"log/slog"
	"strings"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/orchestrator"
)

// Endpoints selects the remote collaborators. An empty endpoint falls back
// to the matching stub.
type Endpoints struct {
	LLM       string
	Tools     string
	Translate string
	Secret    string
	Timeout   time.Duration
}

type Collaborators struct {
	LLM        orchestrator.LLM
	Tools      orchestrator.ToolInvoker
	Translator orchestrator.Translator
}

func NewCollaborators(e Endpoints, logger *slog.Logger) Collaborators {
	if logger == nil {
		logger = slog.Default()
	}
	httpConfig := func(endpoint string) HTTPConfig {
		return HTTPConfig{
			Endpoint: endpoint,
			Secret:   e.Secret,
			Timeout:  e.Timeout,
			Logger:   logger,
		}
	}

	c := Collaborators{
		LLM:        StubLLM{},
		Tools:      StubTools{},
		Translator: StubTranslator{},
	}
	if endpoint := strings.TrimSpace(e.LLM); endpoint != "" {
		c.LLM = NewHTTPLLM(httpConfig(endpoint))
	}
	if endpoint := strings.TrimSpace(e.Tools); endpoint != "" {
		c.Tools = NewHTTPTools(httpConfig(endpoint))
	}
	if endpoint := strings.TrimSpace(e.Translate); endpoint != "" {
		c.Translator = NewHTTPTranslator(httpConfig(endpoint))
	}

	logger.Info("collaborators configured",
		"llm", describe(e.LLM),
		"tools", describe(e.Tools),
		"translate", describe(e.Translate),
	)
	return c
}

func describe(endpoint string) string {
	if strings.TrimSpace(endpoint) == "" {
		return "stub"
	}
	return "http"
}
