// SPDX-License-Identifier: Apache-2.0

// Package chainfile reads chain definitions from YAML (or JSON) documents.
package chainfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"gopkg.in/yaml.v3"
)

type document struct {
	Name        string           `yaml:"name"`
	Description string           `yaml:"description"`
	Workflow    workflowDocument `yaml:"workflow"`
	Steps       []stepDocument   `yaml:"steps"`
}

type workflowDocument struct {
	ParallelExecution bool   `yaml:"parallel_execution"`
	ErrorHandling     string `yaml:"error_handling"`
	Timeout           string `yaml:"timeout"`
	MaxConcurrency    int    `yaml:"max_concurrency"`
	AuditTrail        *bool  `yaml:"audit_trail"`
}

type retryDocument struct {
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
	MaxDelay   string `yaml:"max_delay"`
}

type stepDocument struct {
	ID           string             `yaml:"id"`
	Kind         string             `yaml:"kind"`
	Dependencies []string           `yaml:"dependencies"`
	Timeout      string             `yaml:"timeout"`
	Retry        retryDocument      `yaml:"retry_policy"`
	Config       yaml.Node          `yaml:"config"`
	Compensation *domain.ToolConfig `yaml:"compensation"`
}

// Parse decodes a chain definition. Durations use Go syntax ("250ms",
// "30s"). Step ids must be unique; the dependency graph is not checked.
func Parse(data []byte) (domain.ChainSpec, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.ChainSpec{}, fmt.Errorf("chainfile: definition is empty")
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return domain.ChainSpec{}, fmt.Errorf("chainfile: decode definition: %w", err)
	}

	workflow, err := doc.Workflow.config()
	if err != nil {
		return domain.ChainSpec{}, fmt.Errorf("chainfile: workflow: %w", err)
	}

	steps := make([]domain.Step, 0, len(doc.Steps))
	for i, sd := range doc.Steps {
		step, err := sd.step()
		if err != nil {
			return domain.ChainSpec{}, fmt.Errorf("chainfile: step %d (%s): %w", i, sd.ID, err)
		}
		steps = append(steps, step)
	}

	spec := domain.ChainSpec{
		Name:        strings.TrimSpace(doc.Name),
		Description: doc.Description,
		Steps:       steps,
		Workflow:    workflow,
	}
	if err := spec.Validate(); err != nil {
		return domain.ChainSpec{}, fmt.Errorf("chainfile: %w", err)
	}
	return spec, nil
}

func LoadReader(r io.Reader) (domain.ChainSpec, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return domain.ChainSpec{}, fmt.Errorf("chainfile: read definition: %w", err)
	}
	return Parse(content)
}

// LoadFile reads path, or standard input when path is "-".
func LoadFile(path string) (domain.ChainSpec, error) {
	if path == "-" {
		return LoadReader(os.Stdin)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.ChainSpec{}, fmt.Errorf("chainfile: read %s: %w", path, err)
	}
	spec, err := Parse(content)
	if err != nil {
		return domain.ChainSpec{}, fmt.Errorf("%s: %w", path, err)
	}
	return spec, nil
}

func (w workflowDocument) config() (domain.WorkflowConfig, error) {
	handling, err := domain.ParseErrorHandling(w.ErrorHandling)
	if err != nil {
		return domain.WorkflowConfig{}, err
	}
	timeout, err := parseDuration("timeout", w.Timeout)
	if err != nil {
		return domain.WorkflowConfig{}, err
	}
	if w.MaxConcurrency < 0 {
		return domain.WorkflowConfig{}, fmt.Errorf("max_concurrency must not be negative")
	}

	auditTrail := true
	if w.AuditTrail != nil {
		auditTrail = *w.AuditTrail
	}

	return domain.WorkflowConfig{
		ParallelExecution: w.ParallelExecution,
		ErrorHandling:     handling,
		Timeout:           timeout,
		MaxConcurrency:    w.MaxConcurrency,
		AuditTrail:        auditTrail,
	}, nil
}

func (s stepDocument) step() (domain.Step, error) {
	kind := domain.StepKind(strings.ToLower(strings.TrimSpace(s.Kind)))
	cfg, err := domain.DecodeStepConfig(kind, func(v any) error {
		if s.Config.Kind == 0 {
			return nil
		}
		return s.Config.Decode(v)
	})
	if err != nil {
		return domain.Step{}, err
	}

	timeout, err := parseDuration("timeout", s.Timeout)
	if err != nil {
		return domain.Step{}, err
	}
	base, err := parseDuration("retry_policy.base_delay", s.Retry.BaseDelay)
	if err != nil {
		return domain.Step{}, err
	}
	maxDelay, err := parseDuration("retry_policy.max_delay", s.Retry.MaxDelay)
	if err != nil {
		return domain.Step{}, err
	}
	if s.Retry.MaxRetries < 0 {
		return domain.Step{}, fmt.Errorf("retry_policy.max_retries must not be negative")
	}

	return domain.Step{
		ID:           strings.TrimSpace(s.ID),
		Config:       cfg,
		Dependencies: s.Dependencies,
		Timeout:      timeout,
		Retry: domain.RetryPolicy{
			MaxRetries: s.Retry.MaxRetries,
			BaseDelay:  base,
			MaxDelay:   maxDelay,
		},
		Compensation: s.Compensation,
	}, nil
}

func parseDuration(field, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
