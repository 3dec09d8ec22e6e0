// SPDX-License-Identifier: Apache-2.0

package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type StepKind string

const (
	StepLLM         StepKind = "llm"
	StepTool        StepKind = "tool"
	StepDecision    StepKind = "decision"
	StepValidation  StepKind = "validation"
	StepTranslation StepKind = "translation"
)

// StepConfig is the kind-specific payload of a step. The set of variants is
// closed: LLMConfig, ToolConfig, DecisionConfig, ValidationConfig and
// TranslationConfig.
type StepConfig interface {
	Kind() StepKind
	sealedStepConfig()
}

type LLMConfig struct {
	Model        string  `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature  float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Prompt       string  `json:"prompt" yaml:"prompt"`
	SystemPrompt string  `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
}

type ToolConfig struct {
	Tool   string         `json:"tool" yaml:"tool"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

type DecisionConfig struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

type ValidationConfig struct {
	Rules []Rule `json:"rules" yaml:"rules"`
}

// TranslationConfig describes a translation step. TargetLanguage wins over
// whatever language the prompt names.
type TranslationConfig struct {
	Prompt         string   `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Tools          []string `json:"tools,omitempty" yaml:"tools,omitempty"`
	TargetLanguage string   `json:"target_language,omitempty" yaml:"target_language,omitempty"`
}

func (LLMConfig) Kind() StepKind         { return StepLLM }
func (ToolConfig) Kind() StepKind        { return StepTool }
func (DecisionConfig) Kind() StepKind    { return StepDecision }
func (ValidationConfig) Kind() StepKind  { return StepValidation }
func (TranslationConfig) Kind() StepKind { return StepTranslation }

func (LLMConfig) sealedStepConfig()         {}
func (ToolConfig) sealedStepConfig()        {}
func (DecisionConfig) sealedStepConfig()    {}
func (ValidationConfig) sealedStepConfig()  {}
func (TranslationConfig) sealedStepConfig() {}

// DecodeStepConfig builds the config variant for kind, filling it through
// decode (json.Unmarshal or yaml.Node.Decode bound to the raw payload).
func DecodeStepConfig(kind StepKind, decode func(v any) error) (StepConfig, error) {
	switch kind {
	case StepLLM:
		var cfg LLMConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case StepTool:
		var cfg ToolConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case StepDecision:
		var cfg DecisionConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case StepValidation:
		var cfg ValidationConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case StepTranslation:
		var cfg TranslationConfig
		if err := decode(&cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStepKind, kind)
	}
}

type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Step is one unit of work inside a chain. Dependencies name other step ids
// of the same chain; they are only checked when the chain executes.
type Step struct {
	ID           string
	Config       StepConfig
	Dependencies []string
	Timeout      time.Duration
	Retry        RetryPolicy
	// Compensation is invoked with the step output when a rollback chain
	// aborts after this step completed.
	Compensation *ToolConfig
}

// Kind returns the kind of the step config, or "" when no config is set.
func (s Step) Kind() StepKind {
	if s.Config == nil {
		return ""
	}
	return s.Config.Kind()
}

type retryPolicyDocument struct {
	MaxRetries  int   `json:"max_retries" yaml:"max_retries"`
	BaseDelayMS int64 `json:"base_delay_ms" yaml:"base_delay_ms"`
	MaxDelayMS  int64 `json:"max_delay_ms" yaml:"max_delay_ms"`
}

type stepDocument struct {
	ID           string              `json:"id"`
	Kind         StepKind            `json:"kind"`
	Config       json.RawMessage     `json:"config,omitempty"`
	Dependencies []string            `json:"dependencies"`
	TimeoutMS    int64               `json:"timeout_ms,omitempty"`
	RetryPolicy  retryPolicyDocument `json:"retry_policy"`
	Compensation *ToolConfig         `json:"compensation,omitempty"`
}

func (p RetryPolicy) document() retryPolicyDocument {
	return retryPolicyDocument{
		MaxRetries:  p.MaxRetries,
		BaseDelayMS: p.BaseDelay.Milliseconds(),
		MaxDelayMS:  p.MaxDelay.Milliseconds(),
	}
}

func (d retryPolicyDocument) policy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: d.MaxRetries,
		BaseDelay:  time.Duration(d.BaseDelayMS) * time.Millisecond,
		MaxDelay:   time.Duration(d.MaxDelayMS) * time.Millisecond,
	}
}

func (s Step) MarshalJSON() ([]byte, error) {
	doc := stepDocument{
		ID:           s.ID,
		Kind:         s.Kind(),
		Dependencies: s.Dependencies,
		TimeoutMS:    s.Timeout.Milliseconds(),
		RetryPolicy:  s.Retry.document(),
		Compensation: s.Compensation,
	}
	if doc.Dependencies == nil {
		doc.Dependencies = []string{}
	}
	if s.Config != nil {
		raw, err := json.Marshal(s.Config)
		if err != nil {
			return nil, err
		}
		doc.Config = raw
	}
	return json.Marshal(doc)
}

func (s *Step) UnmarshalJSON(data []byte) error {
	var doc stepDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}

	// A step without kind or config is kept as is and rejected when executed.
	var cfg StepConfig
	if doc.Kind != "" || len(doc.Config) > 0 {
		raw := doc.Config
		if len(raw) == 0 {
			raw = json.RawMessage(`{}`)
		}
		decoded, err := DecodeStepConfig(doc.Kind, func(v any) error {
			return json.Unmarshal(raw, v)
		})
		if err != nil {
			return fmt.Errorf("step %q: %w", doc.ID, err)
		}
		cfg = decoded
	}

	*s = Step{
		ID:           doc.ID,
		Config:       cfg,
		Dependencies: doc.Dependencies,
		Timeout:      time.Duration(doc.TimeoutMS) * time.Millisecond,
		Retry:        doc.RetryPolicy.policy(),
		Compensation: doc.Compensation,
	}
	return nil
}
