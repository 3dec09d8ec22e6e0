// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/prompt"
)

const defaultTargetLanguage = "en"

// dispatch runs one attempt of step against its collaborator. It returns
// the input the collaborator saw alongside the output so the attempt can be
// audited.
func (o *Orchestrator) dispatch(ctx context.Context, r *run, step domain.Step) (any, any, error) {
	switch cfg := step.Config.(type) {
	case domain.LLMConfig:
		return o.invokeLLM(ctx, r, cfg)
	case domain.ToolConfig:
		return o.invokeTool(ctx, r, cfg)
	case domain.DecisionConfig:
		value := dependencyValue(r, step)
		out, err := o.decide(cfg, value)
		return value, out, err
	case domain.ValidationConfig:
		value := dependencyValue(r, step)
		out, err := o.validate(cfg, value)
		return value, out, err
	case domain.TranslationConfig:
		return o.translate(ctx, cfg, dependencyValue(r, step))
	default:
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedStepKind, step.Kind())
	}
}

// dependencyValue is the output of the first dependency, or the run input
// for a step without dependencies.
func dependencyValue(r *run, step domain.Step) any {
	if len(step.Dependencies) == 0 {
		return r.ec.Input
	}
	v, _ := r.ec.Result(step.Dependencies[0])
	return v
}

func (o *Orchestrator) invokeLLM(ctx context.Context, r *run, cfg domain.LLMConfig) (any, any, error) {
	resolved := r.ec.Interpolate(cfg.Prompt)
	if o.llm == nil {
		return resolved, nil, fmt.Errorf("%w: llm", ErrCollaboratorMissing)
	}

	cfg.Prompt = resolved
	cfg.SystemPrompt = r.ec.Interpolate(cfg.SystemPrompt)
	out, err := o.llm.Invoke(ctx, resolved, cfg)
	return resolved, out, err
}

func (o *Orchestrator) invokeTool(ctx context.Context, r *run, cfg domain.ToolConfig) (any, any, error) {
	if o.tools == nil {
		return r.ec.Input, nil, fmt.Errorf("%w: tool", ErrCollaboratorMissing)
	}
	out, err := o.tools.Invoke(ctx, cfg.Tool, r.ec.Input, cfg)
	return r.ec.Input, out, err
}

// decide applies the custom rules of a decision step; other rule types
// are not consulted.
func (o *Orchestrator) decide(cfg domain.DecisionConfig, value any) (any, error) {
	for _, rule := range cfg.Rules {
		if rule.Type != domain.RuleCustom {
			continue
		}
		if err := o.evaluate(rule, value); err != nil {
			return nil, err
		}
	}
	return map[string]any{"decision": "approved", "input": value}, nil
}

func (o *Orchestrator) validate(cfg domain.ValidationConfig, value any) (any, error) {
	for _, rule := range cfg.Rules {
		if err := o.evaluate(rule, value); err != nil {
			return nil, err
		}
	}
	return map[string]any{"validated": true, "input": value}, nil
}

// evaluate guarantees a failing rule surfaces as ErrValidationFailed
// whatever evaluator is plugged in.
func (o *Orchestrator) evaluate(rule domain.Rule, value any) error {
	err := o.rules.Evaluate(rule, value)
	if err == nil || errors.Is(err, domain.ErrValidationFailed) {
		return err
	}
	msg := rule.ErrorMessage
	if msg == "" {
		msg = err.Error()
	}
	return &domain.ValidationError{Rule: rule, Message: msg}
}

func (o *Orchestrator) translate(ctx context.Context, cfg domain.TranslationConfig, value any) (any, any, error) {
	req := domain.TranslationRequest{
		Content:            prompt.Stringify(value),
		TargetLanguage:     targetLanguage(cfg),
		PreserveFormatting: preserveFormatting(cfg.Tools),
	}
	if o.translator == nil {
		return req, nil, fmt.Errorf("%w: translator", ErrCollaboratorMissing)
	}

	tr, err := o.translator.Translate(ctx, req)
	if err != nil {
		return req, nil, err
	}
	return req, map[string]any{
		"translated_text":     tr.Text,
		"source_language":     tr.SourceLanguage,
		"target_language":     req.TargetLanguage,
		"confidence":          tr.Confidence,
		"preserve_formatting": req.PreserveFormatting,
	}, nil
}

var languagePattern = regexp.MustCompile(`(?i)\b(?:to|into)\s+(?:the\s+)?([a-z][a-z-]*)`)

// words that follow "to"/"into" without naming a language
var languageStopWords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "this": {}, "that": {}, "its": {}, "their": {}, "plain": {},
}

var languageCodes = map[string]string{
	"english":    "en",
	"spanish":    "es",
	"french":     "fr",
	"german":     "de",
	"italian":    "it",
	"portuguese": "pt",
	"dutch":      "nl",
	"russian":    "ru",
	"chinese":    "zh",
	"japanese":   "ja",
	"korean":     "ko",
	"arabic":     "ar",
	"hindi":      "hi",
	"turkish":    "tr",
	"polish":     "pl",
	"swedish":    "sv",
	"urdu":       "ur",
}

// targetLanguage prefers the configured language, then the first language
// named in the prompt ("... into French"), then English.
func targetLanguage(cfg domain.TranslationConfig) string {
	if lang := strings.TrimSpace(cfg.TargetLanguage); lang != "" {
		return normalizeLanguage(lang)
	}
	for _, m := range languagePattern.FindAllStringSubmatch(cfg.Prompt, -1) {
		word := strings.ToLower(m[1])
		if _, stop := languageStopWords[word]; stop {
			continue
		}
		return normalizeLanguage(word)
	}
	return defaultTargetLanguage
}

func normalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if code, ok := languageCodes[lang]; ok {
		return code
	}
	return lang
}

func preserveFormatting(tools []string) bool {
	for _, tool := range tools {
		switch strings.ToLower(strings.TrimSpace(tool)) {
		case "preserve_formatting", "preserve-formatting", "formatting":
			return true
		}
	}
	return false
}
