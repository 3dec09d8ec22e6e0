// SPDX-License-Identifier: Apache-2.0

package domain

type RuleType string

const (
	RuleFormat  RuleType = "format"
	RuleContent RuleType = "content"
	RuleSchema  RuleType = "schema"
	RuleCustom  RuleType = "custom"
)

// Rule is a validation rule descriptor. Rule holds the rule expression whose
// syntax depends on Type.
type Rule struct {
	Type         RuleType `json:"type" yaml:"type"`
	Rule         string   `json:"rule" yaml:"rule"`
	ErrorMessage string   `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}
