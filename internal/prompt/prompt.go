// SPDX-License-Identifier: Apache-2.0

// Package prompt resolves {name} placeholders in prompt templates.
package prompt

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/valyala/fasttemplate"
)

const (
	startTag = "{"
	endTag   = "}"
)

// Interpolate replaces every {name} in template with the stringified value of
// results[name], falling back to variables[name]. Unknown placeholders are
// left untouched. Substitution is literal and single-pass, so values that
// themselves contain braces are never expanded again.
func Interpolate(template string, variables map[string]any, results map[string]any) string {
	return fasttemplate.ExecuteFuncString(template, startTag, endTag, func(w io.Writer, tag string) (int, error) {
		prefix, name := splitTag(tag)
		if v, ok := results[name]; ok {
			return io.WriteString(w, prefix+Stringify(v))
		}
		if v, ok := variables[name]; ok {
			return io.WriteString(w, prefix+Stringify(v))
		}
		return io.WriteString(w, prefix+startTag+name+endTag)
	})
}

// Placeholders lists the distinct placeholder names of template in order of
// first appearance.
func Placeholders(template string) []string {
	seen := make(map[string]struct{})
	var out []string
	fasttemplate.ExecuteFunc(template, startTag, endTag, io.Discard, func(_ io.Writer, tag string) (int, error) {
		_, name := splitTag(tag)
		if !validName(name) {
			return 0, nil
		}
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			out = append(out, name)
		}
		return 0, nil
	})
	return out
}

// splitTag separates "{{name}" style input into the literal text before the
// innermost opening brace and the placeholder name after it.
func splitTag(tag string) (string, string) {
	i := strings.LastIndex(tag, startTag)
	if i < 0 {
		return "", tag
	}
	return startTag + tag[:i], tag[i+len(startTag):]
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	return strings.IndexFunc(name, func(r rune) bool {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return false
		case r == '_' || r == '.' || r == '-':
			return false
		}
		return true
	}) < 0
}

// Stringify renders strings verbatim and everything else as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.RawMessage:
		var decoded any
		if err := json.Unmarshal(t, &decoded); err == nil {
			if s, ok := decoded.(string); ok {
				return s
			}
		}
		return string(t)
	case fmt.Stringer:
		return t.String()
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}
