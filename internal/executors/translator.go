// SPDX-License-Identifier: Apache-2.0

package executors

import (
	"context"

	"github.com/Sohailahussien/AI-Chat-APP-sub000/internal/domain"
)

// HTTPTranslator posts to {endpoint}/translate and expects a
// domain.Translation shaped reply.
type HTTPTranslator struct {
	caller *httpCaller
}

func NewHTTPTranslator(cfg HTTPConfig) *HTTPTranslator {
	return &HTTPTranslator{caller: newHTTPCaller(cfg)}
}

func (t *HTTPTranslator) Translate(ctx context.Context, req domain.TranslationRequest) (domain.Translation, error) {
	var out domain.Translation
	if err := t.caller.post(ctx, "/translate", req, &out); err != nil {
		return domain.Translation{}, err
	}
	return out, nil
}

// StubTranslator returns the content unchanged.
type StubTranslator struct{}

func (StubTranslator) Translate(ctx context.Context, req domain.TranslationRequest) (domain.Translation, error) {
	if err := ctx.Err(); err != nil {
		return domain.Translation{}, err
	}
	return domain.Translation{
		Text:           req.Content,
		SourceLanguage: req.TargetLanguage,
		Confidence:     1,
	}, nil
}
