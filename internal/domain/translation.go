// SPDX-License-Identifier: Apache-2.0

package domain

// TranslationRequest is what a translation step sends to its collaborator.
type TranslationRequest struct {
	Content            string `json:"content"`
	TargetLanguage     string `json:"target_language"`
	PreserveFormatting bool   `json:"preserve_formatting"`
}

type Translation struct {
	Text           string  `json:"translated_text"`
	SourceLanguage string  `json:"source_language"`
	Confidence     float64 `json:"confidence"`
}
