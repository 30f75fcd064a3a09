// Package llm handles reasoning-provider communication, structured-opinion
// response validation, and the single repair attempt. The pipeline never
// implements or guarantees the reasoning capability itself; it only enforces
// the (instruction, context) → structured record contract.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/dshills/tribunal/internal/schema"
)

// ErrInvalidModelOutput is returned when both the initial and repair
// responses fail validation.
var ErrInvalidModelOutput = errors.New("llm: invalid model output after repair attempt")

// Provider is the interface for reasoning backends.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int, temperature float64) (string, error)
}

// NewProvider is the factory for creating providers. It is a package-level
// variable so tests can replace it with a mock without modifying the call
// site. Tests must restore the original value; use t.Cleanup to do so safely.
var NewProvider func(providerName, model string) (Provider, error) = defaultNewProvider

// Options configures an opinion request.
type Options struct {
	Provider    string
	Model       string
	MaxTokens   int
	Temperature float64
}

// ValidationError records a single validation failure on a model response.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// RequestOpinion sends the prompts to the provider, validates the response
// as a schema.Opinion, and performs one repair attempt if validation fails.
func RequestOpinion(ctx context.Context, p Provider, systemPrompt, userPrompt string, opts Options) (schema.Opinion, error) {
	raw, err := p.Complete(ctx, systemPrompt, userPrompt, opts.MaxTokens, opts.Temperature)
	if err != nil {
		return schema.Opinion{}, fmt.Errorf("llm: complete: %w", err)
	}

	opinion, errs := ValidateOpinion(raw)
	if len(errs) == 0 {
		return opinion, nil
	}

	// One repair attempt: include the invalid response and the errors so the
	// model has full context.
	raw2, err := p.Complete(ctx, systemPrompt, buildRepairPrompt(userPrompt, raw, errs), opts.MaxTokens, opts.Temperature)
	if err != nil {
		return schema.Opinion{}, fmt.Errorf("llm: repair complete: %w", err)
	}
	opinion, errs = ValidateOpinion(raw2)
	if len(errs) == 0 {
		return opinion, nil
	}
	return schema.Opinion{}, ErrInvalidModelOutput
}

// ValidateOpinion parses and validates a raw model response.
// Leading/trailing markdown fences are stripped and invalid JSON escapes
// sanitized before parsing.
func ValidateOpinion(raw string) (schema.Opinion, []ValidationError) {
	raw = stripMarkdownFences(raw)

	var opinion schema.Opinion
	if err := json.Unmarshal([]byte(raw), &opinion); err != nil {
		fixed := fixInvalidJSONEscapes(raw)
		if err2 := json.Unmarshal([]byte(fixed), &opinion); err2 != nil {
			return schema.Opinion{}, []ValidationError{{Field: "json_parse", Message: err.Error()}}
		}
	}

	if err := opinion.Validate(); err != nil {
		return schema.Opinion{}, []ValidationError{{Field: "opinion", Message: err.Error()}}
	}
	return opinion, nil
}

// fenceRe matches a markdown code fence block (``` or ~~~) with an optional
// language tag and captures the content between the fences. The content
// group uses `.*?` (not `.+?`) to allow empty bodies inside fences.
var fenceRe = regexp.MustCompile("(?s)^(?:`{3}|~{3})[^\\n]*\\n(.*?)(?:`{3}|~{3})\\s*$")

// openFenceRe matches only an opening fence line, used to strip orphaned
// opening fences from truncated responses.
var openFenceRe = regexp.MustCompile("^(?:`{3}|~{3})[^\\n]*\\n")

// stripMarkdownFences removes leading/trailing markdown code fences that
// models sometimes wrap around JSON output.
func stripMarkdownFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	if loc := openFenceRe.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[loc[1]:])
	}
	return s
}

// invalidJSONEscapeRe matches a backslash followed by any character that is
// not a valid JSON string escape. Models sometimes emit regex patterns
// (e.g. \d+) unescaped inside JSON strings.
var invalidJSONEscapeRe = regexp.MustCompile(`\\([^"\\/bfnrtu])`)

// fixInvalidJSONEscapes replaces invalid JSON escape sequences in s with
// their correctly double-escaped equivalents.
func fixInvalidJSONEscapes(s string) string {
	return invalidJSONEscapeRe.ReplaceAllString(s, `\\$1`)
}

// buildRepairPrompt constructs the repair message, including the original
// prompt and the previous invalid response.
func buildRepairPrompt(originalUserPrompt, previousResponse string, errs []ValidationError) string {
	var sb strings.Builder
	sb.WriteString(originalUserPrompt)
	sb.WriteString("\n\nYour previous response was:\n")
	sb.WriteString(previousResponse)
	sb.WriteString("\n\nThat response was invalid. Errors:\n")
	for _, e := range errs {
		fmt.Fprintf(&sb, "  - %s\n", e.Error())
	}
	sb.WriteString("\nOutput only the corrected JSON opinion. Do not repeat the error.")
	return sb.String()
}
