package llm

import (
	"fmt"
	"strings"
)

// GuardrailsConfig controls pre-dispatch request validation. Zero values
// disable the corresponding check.
type GuardrailsConfig struct {
	MaxContentLength  int
	AllowedModels     []string
	AllowedFilters    []string
	EnforceJSONSchema bool
}

// ValidationResult collects every violation instead of stopping at the first.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

func (r ValidationResult) Error() string {
	return strings.Join(r.Errors, "; ")
}

// Guardrails validates request content before it reaches a provider.
type Guardrails struct {
	config GuardrailsConfig
}

func NewGuardrails(config GuardrailsConfig) *Guardrails {
	return &Guardrails{config: config}
}

func (g *Guardrails) ValidateContent(content string) ValidationResult {
	var errs []string
	if g.config.MaxContentLength > 0 && len(content) > g.config.MaxContentLength {
		errs = append(errs, fmt.Sprintf(
			"Content exceeds maximum length of %d characters", g.config.MaxContentLength,
		))
	}
	return result(errs)
}

func (g *Guardrails) ValidateModel(model string) ValidationResult {
	var errs []string
	if len(g.config.AllowedModels) > 0 && !contains(g.config.AllowedModels, model) {
		errs = append(errs, fmt.Sprintf(
			"Model '%s' is not in allowed list: %s", model, strings.Join(g.config.AllowedModels, ", "),
		))
	}
	return result(errs)
}

func (g *Guardrails) ValidateFilter(filter string) ValidationResult {
	var errs []string
	if len(g.config.AllowedFilters) > 0 && !contains(g.config.AllowedFilters, filter) {
		errs = append(errs, fmt.Sprintf(
			"Filter '%s' is not in allowed list: %s", filter, strings.Join(g.config.AllowedFilters, ", "),
		))
	}
	return result(errs)
}

// ValidateJSONSchema checks structure both ways: schema keys must exist in
// the data and data keys must exist in the schema. Only enforced when
// EnforceJSONSchema is set.
func (g *Guardrails) ValidateJSONSchema(data map[string]any, schema map[string]any) ValidationResult {
	var errs []string
	if g.config.EnforceJSONSchema && data != nil {
		for key := range schema {
			if _, ok := data[key]; !ok {
				errs = append(errs, fmt.Sprintf("Missing required field: %s", key))
			}
		}
		for key := range data {
			if _, ok := schema[key]; !ok {
				errs = append(errs, fmt.Sprintf("Unexpected field: %s", key))
			}
		}
	}
	return result(errs)
}

// ApplyAllGuardrails runs content and model checks always and the schema
// check only when both data and schema are provided.
func (g *Guardrails) ApplyAllGuardrails(
	content string,
	model string,
	data map[string]any,
	schema map[string]any,
) ValidationResult {
	var errs []string
	if r := g.ValidateContent(content); !r.Valid {
		errs = append(errs, r.Errors...)
	}
	if r := g.ValidateModel(model); !r.Valid {
		errs = append(errs, r.Errors...)
	}
	if data != nil && schema != nil {
		if r := g.ValidateJSONSchema(data, schema); !r.Valid {
			errs = append(errs, r.Errors...)
		}
	}
	return result(errs)
}

func result(errs []string) ValidationResult {
	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
