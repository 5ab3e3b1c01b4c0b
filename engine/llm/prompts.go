package llm

import (
	"fmt"
	"strings"

	llmadapter "github.com/bizradar/bizradar/engine/llm/adapter"
)

// PromptTemplate is a reusable system prompt with named user variables.
type PromptTemplate struct {
	ID          string
	Name        string
	Description string
	System      string
	Variables   []string
	Version     string
}

// Built-in template ids.
const (
	TemplateClassification = "classification"
	TemplateSummarization  = "summarization"
	TemplateExtraction     = "extraction"
	TemplateGeneration     = "generation"
	TemplateReasoning      = "reasoning"
	TemplateJSONGeneration = "jsonGeneration"
)

var promptTemplates = map[string]PromptTemplate{
	TemplateClassification: {
		ID:          TemplateClassification,
		Name:        "Text Classification",
		Description: "Classify text into predefined categories",
		System: "You are a text classification assistant. Your task is to classify the given text into one of the provided categories.\n\n" +
			"Return ONLY the category name, nothing else.",
		Variables: []string{"text", "categories"},
		Version:   "1.0.0",
	},
	TemplateSummarization: {
		ID:          TemplateSummarization,
		Name:        "Text Summarization",
		Description: "Summarize text into a concise summary",
		System: "You are a text summarization assistant. Your task is to create a concise, accurate summary of the provided text.\n\n" +
			"Maintain the key information and key insights.",
		Variables: []string{"text", "maxLength"},
		Version:   "1.0.0",
	},
	TemplateExtraction: {
		ID:          TemplateExtraction,
		Name:        "Information Extraction",
		Description: "Extract specific information from text",
		System: "You are an information extraction assistant. Your task is to extract the requested information from the text.\n\n" +
			"Return the extracted information in a structured format.",
		Variables: []string{"text", "fields"},
		Version:   "1.0.0",
	},
	TemplateGeneration: {
		ID:          TemplateGeneration,
		Name:        "Content Generation",
		Description: "Generate content based on a prompt",
		System: "You are a creative content generation assistant. Your task is to generate high-quality content based on the provided requirements.\n\n" +
			"Be creative, coherent, and relevant.",
		Variables: []string{"prompt", "style", "tone"},
		Version:   "1.0.0",
	},
	TemplateReasoning: {
		ID:          TemplateReasoning,
		Name:        "Multi-step Reasoning",
		Description: "Perform multi-step reasoning and problem solving",
		System: "You are a reasoning assistant. Break down complex problems into steps.\n\n" +
			"Show your reasoning process clearly and arrive at well-justified conclusions.",
		Variables: []string{"problem"},
		Version:   "1.0.0",
	},
	TemplateJSONGeneration: {
		ID:          TemplateJSONGeneration,
		Name:        "Structured JSON Generation",
		Description: "Generate structured JSON output",
		System: "You are a JSON generation assistant. Your task is to generate valid JSON output that matches the provided schema.\n\n" +
			"Return ONLY valid JSON, no additional text.",
		Variables: []string{"schema", "prompt"},
		Version:   "1.0.0",
	},
}

// GetPromptTemplate looks up a built-in template by id.
func GetPromptTemplate(id string) (PromptTemplate, bool) {
	template, ok := promptTemplates[id]
	return template, ok
}

// ListPromptTemplates returns every built-in template.
func ListPromptTemplates() []PromptTemplate {
	templates := make([]PromptTemplate, 0, len(promptTemplates))
	for _, id := range []string{
		TemplateClassification,
		TemplateSummarization,
		TemplateExtraction,
		TemplateGeneration,
		TemplateReasoning,
		TemplateJSONGeneration,
	} {
		templates = append(templates, promptTemplates[id])
	}
	return templates
}

// PromptBuilder fills a template's variables and assembles the message pair
// (system prompt plus one user message listing the set variables in the
// template's declared order).
type PromptBuilder struct {
	template  PromptTemplate
	variables map[string]string
}

func NewPromptBuilder(template PromptTemplate) *PromptBuilder {
	return &PromptBuilder{
		template:  template,
		variables: make(map[string]string),
	}
}

// NewPromptBuilderFor selects a built-in template by id.
func NewPromptBuilderFor(id string) (*PromptBuilder, error) {
	template, ok := GetPromptTemplate(id)
	if !ok {
		return nil, fmt.Errorf("unknown prompt template: %s", id)
	}
	return NewPromptBuilder(template), nil
}

// Set assigns a variable value. Unknown keys are kept but never rendered.
func (b *PromptBuilder) Set(key, value string) *PromptBuilder {
	b.variables[key] = value
	return b
}

// Build renders the message pair. Unset variables are omitted from the user
// message rather than rendered empty.
func (b *PromptBuilder) Build() []llmadapter.Message {
	var user strings.Builder
	for _, name := range b.template.Variables {
		if value := b.variables[name]; value != "" {
			user.WriteString(name)
			user.WriteString(": ")
			user.WriteString(value)
			user.WriteString("\n")
		}
	}
	return []llmadapter.Message{
		{Role: llmadapter.RoleSystem, Content: b.template.System},
		{Role: llmadapter.RoleUser, Content: strings.TrimSpace(user.String())},
	}
}
