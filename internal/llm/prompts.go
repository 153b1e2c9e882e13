package llm

import (
	_ "embed"
	"encoding/xml"
	"fmt"
	"os"
	"strings"
)

//go:embed prompts/category.xml
var defaultCategoryPrompt []byte

// PromptConfig represents a prompt loaded from an XML file.
// It contains the system prompt and the user prompt template.
type PromptConfig struct {
	XMLName xml.Name `xml:"prompt"`
	System  string   `xml:"system"`
	User    string   `xml:"user"`
}

// LoadPrompt reads and parses a prompt configuration from an XML file.
func LoadPrompt(filepath string) (*PromptConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("read prompt file: %w", err)
	}
	return ParsePrompt(data)
}

// ParsePrompt parses prompt XML.
func ParsePrompt(data []byte) (*PromptConfig, error) {
	var config PromptConfig
	if err := xml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse prompt xml: %w", err)
	}
	config.System = strings.TrimSpace(config.System)
	config.User = strings.TrimSpace(config.User)
	return &config, nil
}

// DefaultCategoryPrompt returns the built-in channel categorisation prompt.
func DefaultCategoryPrompt() *PromptConfig {
	p, err := ParsePrompt(defaultCategoryPrompt)
	if err != nil {
		panic(err)
	}
	return p
}

// BuildUserPrompt fills {{TEXT}} and {{CATEGORIES}} in the user template.
func (p *PromptConfig) BuildUserPrompt(text string, categories []string) string {
	return strings.NewReplacer(
		"{{TEXT}}", text,
		"{{CATEGORIES}}", strings.Join(categories, "\n"),
	).Replace(p.User)
}
