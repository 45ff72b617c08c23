package vision

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"text/template"
)

//go:embed annotation_prompt.tmpl
var defaultPromptTemplate string

// promptData is passed to the prompt template.
type promptData struct {
	Species string
}

// Prompter renders the annotation prompt. The template is fixed for the
// lifetime of the process so every image is asked the same question.
type Prompter struct {
	tmpl *template.Template
}

// NewPrompter parses the template at path, or the built-in template when
// path is empty.
func NewPrompter(path string) (*Prompter, error) {
	text := defaultPromptTemplate
	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompt template from %s: %w", path, err)
		}
		text = string(content)
	}

	tmpl, err := template.New("annotation").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt template: %w", err)
	}
	return &Prompter{tmpl: tmpl}, nil
}

// DefaultPrompter returns a Prompter using the built-in template.
func DefaultPrompter() *Prompter {
	p, err := NewPrompter("")
	if err != nil {
		// ALLOW-PANIC: the embedded template is compiled into the binary
		panic(err)
	}
	return p
}

// AnnotationPrompt renders the prompt for an image of species.
func (p *Prompter) AnnotationPrompt(species string) (string, error) {
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, promptData{Species: species}); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buf.String(), nil
}
