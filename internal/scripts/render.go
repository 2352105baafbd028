package scripts

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Renderer turns a script source into the text sent to the printer
type Renderer interface {
	Render(name, source string, snippets map[string]string, vars map[string]any) (string, error)
}

// TemplateRenderer renders with text/template and the sprig functions.
// Snippets are registered as "snippets/<name>" templates.
type TemplateRenderer struct{}

// Render implements Renderer
func (TemplateRenderer) Render(name, source string, snippets map[string]string, vars map[string]any) (string, error) {
	tmpl, err := template.New(name).Funcs(sprig.TxtFuncMap()).Option("missingkey=zero").Parse(source)
	if err != nil {
		return "", fmt.Errorf("failed to parse script %s: %w", name, err)
	}

	for snippet, src := range snippets {
		if _, err := tmpl.New(SnippetsName + "/" + snippet).Parse(src); err != nil {
			return "", fmt.Errorf("failed to parse snippet %s: %w", snippet, err)
		}
	}

	if vars == nil {
		vars = map[string]any{}
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, vars); err != nil {
		return "", fmt.Errorf("failed to render script %s: %w", name, err)
	}
	return buf.String(), nil
}
