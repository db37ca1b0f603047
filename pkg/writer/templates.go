package writer

import (
	"bytes"
	"fmt"
	"sort"
	"text/template"
)

// Params is the closed set of values a metadata template can refer to, as
// {{.prefix}}, {{.scale}}, {{.x}}, {{.y}}, {{.z}} and {{.zoom}}.
type Params struct {
	Prefix  string
	Scale   int
	X, Y, Z int
}

func (p Params) asMap() map[string]interface{} {
	return map[string]interface{}{
		"prefix": p.Prefix,
		"scale":  p.Scale,
		"x":      p.X,
		"y":      p.Y,
		"z":      p.Z,
		"zoom":   p.Z,
	}
}

// Templates renders object metadata, one template per metadata name.
type Templates struct {
	names     []string
	templates map[string]*template.Template
}

// NewTemplates compiles every template and renders it once with zero
// values. Any error here is a configuration error.
func NewTemplates(texts map[string]string) (*Templates, error) {
	t := &Templates{templates: make(map[string]*template.Template, len(texts))}

	for name, text := range texts {
		tpl, err := template.New(name).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("couldn't parse template for %s: %w", name, err)
		}
		if err := tpl.Execute(&bytes.Buffer{}, Params{}.asMap()); err != nil {
			return nil, fmt.Errorf("couldn't render template for %s: %w", name, err)
		}

		t.names = append(t.names, name)
		t.templates[name] = tpl
	}
	sort.Strings(t.names)

	return t, nil
}

// Render returns nil when there are no templates.
func (t *Templates) Render(p Params) (map[string]string, error) {
	if t == nil || len(t.names) == 0 {
		return nil, nil
	}

	data := p.asMap()
	result := make(map[string]string, len(t.names))
	var buf bytes.Buffer
	for _, name := range t.names {
		buf.Reset()
		if err := t.templates[name].Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("couldn't render template for %s: %w", name, err)
		}
		result[name] = buf.String()
	}
	return result, nil
}
