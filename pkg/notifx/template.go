package notifx

import (
	"bytes"
	htmltemplate "html/template"
	"sync"
	texttemplate "text/template"
)

// Rendered is the output of a template pair.
type Rendered struct {
	Subject string
	HTML    string
	Text    string
}

type templateSet struct {
	subject *texttemplate.Template
	html    *htmltemplate.Template
	text    *texttemplate.Template
}

// TemplateRegistry stores named email templates: a subject line, an HTML
// body and an optional plain-text body.
type TemplateRegistry struct {
	templates map[string]templateSet
	mu        sync.RWMutex
}

// NewTemplateRegistry creates a new template registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]templateSet),
	}
}

// Register parses and stores a template set by name. text may be empty.
func (r *TemplateRegistry) Register(name, subject, html, text string) error {
	var (
		set templateSet
		err error
	)
	if set.subject, err = texttemplate.New(name + ".subject").Parse(subject); err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}
	if set.html, err = htmltemplate.New(name + ".html").Parse(html); err != nil {
		return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
	}
	if text != "" {
		if set.text, err = texttemplate.New(name + ".text").Parse(text); err != nil {
			return notifxErrors.NewWithCause(ErrTemplateParse, err).WithDetail("template", name)
		}
	}

	r.mu.Lock()
	r.templates[name] = set
	r.mu.Unlock()

	return nil
}

// Render executes a named template set with the given data.
func (r *TemplateRegistry) Render(name string, data any) (Rendered, error) {
	r.mu.RLock()
	set, ok := r.templates[name]
	r.mu.RUnlock()

	if !ok {
		return Rendered{}, notifxErrors.New(ErrTemplateNotFound).WithDetail("template", name)
	}

	var out Rendered
	var buf bytes.Buffer
	if err := set.subject.Execute(&buf, data); err != nil {
		return Rendered{}, notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}
	out.Subject = buf.String()

	buf.Reset()
	if err := set.html.Execute(&buf, data); err != nil {
		return Rendered{}, notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
	}
	out.HTML = buf.String()

	if set.text != nil {
		buf.Reset()
		if err := set.text.Execute(&buf, data); err != nil {
			return Rendered{}, notifxErrors.NewWithCause(ErrTemplateRender, err).WithDetail("template", name)
		}
		out.Text = buf.String()
	}
	return out, nil
}
