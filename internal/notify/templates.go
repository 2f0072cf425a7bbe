package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Renderer turns an outbox notification into an email message.
type Renderer struct {
	html    *htmltemplate.Template
	text    *texttemplate.Template
	from    string
	baseURL string
}

func NewRenderer(from, baseURL string) (*Renderer, error) {
	h, err := htmltemplate.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	t, err := texttemplate.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Renderer{html: h, text: t, from: from, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (r *Renderer) Render(n Notification) (Message, error) {
	kind := string(n.Kind)
	if r.text.Lookup(kind+".subject") == nil {
		return Message{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	data := make(map[string]any, len(n.Payload)+1)
	data["base_url"] = r.baseURL
	for k, v := range n.Payload {
		data[k] = v
	}

	var subject, text, html bytes.Buffer
	if err := r.text.ExecuteTemplate(&subject, kind+".subject", data); err != nil {
		return Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := r.text.ExecuteTemplate(&text, kind+".text", data); err != nil {
		return Message{}, fmt.Errorf("render text: %w", err)
	}
	if err := r.html.ExecuteTemplate(&html, kind+".html", data); err != nil {
		return Message{}, fmt.Errorf("render html: %w", err)
	}

	return Message{
		From:     r.from,
		To:       n.Recipient,
		Subject:  strings.TrimSpace(subject.String()),
		TextBody: strings.TrimSpace(text.String()),
		HTMLBody: strings.TrimSpace(html.String()),
	}, nil
}
