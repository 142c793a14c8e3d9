// Package notify renders and delivers messages to customers and guests.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

// Template names in the catalog.
const (
	TemplateInvitation   = "invitation"
	TemplateReminder     = "reminder"
	TemplateRSVPClosed   = "rsvp_closed"
	TemplateRSVPAlready  = "rsvp_already"
	TemplateRSVPRecorded = "rsvp_recorded"
)

//go:embed templates/catalog.yaml templates/layout.html
var templateFS embed.FS

// Message is a rendered message. Text is the markdown source, used by
// channels that cannot show HTML.
type Message struct {
	Subject string
	Title   string
	HTML    string
	Text    string
}

// InvitationData fills the invitation template.
type InvitationData struct {
	GuestName   string
	EventName   string
	Description string
	When        string
	Location    string
	MapURL      string
	Deadline    string
	AcceptURL   string
	DeclineURL  string
	Host        string
}

// ReminderData fills the reminder sent to a customer whose vendors have not all accepted.
type ReminderData struct {
	CustomerName string
	EventName    string
	Date         string
	EventURL     string
}

// RSVPData fills the RSVP result pages.
type RSVPData struct {
	Status   string
	Deadline string
}

type catalogEntry struct {
	Title   string `yaml:"title"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

type compiled struct {
	title   string
	subject *template.Template
	body    *template.Template
}

// Renderer turns catalog entries into Messages.
type Renderer struct {
	entries  map[string]compiled
	layout   *htmltemplate.Template
	markdown goldmark.Markdown
}

// NewRenderer loads the embedded catalog and layout.
func NewRenderer() (*Renderer, error) {
	raw, err := templateFS.ReadFile("templates/catalog.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	var catalog map[string]catalogEntry
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	entries := make(map[string]compiled, len(catalog))
	for name, entry := range catalog {
		subject, err := template.New(name + ".subject").Option("missingkey=error").Parse(entry.Subject)
		if err != nil {
			return nil, fmt.Errorf("template %s subject: %w", name, err)
		}
		body, err := template.New(name + ".body").Option("missingkey=error").Parse(entry.Body)
		if err != nil {
			return nil, fmt.Errorf("template %s body: %w", name, err)
		}
		entries[name] = compiled{title: entry.Title, subject: subject, body: body}
	}

	layout, err := htmltemplate.ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithHardWraps()),
	)

	return &Renderer{entries: entries, layout: layout, markdown: md}, nil
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data any) (Message, error) {
	entry, ok := r.entries[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", name)
	}

	var subject bytes.Buffer
	if err := entry.subject.Execute(&subject, data); err != nil {
		return Message{}, fmt.Errorf("rendering %s subject: %w", name, err)
	}
	var text bytes.Buffer
	if err := entry.body.Execute(&text, data); err != nil {
		return Message{}, fmt.Errorf("rendering %s body: %w", name, err)
	}

	// Raw HTML in the markdown source is dropped by goldmark, so user
	// supplied names cannot inject markup.
	var body bytes.Buffer
	if err := r.markdown.Convert(text.Bytes(), &body); err != nil {
		return Message{}, fmt.Errorf("converting %s markdown: %w", name, err)
	}

	var page bytes.Buffer
	err := r.layout.Execute(&page, struct {
		Title string
		Body  htmltemplate.HTML
	}{
		Title: entry.title,
		Body:  htmltemplate.HTML(body.String()),
	})
	if err != nil {
		return Message{}, fmt.Errorf("rendering %s layout: %w", name, err)
	}

	return Message{
		Subject: subject.String(),
		Title:   entry.title,
		HTML:    page.String(),
		Text:    text.String(),
	}, nil
}
