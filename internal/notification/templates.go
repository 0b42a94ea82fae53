package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/dustin/go-humanize"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// VerificationData fills TemplateVerification.
type VerificationData struct {
	Name         string
	Organization string
	SessionID    string
	Token        string
	VerifyURL    string
	ExpiresAt    time.Time
}

// ReviewerData fills TemplateReviewerRequest.
type ReviewerData struct {
	Organization string
	ContactName  string
	ContactEmail string
	Country      string
	Website      string
	Description  string
	ApproveURL   string
	RejectURL    string
	ExpiresAt    time.Time
}

// PendingAckData fills TemplatePendingAck.
type PendingAckData struct {
	Name         string
	Organization string
}

// OutcomeData fills TemplateApproved and TemplateRejected.
type OutcomeData struct {
	Name         string
	Organization string
	Reason       string
}

var funcs = map[string]any{
	"relative": humanize.Time,
	"date": func(t time.Time) string {
		return t.UTC().Format("2 Jan 2006 15:04 MST")
	},
}

// Renderer turns a template name and data into a Message. Each template has
// a text file defining "subject" and "text", and an html file defining "html".
type Renderer struct {
	text map[Template]*texttemplate.Template
	html map[Template]*htmltemplate.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		text: make(map[Template]*texttemplate.Template),
		html: make(map[Template]*htmltemplate.Template),
	}
	for _, name := range []Template{
		TemplateVerification,
		TemplateReviewerRequest,
		TemplatePendingAck,
		TemplateApproved,
		TemplateRejected,
	} {
		txt, err := texttemplate.New(string(name)).Funcs(funcs).
			ParseFS(templateFS, "templates/"+string(name)+".txt.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s text template: %w", name, err)
		}
		html, err := htmltemplate.New(string(name)).Funcs(funcs).
			ParseFS(templateFS, "templates/"+string(name)+".html.tmpl")
		if err != nil {
			return nil, fmt.Errorf("parse %s html template: %w", name, err)
		}
		r.text[name] = txt
		r.html[name] = html
	}
	return r, nil
}

func (r *Renderer) Render(name Template, data any) (Message, error) {
	txt, ok := r.text[name]
	if !ok {
		return Message{}, fmt.Errorf("unknown template %q", name)
	}

	var subject, text, html bytes.Buffer
	if err := txt.ExecuteTemplate(&subject, "subject", data); err != nil {
		return Message{}, fmt.Errorf("render %s subject: %w", name, err)
	}
	if err := txt.ExecuteTemplate(&text, "text", data); err != nil {
		return Message{}, fmt.Errorf("render %s text: %w", name, err)
	}
	if err := r.html[name].ExecuteTemplate(&html, "html", data); err != nil {
		return Message{}, fmt.Errorf("render %s html: %w", name, err)
	}
	return Message{
		Subject: strings.TrimSpace(subject.String()),
		Text:    strings.TrimSpace(text.String()),
		HTML:    html.String(),
	}, nil
}
