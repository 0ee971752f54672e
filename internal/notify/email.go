// Package notify delivers lead emails over SMTP: an immediate per-lead
// notification and the daily digest. Rendering is separated from delivery so
// the templates are testable without a mail server.
package notify

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/fluentfuture/leadscout/internal/config"
	"github.com/fluentfuture/leadscout/internal/models"
)

const profileURLBase = "https://www.reddit.com"

// Mailer sends lead emails. The profile supplies the recommended response
// message embedded in each notification; it may be nil for digest-only use.
type Mailer struct {
	config  config.EmailConfig
	profile *models.Profile
	logger  *slog.Logger
	now     func() time.Time

	// send is swapped out in tests.
	send func(ctx context.Context, msg *mail.Msg) error
}

// NewMailer creates a mailer for the given SMTP account.
func NewMailer(cfg config.EmailConfig, profile *models.Profile, logger *slog.Logger) *Mailer {
	m := &Mailer{
		config:  cfg,
		profile: profile,
		logger:  logger,
		now:     time.Now,
	}
	m.send = m.deliver
	return m
}

func (m *Mailer) deliver(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.config.Host,
		mail.WithPort(m.config.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.config.Address),
		mail.WithPassword(m.config.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

// NotifyLead sends the immediate notification for one qualified lead.
func (m *Mailer) NotifyLead(ctx context.Context, lead models.Lead) error {
	if !m.config.EmailConfigured() {
		return fmt.Errorf("email credentials not configured")
	}

	html, text, err := m.RenderLead(lead)
	if err != nil {
		return fmt.Errorf("render lead email: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.config.Address); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(m.config.Notification); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject("New Reddit Lead - Fluent Future")
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("send lead notification: %w", err)
	}

	m.logger.Info("lead notification sent", "to", m.config.Notification, "author", lead.Author)
	return nil
}

// SendDigest sends the daily digest for one partition of leads.
func (m *Mailer) SendDigest(ctx context.Context, leads []models.Lead, date string) error {
	if !m.config.EmailConfigured() {
		return fmt.Errorf("email credentials not configured")
	}

	html, text, err := m.RenderDigest(leads, date)
	if err != nil {
		return fmt.Errorf("render digest: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.config.Address); err != nil {
		return fmt.Errorf("from address: %w", err)
	}
	if err := msg.To(m.config.Notification); err != nil {
		return fmt.Errorf("to address: %w", err)
	}
	msg.Subject(fmt.Sprintf("Daily Lead Digest - %s (%d leads)", date, len(leads)))
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	if err := m.send(ctx, msg); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}

	m.logger.Info("daily digest sent", "to", m.config.Notification, "date", date, "leads", len(leads))
	return nil
}

// leadView flattens a Lead for the templates.
type leadView struct {
	Index           int
	Author          string
	Subforum        string
	Kind            string
	Title           string
	Preview         string
	SimilarityScore string
	BestTopic       string
	Score           int
	Rationale       string
	Timestamp       string
	Recommended     string
	ProfileURL      string
	ContentURL      string
}

func (m *Mailer) leadView(idx int, lead models.Lead) leadView {
	recommended := ""
	if m.profile != nil {
		recommended = m.profile.SelectTemplate(lead.Title + " " + lead.Body)
	}
	return leadView{
		Index:           idx,
		Author:          lead.Author,
		Subforum:        lead.Subforum,
		Kind:            strings.ToUpper(string(lead.Kind)),
		Title:           lead.Title,
		Preview:         truncate(lead.Body, 500),
		SimilarityScore: fmt.Sprintf("%.2f", lead.SimilarityScore),
		BestTopic:       lead.BestTopic,
		Score:           lead.Score,
		Rationale:       lead.Rationale,
		Timestamp:       lead.Timestamp.Format(time.RFC3339),
		Recommended:     recommended,
		ProfileURL:      profileURLBase + "/user/" + lead.Author,
		ContentURL:      profileURLBase + lead.Permalink,
	}
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}

var leadHTMLTemplate = template.Must(template.New("lead").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h2 style="color: #ff4500;">New Reddit Lead - Fluent Future</h2>
  <h3>Lead Information</h3>
  <p><strong>Username:</strong> u/{{.Author}}<br>
  <strong>Subreddit:</strong> r/{{.Subforum}}<br>
  <strong>Content Type:</strong> {{.Kind}}<br>
  <strong>Reddit Score:</strong> {{.Score}}<br>
  <strong>Similarity Score:</strong> {{.SimilarityScore}}<br>
  <strong>Matching Topic:</strong> {{.BestTopic}}</p>
  <h3>Content Preview</h3>
  {{if .Title}}<p><strong>Title:</strong> {{.Title}}</p>{{end}}
  <p>{{.Preview}}</p>
  {{if .Recommended}}<h3>Recommended Message</h3>
  <p style="background-color: #f0f0f0; padding: 15px; white-space: pre-wrap;">{{.Recommended}}</p>{{end}}
  <p>
    <a href="{{.ProfileURL}}">DM User on Reddit</a> |
    <a href="{{.ContentURL}}">View Original Post</a>
  </p>
  <p style="font-size: 12px; color: #666;">
    <strong>LLM Verification:</strong> {{.Rationale}}<br>
    <strong>Timestamp:</strong> {{.Timestamp}}
  </p>
</body>
</html>
`))

var leadTextTemplate = texttemplate.Must(texttemplate.New("leadText").Parse(`New Reddit Lead - Fluent Future

=== LEAD INFORMATION ===
Username: u/{{.Author}}
Subreddit: r/{{.Subforum}}
Content Type: {{.Kind}}
Reddit Score: {{.Score}}
Similarity Score: {{.SimilarityScore}}
Matching Topic: {{.BestTopic}}

=== CONTENT PREVIEW ===
{{if .Title}}Title: {{.Title}}
{{end}}{{.Preview}}
{{if .Recommended}}
=== RECOMMENDED MESSAGE ===
{{.Recommended}}
{{end}}
=== LINKS ===
DM User: {{.ProfileURL}}
View Content: {{.ContentURL}}

LLM Verification: {{.Rationale}}
Timestamp: {{.Timestamp}}
`))

// RenderLead renders the per-lead notification as HTML and plain text.
func (m *Mailer) RenderLead(lead models.Lead) (html, text string, err error) {
	view := m.leadView(1, lead)

	var htmlBuf, textBuf strings.Builder
	if err := leadHTMLTemplate.Execute(&htmlBuf, view); err != nil {
		return "", "", err
	}
	if err := leadTextTemplate.Execute(&textBuf, view); err != nil {
		return "", "", err
	}
	return htmlBuf.String(), textBuf.String(), nil
}

type digestView struct {
	Date        string
	Total       int
	Leads       []leadView
	GeneratedAt string
}

var digestHTMLTemplate = template.Must(template.New("digest").Parse(`<html>
<body style="font-family: Arial, sans-serif; color: #333;">
  <h1 style="color: #ff4500;">Daily Lead Digest</h1>
  <p>Fluent Future - {{.Date}}</p>
  <h2>{{.Total}} Total Leads</h2>
  {{if not .Leads}}<p>No leads were collected today.</p>{{end}}
  {{range .Leads}}
  <div style="border-left: 4px solid #ff4500; padding: 10px; margin: 20px 0;">
    <h3>Lead #{{.Index}} - u/{{.Author}}</h3>
    <p><strong>Subreddit:</strong> r/{{.Subforum}}<br>
    <strong>Content Type:</strong> {{.Kind}}<br>
    <strong>Similarity Score:</strong> {{.SimilarityScore}}<br>
    <strong>Matching Topic:</strong> {{.BestTopic}}<br>
    <strong>Time:</strong> {{.Timestamp}}</p>
    {{if .Title}}<p><strong>Title:</strong> {{.Title}}</p>{{end}}
    <p>{{.Preview}}</p>
    <p><a href="{{.ProfileURL}}">DM User</a> | <a href="{{.ContentURL}}">View Post</a></p>
  </div>
  {{end}}
  <p style="font-size: 12px; color: #666;">Generated on {{.GeneratedAt}}</p>
</body>
</html>
`))

var digestTextTemplate = texttemplate.Must(texttemplate.New("digestText").Parse(`Daily Lead Digest - Fluent Future
{{.Date}}

Total Leads: {{.Total}}
{{if not .Leads}}
No leads were collected today.
{{end}}{{range .Leads}}
============================================================
LEAD #{{.Index}}: u/{{.Author}}
============================================================
Subreddit: r/{{.Subforum}}
Content Type: {{.Kind}}
Similarity Score: {{.SimilarityScore}}
{{if .Title}}Title: {{.Title}}
{{end}}{{.Preview}}

Links:
- DM User: {{.ProfileURL}}
- View Post: {{.ContentURL}}
{{end}}
Generated on {{.GeneratedAt}}
`))

// RenderDigest renders the daily digest for one day's leads.
func (m *Mailer) RenderDigest(leads []models.Lead, date string) (html, text string, err error) {
	view := digestView{
		Date:        date,
		Total:       len(leads),
		GeneratedAt: m.now().Format("2006-01-02 15:04:05"),
	}
	for i, lead := range leads {
		lv := m.leadView(i+1, lead)
		lv.Preview = truncate(lead.Body, 300)
		view.Leads = append(view.Leads, lv)
	}

	var htmlBuf, textBuf strings.Builder
	if err := digestHTMLTemplate.Execute(&htmlBuf, view); err != nil {
		return "", "", err
	}
	if err := digestTextTemplate.Execute(&textBuf, view); err != nil {
		return "", "", err
	}
	return htmlBuf.String(), textBuf.String(), nil
}
