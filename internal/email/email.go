package email

import (
	"bytes"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"techdigest/internal/categorization"
	"techdigest/internal/core"
)

// EmailTemplate holds the styling and copy for a digest email
type EmailTemplate struct {
	Name            string
	Subject         string // text/template; fields: Title, Date
	Title           string
	HeaderColor     string
	BackgroundColor string
	TextColor       string
	LinkColor       string
	BorderColor     string
	MaxWidth        string
	FontFamily      string
	FooterText      string
}

// GetDefaultEmailTemplate returns the newsletter template
func GetDefaultEmailTemplate() *EmailTemplate {
	return &EmailTemplate{
		Name:            "default",
		Subject:         "🎬 {{.Title}} - {{.Date}}",
		Title:           "Streaming Industry Newsletter",
		HeaderColor:     "#1e3a8a", // Blue-900
		BackgroundColor: "#f8fafc", // Slate-50
		TextColor:       "#1e293b", // Slate-800
		LinkColor:       "#2563eb", // Blue-600
		BorderColor:     "#e2e8f0", // Slate-200
		MaxWidth:        "600px",
		FontFamily:      "system-ui, -apple-system, 'Segoe UI', Roboto, sans-serif",
		FooterText:      "You are receiving this because you subscribed to the streaming industry digest.",
	}
}

// DigestArticle is one article as it appears in an email
type DigestArticle struct {
	Title         string
	URL           string
	SourceName    string
	PublishedDate string
	Category      string
	CategoryIcon  string
	Summary       string
}

// DigestData contains everything needed to render a digest email
type DigestData struct {
	Title    string
	Date     string
	Greeting string
	Articles []DigestArticle
}

// NewDigestData converts stored articles into render data for user
func NewDigestData(tmpl *EmailTemplate, user core.User, articles []core.Article, now time.Time) DigestData {
	items := make([]DigestArticle, 0, len(articles))
	for _, a := range articles {
		summary := a.SummaryText()
		if summary == core.SummaryUnavailable {
			summary = ""
		}
		published := ""
		if !a.PublishedAt.IsZero() {
			published = a.PublishedAt.Format("Jan 2, 2006")
		}
		items = append(items, DigestArticle{
			Title:         a.Title,
			URL:           a.URL,
			SourceName:    a.SourceName,
			PublishedDate: published,
			Category:      a.TopicCategory,
			CategoryIcon:  categorization.IconFor(a.TopicCategory),
			Summary:       summary,
		})
	}

	return DigestData{
		Title:    tmpl.Title,
		Date:     FormatDate(now),
		Greeting: user.DisplayName(),
		Articles: items,
	}
}

// FormatDate renders the long date used in subjects and headers
func FormatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

// getEmailCSS returns inline-friendly CSS for the template
func getEmailCSS(tmpl *EmailTemplate) string {
	return fmt.Sprintf(`
<style type="text/css">
  body {
    margin: 0 !important;
    padding: 0 !important;
    background-color: %s;
    font-family: %s;
    color: %s;
    line-height: 1.6;
  }
  .container {
    max-width: %s;
    margin: 0 auto;
    background-color: #ffffff;
    border: 1px solid %s;
    border-radius: 8px;
    overflow: hidden;
  }
  .header {
    background-color: %s;
    color: #ffffff;
    padding: 24px;
    text-align: center;
  }
  .header h1 { margin: 0; font-size: 24px; font-weight: 600; }
  .header .date { margin: 8px 0 0 0; font-size: 14px; opacity: 0.9; }
  .content { padding: 24px; }
  a { color: %s; text-decoration: none; }
  .article-card {
    border-bottom: 1px solid %s;
    padding: 16px 0;
  }
  .article-title { font-size: 18px; font-weight: 600; margin: 0 0 8px 0; }
  .article-meta { font-size: 13px; color: #64748b; margin: 0 0 8px 0; }
  .article-summary { font-size: 15px; margin: 0 0 8px 0; }
  .footer {
    background-color: #f1f5f9;
    padding: 20px 24px;
    text-align: center;
    font-size: 12px;
    color: #64748b;
  }
  @media only screen and (max-width: 600px) {
    .container { margin: 0 !important; border-radius: 0 !important; }
    .content, .header { padding: 16px !important; }
  }
</style>
`,
		tmpl.BackgroundColor, tmpl.FontFamily, tmpl.TextColor, tmpl.MaxWidth,
		tmpl.BorderColor, tmpl.HeaderColor, tmpl.LinkColor, tmpl.BorderColor)
}

const digestHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Data.Title}}</title>
    {{.CSS}}
</head>
<body>
    <table role="presentation" cellspacing="0" cellpadding="0" border="0" width="100%">
        <tr>
            <td align="center">
                <div class="container">
                    <div class="header">
                        <h1>{{.Data.Title}}</h1>
                        <p class="date">{{.Data.Date}}</p>
                    </div>
                    <div class="content">
                        <p>Hi {{.Data.Greeting}},</p>
                        <p>Here are the top {{len .Data.Articles}} stories picked for you this time.</p>
                        {{range .Data.Articles}}
                        <div class="article-card">
                            <h3 class="article-title"><a href="{{.URL}}">{{.Title}}</a></h3>
                            <p class="article-meta">{{.SourceName}}{{if .PublishedDate}} • {{.PublishedDate}}{{end}}{{if .Category}} • {{.CategoryIcon}} {{.Category}}{{end}}</p>
                            {{if .Summary}}<p class="article-summary">{{.Summary}}</p>{{end}}
                            <a href="{{.URL}}">Read full article →</a>
                        </div>
                        {{end}}
                    </div>
                    <div class="footer">
                        <p>{{.FooterText}}</p>
                    </div>
                </div>
            </td>
        </tr>
    </table>
</body>
</html>`

var digestTemplate = template.Must(template.New("digest").Parse(digestHTML))

// RenderHTMLEmail renders a self-contained HTML digest. All article text is escaped.
func RenderHTMLEmail(data DigestData, emailTemplate *EmailTemplate) (string, error) {
	if emailTemplate == nil {
		emailTemplate = GetDefaultEmailTemplate()
	}

	templateData := struct {
		Data       DigestData
		CSS        template.HTML
		FooterText string
	}{
		Data:       data,
		CSS:        template.HTML(getEmailCSS(emailTemplate)),
		FooterText: emailTemplate.FooterText,
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, templateData); err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}

	return buf.String(), nil
}

// GenerateSubject generates email subject using template
func GenerateSubject(emailTemplate *EmailTemplate, date time.Time) (string, error) {
	if emailTemplate == nil {
		emailTemplate = GetDefaultEmailTemplate()
	}

	tmpl, err := texttemplate.New("subject").Parse(emailTemplate.Subject)
	if err != nil {
		return "", fmt.Errorf("failed to parse subject template: %w", err)
	}

	data := struct {
		Title string
		Date  string
	}{
		Title: emailTemplate.Title,
		Date:  FormatDate(date),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute subject template: %w", err)
	}

	return buf.String(), nil
}
