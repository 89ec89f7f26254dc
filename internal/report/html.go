package report

import (
	"bytes"
	"fmt"
	"html"

	"github.com/ternarybob/siteverify/internal/models"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const htmlPage = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; color: #222; }
table { border-collapse: collapse; margin-bottom: 1.5rem; }
th, td { border: 1px solid #ccc; padding: 0.3rem 0.6rem; text-align: left; }
th { background: #f3f3f3; }
blockquote { border-left: 4px solid #c00; margin: 1rem 0; padding-left: 1rem; }
</style>
</head>
<body>
%s</body>
</html>
`

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// RenderHTML renders the Markdown report to a standalone HTML page
func RenderHTML(s *models.RunSummary) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert(RenderMarkdown(s), &body); err != nil {
		return nil, fmt.Errorf("failed to render html report: %w", err)
	}
	title := html.EscapeString("Site Verification " + s.RunID)
	return []byte(fmt.Sprintf(htmlPage, title, body.String())), nil
}
