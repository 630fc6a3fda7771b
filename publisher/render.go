package publisher

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// RenderHTML converts a post body to HTML. Polished articles separate
// paragraphs with blank lines, which Markdown already treats as paragraphs.
// Raw HTML in the body is dropped.
func RenderHTML(content string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(strings.ReplaceAll(content, "\r\n", "\n")), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
