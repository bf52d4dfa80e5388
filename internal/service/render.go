package service

import (
	"bytes"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	goldmarkhtml "github.com/yuin/goldmark/renderer/html"

	"wikid/internal/data"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("friendly"),
			highlighting.WithFormatOptions(chromahtml.WithClasses(true)),
		),
	),
	goldmark.WithRendererOptions(goldmarkhtml.WithUnsafe()),
)

var sanitizer = bluemonday.UGCPolicy().
	AllowAttrs("class").Matching(bluemonday.SpaceSeparatedTokens).OnElements("span", "pre", "code", "div")

// RenderHTML converts a stored revision to sanitized HTML. Revision 0
// means latest. The returned revision feeds the response ETag.
func (s *Service) RenderHTML(id data.PageID, rev data.Revision) (string, data.Revision, error) {
	src, err := s.store.GetSource(id, rev)
	if err != nil {
		return "", 0, err
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(src.Source), &buf); err != nil {
		return "", 0, fmt.Errorf("failed to render markdown: %w", err)
	}
	return sanitizer.Sanitize(buf.String()), src.Revision, nil
}
