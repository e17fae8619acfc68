package utils

import (
	"bytes"
	"html"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// 帖子和回复共用一条管线：goldmark → bluemonday → goquery
var (
	markdown = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
	)
	sanitizer = newSanitizer()
)

func newSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowImages()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)
	return p
}

// RenderMarkdown turns user-written markdown into HTML that is safe to embed.
// Raw HTML in the source never survives.
func RenderMarkdown(source string) string {
	if strings.TrimSpace(source) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(source), &buf); err != nil {
		return "<p>" + html.EscapeString(source) + "</p>"
	}
	return decorate(sanitizer.SanitizeReader(&buf))
}

// decorate adds presentation hints the sanitizer would otherwise strip:
// lazy, referrer-free images and a data-lang on fenced code blocks.
func decorate(r io.Reader) string {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return ""
	}

	doc.Find("img").
		SetAttr("loading", "lazy").
		SetAttr("referrerpolicy", "no-referrer")

	doc.Find("pre > code").Each(func(_ int, code *goquery.Selection) {
		for _, class := range strings.Fields(code.AttrOr("class", "")) {
			if lang, ok := strings.CutPrefix(class, "language-"); ok && lang != "" {
				code.Parent().SetAttr("data-lang", lang)
				return
			}
		}
	})

	out, _ := doc.Find("body").Html()
	return strings.TrimSpace(out)
}
