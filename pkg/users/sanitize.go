package users

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// MaxTextLength bounds free-text fields such as the bio
const MaxTextLength = 1000

// elements whose content is never kept as text
const strippedElements = "script, style, iframe, object, embed, noscript, template"

var bioMarkdown = goldmark.New(
	goldmark.WithExtensions(extension.Linkify),
	goldmark.WithRendererOptions(html.WithHardWraps()),
)

// SanitizeText reduces s to plain text. Markup is parsed and dropped,
// active elements are removed together with their content, and
// surrounding whitespace is trimmed.
func SanitizeText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		// unparseable input keeps no markup characters at all
		return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(s))
	}
	doc.Find(strippedElements).Remove()
	return strings.TrimSpace(doc.Find("body").Text())
}

// SanitizeBio sanitizes s and truncates it to MaxTextLength runes
func SanitizeBio(s string) string {
	s = SanitizeText(s)
	if r := []rune(s); len(r) > MaxTextLength {
		s = string(r[:MaxTextLength])
	}
	return s
}

// RenderBioPreview renders a bio written in markdown to HTML. Raw HTML in
// the source is omitted and dangerous link schemes are neutralized.
func RenderBioPreview(bio string) (string, error) {
	var buf bytes.Buffer
	if err := bioMarkdown.Convert([]byte(bio), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
